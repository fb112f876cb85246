package runner

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"
)

// Event types written by the JSONHandler.
const (
	EventPrompt = "prompt"
	EventSystem = "system"
)

// Event is one JSON line written by the JSONHandler.
type Event struct {
	Type    string  `json:"type"`
	Prompt  *Prompt `json:"prompt,omitempty"`
	Message string  `json:"message,omitempty"`
}

// JSONHandler implements IOHandler with JSON-lines: one Event per output line,
// one answer per input line (a JSON string or raw text).
type JSONHandler struct {
	Reader  *bufio.Reader
	Encoder *json.Encoder
}

// NewJSONHandler creates a handler for JSON IO.
func NewJSONHandler(r io.Reader, w io.Writer) *JSONHandler {
	if r == nil {
		r = os.Stdin
	}
	if w == nil {
		w = os.Stdout
	}
	return &JSONHandler{
		Reader:  bufio.NewReader(r),
		Encoder: json.NewEncoder(w),
	}
}

// Output emits a prompt event, including nodes without text, so that a
// driver can follow every transition.
func (h *JSONHandler) Output(ctx context.Context, p Prompt) error {
	return h.Encoder.Encode(Event{Type: EventPrompt, Prompt: &p})
}

// Input reads one line. A JSON string is unquoted; anything else is taken
// as raw text.
func (h *JSONHandler) Input(ctx context.Context) (string, error) {
	text, err := h.Reader.ReadString('\n')
	if err != nil && (text == "" || err != io.EOF) {
		return "", err
	}
	text = strings.TrimSpace(text)

	var val string
	if err := json.Unmarshal([]byte(text), &val); err == nil {
		text = val
	}
	return SanitizeInput(text)
}

// SystemOutput emits a system event.
func (h *JSONHandler) SystemOutput(ctx context.Context, msg string) error {
	return h.Encoder.Encode(Event{Type: EventSystem, Message: msg})
}
