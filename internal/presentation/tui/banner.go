package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/muesli/termenv"
)

// PrintBanner writes the chatflow banner and version to w.
func PrintBanner(w io.Writer, version string) {
	out := termenv.NewOutput(w)
	p := out.ColorProfile()

	lines := []struct {
		text  string
		color string
	}{
		{"        _           _    __ _               ", "#34d399"},
		{"   ___ | |__   __ _| |_ / _| | _____      __", "#2dd4bf"},
		{"  / __|| '_ \\ / _` | __| |_| |/ _ \\ \\ /\\ / /", "#22d3ee"},
		{" | (__ | | | | (_| | |_|  _| | (_) \\ V  V / ", "#38bdf8"},
		{"  \\___||_| |_|\\__,_|\\__|_| |_|\\___/ \\_/\\_/  ", "#60a5fa"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, out.String(l.text).Foreground(p.Color(l.color)))
	}
	if v := strings.TrimSpace(version); v != "" {
		fmt.Fprintln(w, out.String("  v"+v).Faint())
	}
	fmt.Fprintln(w)
}
