package middleware

import (
	"context"
	"fmt"
	"regexp"

	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/ports"
)

// Mask replaces the values of masked keys.
const Mask = "***"

type piiMiddleware struct {
	next     ports.SessionStore
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that masks run variables and session
// memory entries whose key matches one of the patterns before they are
// stored. The in-memory session is left untouched. Masking is one way:
// loaded sessions carry the mask.
func NewPIIMiddleware(patterns []string) (Middleware, error) {
	compiled := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid mask pattern %q: %w", p, err)
		}
		compiled[i] = re
	}
	return func(next ports.SessionStore) ports.SessionStore {
		return &piiMiddleware{next: next, patterns: compiled}
	}, nil
}

func (m *piiMiddleware) Save(ctx context.Context, s *domain.Session) error {
	masked := s.Clone()
	ec := &masked.Execution.Context
	ec.Variables = deepCopyMap(ec.Variables)
	ec.SessionMemory = deepCopyMap(ec.SessionMemory)
	maskMap(ec.Variables, m.patterns)
	maskMap(ec.SessionMemory, m.patterns)
	return m.next.Save(ctx, masked)
}

func (m *piiMiddleware) Load(ctx context.Context, sessionID string) (*domain.Session, error) {
	return m.next.Load(ctx, sessionID)
}

func (m *piiMiddleware) Delete(ctx context.Context, sessionID string) error {
	return m.next.Delete(ctx, sessionID)
}

func (m *piiMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

func deepCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if sub, ok := v.(map[string]any); ok {
			out[k] = deepCopyMap(sub)
		} else {
			out[k] = v
		}
	}
	return out
}

// maskMap masks in place, walking nested maps.
func maskMap(values map[string]any, patterns []*regexp.Regexp) {
	for k, v := range values {
		if matchesAny(k, patterns) {
			values[k] = Mask
			continue
		}
		if sub, ok := v.(map[string]any); ok {
			maskMap(sub, patterns)
		}
	}
}

func matchesAny(key string, patterns []*regexp.Regexp) bool {
	for _, p := range patterns {
		if p.MatchString(key) {
			return true
		}
	}
	return false
}
