package middleware

import (
	"context"
	"encoding/json"
	"regexp"

	"github.com/aretw0/keystone/pkg/ports"
)

const mask = "***"

type piiMiddleware struct {
	base
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that masks, on read, values of JSON keys matching the patterns.
// Writes pass through untouched so the stored lead stays complete.
func NewPIIMiddleware(patternStrings []string) Middleware {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		patterns[i] = regexp.MustCompile(p)
	}
	return func(next ports.ResponseStore) ports.ResponseStore {
		return &piiMiddleware{base: base{next: next}, patterns: patterns}
	}
}

func (m *piiMiddleware) Write(ctx context.Context, key string, value json.RawMessage) (ports.LogEntry, error) {
	return m.next.Write(ctx, key, value)
}

func (m *piiMiddleware) Read(ctx context.Context, key string) ([]ports.LogEntry, error) {
	entries, err := m.next.Read(ctx, key)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		entries[i].Value = m.maskValue(entries[i].Value)
	}
	return entries, nil
}

func (m *piiMiddleware) Delete(ctx context.Context, key string) (int, error) {
	return m.next.Delete(ctx, key)
}

// maskValue leaves values that are not JSON objects unchanged.
func (m *piiMiddleware) maskValue(raw json.RawMessage) json.RawMessage {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return raw
	}
	maskMap(doc, m.patterns)
	out, err := json.Marshal(doc)
	if err != nil {
		return raw
	}
	return out
}

// Helpers

func maskMap(m map[string]any, patterns []*regexp.Regexp) {
	for k, v := range m {
		// Check key against patterns
		matched := false
		for _, p := range patterns {
			if p.MatchString(k) {
				m[k] = mask
				matched = true
				break
			}
		}
		if matched {
			continue
		}

		// Recurse if map
		if subMap, ok := v.(map[string]any); ok {
			maskMap(subMap, patterns)
		}
	}
}
