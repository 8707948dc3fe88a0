// Package parse provides string parsing utilities for CLI commands.
package parse

import (
	"encoding/json"
	"fmt"
	"strings"
)

// KeyValue parses a "key:value" or "key=value" string.
// If delimiters are provided, uses the first one found; otherwise defaults to '='.
// Returns the key, value, and a boolean indicating success.
func KeyValue(s string, delimiters ...rune) (key, value string, ok bool) {
	if len(delimiters) == 0 {
		delimiters = []rune{'='}
	}

	for i, c := range s {
		for _, d := range delimiters {
			if c == d {
				return s[:i], s[i+1:], true
			}
		}
	}
	return "", "", false
}

// Params parses "key=value" pairs into query parameters.
func Params(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		key, value, ok := KeyValue(p)
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid parameter %q (want key=value)", p)
		}
		out[strings.TrimSpace(key)] = value
	}
	return out, nil
}

// Claims parses "key=value" pairs into token claims. Values that are valid
// JSON (numbers, booleans, arrays, objects) are decoded; anything else is
// kept as a string.
func Claims(pairs []string) (map[string]any, error) {
	params, err := Params(pairs)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(params))
	for k, v := range params {
		var decoded any
		if err := json.Unmarshal([]byte(v), &decoded); err == nil {
			out[k] = decoded
			continue
		}
		out[k] = v
	}
	return out, nil
}
