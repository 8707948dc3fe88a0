package config

import (
	"fmt"

	"github.com/ohler55/ojg/jp"
)

// Query evaluates a JSONPath expression against the configuration tree,
// e.g. `$['api-tools-rest'][*].listener`.
func (s *Store) Query(path string) ([]any, error) {
	x, err := jp.ParseString(path)
	if err != nil {
		return nil, fmt.Errorf("invalid JSONPath %q: %w", path, err)
	}
	results := x.Get(s.tree)
	out := make([]any, len(results))
	for i, r := range results {
		out[i] = deepCopy(r)
	}
	return out, nil
}
