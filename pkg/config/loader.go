package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// Common errors for configuration loading.
var (
	ErrFileNotFound     = errors.New("configuration file not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrInvalidJSON      = errors.New("invalid JSON syntax")
	ErrInvalidYAML      = errors.New("invalid YAML syntax")
	ErrEmptyFile        = errors.New("configuration file is empty")
	ErrNotAMap          = errors.New("configuration root must be a map")
	ErrNoSources        = errors.New("no configuration files matched")
)

// Load expands each pattern (doublestar globs allowed), reads the matching
// files and merges them into a single Store. Matches of a single pattern are
// merged in lexical order; patterns are merged in the order given.
// A pattern without glob metacharacters must name an existing file.
func Load(patterns ...string) (*Store, error) {
	tree := map[string]any{}
	loaded := 0

	for _, pattern := range patterns {
		files, err := expandPattern(pattern)
		if err != nil {
			return nil, err
		}
		for _, path := range files {
			data, err := LoadFile(path)
			if err != nil {
				return nil, err
			}
			tree = Merge(tree, data)
			loaded++
		}
	}

	if loaded == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoSources, strings.Join(patterns, ", "))
	}

	return New(tree), nil
}

// LoadFile reads one JSON or YAML file into a map.
// The format is detected from the extension (.yaml, .yml for YAML, otherwise JSON).
// ${VAR} references are expanded from the environment before parsing.
func LoadFile(path string) (map[string]any, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		if os.IsPermission(err) {
			return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, path)
		}
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	if info.IsDir() {
		return nil, fmt.Errorf("path is a directory, not a file: %s", path)
	}

	file, err := os.Open(path)
	if err != nil {
		if os.IsPermission(err) {
			return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, path)
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyFile, path)
	}

	data = []byte(os.ExpandEnv(string(data)))

	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".yaml" || ext == ".yml" {
		tree, err := ParseYAML(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return tree, nil
	}

	tree, err := ParseJSON(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return tree, nil
}

// ParseYAML parses a YAML document into a configuration tree.
func ParseYAML(data []byte) (map[string]any, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}
	return asTree(raw)
}

// ParseJSON parses a JSON document into a configuration tree.
func ParseJSON(data []byte) (map[string]any, error) {
	if !json.Valid(data) {
		return nil, ErrInvalidJSON
	}
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	return asTree(raw)
}

func asTree(raw any) (map[string]any, error) {
	if raw == nil {
		return map[string]any{}, nil
	}
	tree, ok := normalize(raw).(map[string]any)
	if !ok {
		return nil, ErrNotAMap
	}
	return tree, nil
}

// normalize converts map[any]any (possible with YAML non-string keys) into
// map[string]any recursively so the rest of the package sees one shape.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	default:
		return v
	}
}

// expandPattern returns the files matching pattern in lexical order.
func expandPattern(pattern string) ([]string, error) {
	if !hasMeta(pattern) {
		return []string{pattern}, nil
	}

	matches, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		return nil, fmt.Errorf("expanding glob pattern %q: %w", pattern, err)
	}

	files := matches[:0]
	for _, m := range matches {
		if info, err := os.Stat(m); err == nil && !info.IsDir() {
			files = append(files, m)
		}
	}
	sort.Strings(files)
	return files, nil
}

func hasMeta(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[{")
}
