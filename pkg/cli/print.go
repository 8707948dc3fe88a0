package cli

import (
	"gopkg.in/yaml.v3"

	"github.com/getmockd/restwire/pkg/cli/internal/output"
)

// printResult outputs a single operation result.
//
// Contract: when --json is active, ONLY the JSON encoding of data is written
// to stdout. Human-readable prose (progress messages, hints) must go to stderr
// or be omitted entirely. textFn is called only in text mode.
func (a *app) printResult(data any, textFn func()) error {
	if a.jsonOutput() {
		return output.JSON(a.stdout, data)
	}
	textFn()
	return nil
}

// printYAML renders data as YAML in text mode and JSON otherwise.
func (a *app) printYAML(data any) error {
	if a.jsonOutput() {
		return output.JSON(a.stdout, data)
	}
	enc := yaml.NewEncoder(a.stdout)
	enc.SetIndent(2)
	if err := enc.Encode(data); err != nil {
		return err
	}
	return enc.Close()
}
