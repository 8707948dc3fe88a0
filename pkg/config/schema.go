package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema.json
var schemaJSON []byte

var (
	compiledSchema *jsonschema.Schema
	compileErr     error
	compileOnce    sync.Once
)

// ValidationError is a single schema violation.
type ValidationError struct {
	Path    string // JSON pointer into the config tree, e.g. "/object_managers/orm.default/type"
	Message string
}

func (e ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

// ValidationResult collects every schema violation found in a store.
type ValidationResult struct {
	Errors []ValidationError
}

// IsValid returns true if there are no validation errors.
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// Error returns a combined error message.
func (r *ValidationResult) Error() string {
	if r.IsValid() {
		return ""
	}
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "\n")
}

// AddError adds a validation error.
func (r *ValidationResult) AddError(path, message string) {
	r.Errors = append(r.Errors, ValidationError{Path: path, Message: message})
}

// Validate checks the store against the embedded configuration schema.
// It validates shapes only; whether a declared resource can actually be
// assembled is decided by the assembler.
func (s *Store) Validate() *ValidationResult {
	result := &ValidationResult{}

	schema, err := loadSchema()
	if err != nil {
		result.AddError("", fmt.Sprintf("schema compilation error: %v", err))
		return result
	}

	// Round-trip through JSON so numbers and maps have the types the validator expects.
	raw, err := json.Marshal(s.tree)
	if err != nil {
		result.AddError("", fmt.Sprintf("config is not representable as JSON: %v", err))
		return result
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		result.AddError("", err.Error())
		return result
	}

	if err := schema.Validate(doc); err != nil {
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			collectSchemaErrors(verr, result)
		} else {
			result.AddError("", err.Error())
		}
	}
	return result
}

func loadSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		if err := compiler.AddResource("schema.json", bytes.NewReader(schemaJSON)); err != nil {
			compileErr = fmt.Errorf("failed to add schema resource: %w", err)
			return
		}
		compiledSchema, compileErr = compiler.Compile("schema.json")
	})
	return compiledSchema, compileErr
}

// collectSchemaErrors flattens the validator's cause tree into leaf errors.
func collectSchemaErrors(err *jsonschema.ValidationError, result *ValidationResult) {
	if len(err.Causes) == 0 {
		result.AddError(err.InstanceLocation, err.Message)
		return
	}
	for _, cause := range err.Causes {
		collectSchemaErrors(cause, result)
	}
}
