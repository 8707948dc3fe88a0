package assembler

import (
	"errors"
	"fmt"
)

// ErrNotConfigured matches every *NotConfiguredError.
var ErrNotConfigured = errors.New("resource not configured")

// NotConfiguredError is returned by Assemble for names that are not declared.
type NotConfiguredError struct {
	Name string
}

func (e *NotConfiguredError) Error() string {
	return fmt.Sprintf("resource %q is not configured", e.Name)
}

// Is reports whether target is ErrNotConfigured.
func (e *NotConfiguredError) Is(target error) bool {
	return target == ErrNotConfigured
}

// Hint returns a user-friendly suggestion for resolving this error.
func (e *NotConfiguredError) Hint() string {
	return fmt.Sprintf("Declare %q under api-tools.doctrine-connected.", e.Name)
}

// ConfigError reports a declaration that exists but cannot be honoured.
// Key is the configuration path at fault, e.g.
// api-tools.doctrine-connected.<name>.object_manager.
type ConfigError struct {
	Name    string
	Key     string
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("resource %q: %s: %s", e.Name, e.Key, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Hint returns a user-friendly suggestion for resolving this error.
func (e *ConfigError) Hint() string {
	return fmt.Sprintf("Fix %s in your configuration and run `restwire validate`.", e.Key)
}

func connectedKey(name string, field ...string) string {
	key := fmt.Sprintf("api-tools.doctrine-connected[%q]", name)
	for _, f := range field {
		key += "." + f
	}
	return key
}
