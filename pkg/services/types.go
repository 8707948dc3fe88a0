package services

import (
	"fmt"

	"github.com/getmockd/restwire/pkg/auth"
	"github.com/getmockd/restwire/pkg/persistence"
)

// Component type names accepted in the typed sections.
const (
	TypeORM        = "orm"
	TypeODM        = "odm"
	TypeAlias      = "alias"
	TypeField      = "field"
	TypeOwner      = "owner_scoped"
	TypeExpression = "expression"
	TypeLog        = "log"
	TypeGuard      = "guard"
	TypeAudit      = "audit"
)

// ObjectManagerConfig declares one entry of the object_managers section.
type ObjectManagerConfig struct {
	Type        string                                 `mapstructure:"type"`
	Driver      string                                 `mapstructure:"driver"`
	DSN         string                                 `mapstructure:"dsn"`
	Entities    map[string]string                      `mapstructure:"entities"`
	Migrations  []string                               `mapstructure:"migrations"`
	Collections map[string]persistence.CollectionConfig `mapstructure:"collections"`

	// Target is the object manager an alias entry resolves to.
	Target string `mapstructure:"target"`
}

// HydratorConfig declares one entry of the hydrators section.
type HydratorConfig struct {
	Type    string            `mapstructure:"type"`
	Rename  map[string]string `mapstructure:"rename"`
	Exclude []string          `mapstructure:"exclude"`
}

// QueryProviderConfig declares one entry of the query_providers section.
type QueryProviderConfig struct {
	Type  string `mapstructure:"type"`
	Field string `mapstructure:"field"`
	Claim string `mapstructure:"claim"`
}

// FilterConfig declares one entry of the query_create_filters section.
type FilterConfig struct {
	Type      string            `mapstructure:"type"`
	Condition string            `mapstructure:"condition"`
	Assign    map[string]string `mapstructure:"assign"`
}

// ListenerConfig declares one entry of the listeners section.
type ListenerConfig struct {
	Type      string   `mapstructure:"type"`
	Level     string   `mapstructure:"level"`
	Condition string   `mapstructure:"condition"`
	Message   string   `mapstructure:"message"`
	Events    []string `mapstructure:"events"`
	// Output is "stdout", "stderr" or a file path; audit listeners only.
	Output string `mapstructure:"output"`
	Strict bool   `mapstructure:"strict"`
}

// OAuth2Config is the oauth2 section. The authorization server is registered
// only when Enabled is set.
type OAuth2Config struct {
	Enabled       bool     `mapstructure:"enabled"`
	// RevokedTokens are rejected by the authorization server from startup.
	RevokedTokens []string `mapstructure:"revoked_tokens"`

	auth.Config `mapstructure:",squash"`
}

// ComponentError reports an entry of a typed section that cannot be built.
type ComponentError struct {
	Section string
	Name    string
	Message string
	Err     error
}

func (e *ComponentError) Error() string {
	msg := fmt.Sprintf("%s[%q]: %s", e.Section, e.Name, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ComponentError) Unwrap() error { return e.Err }

// Hint returns a user-friendly suggestion for resolving this error.
func (e *ComponentError) Hint() string {
	return fmt.Sprintf("Check the %q entry of the %s section.", e.Name, e.Section)
}
