package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/getmockd/restwire/pkg/config"
	"github.com/getmockd/restwire/pkg/services"
)

// ValidateOutput is the result of restwire validate.
type ValidateOutput struct {
	Valid      bool                     `json:"valid"`
	Schema     []config.ValidationError `json:"schema,omitempty"`
	Components string                   `json:"components,omitempty"`
	Resources  []ResourceStatus         `json:"resources"`
}

// ResourceStatus reports whether one declared resource assembles.
type ResourceStatus struct {
	Name  string `json:"name"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	Hint  string `json:"hint,omitempty"`
}

func newValidateCmd(a *app) *cobra.Command {
	var schemaOnly bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration and every declared resource",
		Long: `Validate loads and merges the configuration, checks it against the
schema, builds every configured component and assembles each resource declared
under api-tools.doctrine-connected.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.loadStore()
			if err != nil {
				return err
			}

			out := ValidateOutput{Valid: true, Resources: []ResourceStatus{}}
			if res := store.Validate(); !res.IsValid() {
				out.Valid = false
				out.Schema = res.Errors
			}

			if !schemaOnly {
				a.validateResources(cmd.Context(), store, &out)
			}

			if err := a.printResult(out, func() { a.printValidation(out) }); err != nil {
				return err
			}
			if !out.Valid {
				return ErrInvalid
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&schemaOnly, "schema-only", false, "Only check the configuration schema")
	return cmd
}

func (a *app) validateResources(ctx context.Context, store *config.Store, out *ValidateOutput) {
	c, err := services.Build(store, services.WithLogger(a.log), services.WithTracer(a.tracer.Tracer()))
	if err != nil {
		out.Valid = false
		out.Components = err.Error()
		return
	}
	defer func() { _ = c.Close() }()

	for _, name := range store.ConnectedNames() {
		status := ResourceStatus{Name: name, OK: true}
		if _, err := c.Assembler.Assemble(ctx, name); err != nil {
			out.Valid = false
			status.OK = false
			status.Error = err.Error()
			var h hinter
			if errors.As(err, &h) {
				status.Hint = h.Hint()
			}
		}
		out.Resources = append(out.Resources, status)
	}
}

func (a *app) printValidation(out ValidateOutput) {
	for _, e := range out.Schema {
		fmt.Fprintf(a.stdout, "schema: %s\n", e.Error())
	}
	if out.Components != "" {
		fmt.Fprintf(a.stdout, "components: %s\n", out.Components)
	}
	for _, r := range out.Resources {
		if r.OK {
			fmt.Fprintf(a.stdout, "ok    %s\n", r.Name)
			continue
		}
		fmt.Fprintf(a.stdout, "FAIL  %s: %s\n", r.Name, r.Error)
		if r.Hint != "" {
			fmt.Fprintf(a.stdout, "      hint: %s\n", r.Hint)
		}
	}
	if out.Valid {
		fmt.Fprintf(a.stdout, "configuration is valid (%d resources)\n", len(out.Resources))
	}
}
