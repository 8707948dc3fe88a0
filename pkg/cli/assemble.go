package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/getmockd/restwire/pkg/cli/internal/output"
	"github.com/getmockd/restwire/pkg/resource"
)

func newAssembleCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "assemble NAME",
		Short: "Assemble a resource and show how it was wired",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.container()
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			r, err := c.Assembler.Assemble(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			d := resource.Describe(r)
			return a.printResult(d, func() { a.printDescription(d) })
		},
	}
}

func (a *app) printDescription(d resource.Description) {
	w := output.Table(a.stdout)
	fmt.Fprintf(w, "Resource:\t%s\n", d.Name)
	fmt.Fprintf(w, "Entity class:\t%s\n", d.EntityClass)
	if d.EntityIdentifierName != "" {
		fmt.Fprintf(w, "Identifier:\t%s\n", d.EntityIdentifierName)
	} else {
		output.Warn(a.stderr, "resource %q has no entity_identifier_name, falling back to %q", d.Name, "id")
	}
	fmt.Fprintf(w, "Object manager:\t%s\n", d.ObjectManager)
	if d.Hydrator != "" {
		fmt.Fprintf(w, "Hydrator:\t%s\n", d.Hydrator)
	}
	fmt.Fprintf(w, "Create filter:\t%s\n", d.QueryCreateFilter)
	fmt.Fprintf(w, "Authorized:\t%t\n", d.Authorized)
	fmt.Fprintf(w, "Listeners:\t%d\n", d.Listeners)

	ops := make([]string, 0, len(d.QueryProviders))
	for op := range d.QueryProviders {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	for _, op := range ops {
		fmt.Fprintf(w, "Query provider %s:\t%s\n", op, d.QueryProviders[op])
	}
	_ = w.Flush()
}
