package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the merged configuration",
	}
	cmd.AddCommand(newConfigGetCmd(a))
	return cmd
}

func newConfigGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get PATH",
		Short: "Print a value from the merged configuration",
		Long: `Print a value from the merged configuration.

PATH is either a JSONPath expression starting with '$', which may match several
values, or a slash-separated key path. Keys may contain dots, so
api-tools/doctrine-connected/widgets/object_manager is one path of four keys.`,
		Example: `  restwire config get '$.api-tools.doctrine-connected.*.object_manager'
  restwire config get api-tools/doctrine-connected/widgets`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.loadStore()
			if err != nil {
				return err
			}

			path := args[0]
			if strings.HasPrefix(path, "$") {
				values, err := store.Query(path)
				if err != nil {
					return err
				}
				if len(values) == 0 {
					return fmt.Errorf("no configuration value matches %s", path)
				}
				return a.printYAML(values)
			}

			keys := strings.Split(strings.Trim(path, "/"), "/")
			value, ok := store.Get(keys...)
			if !ok {
				return fmt.Errorf("configuration key %s not found", path)
			}
			return a.printYAML(value)
		},
	}
}
