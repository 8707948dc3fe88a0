package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/getmockd/restwire/pkg/cli/internal/parse"
	"github.com/getmockd/restwire/pkg/resource"
)

const keyToken = "token"

// reader is the read side of a connected resource.
type reader interface {
	Fetch(ctx context.Context, id string) (map[string]any, error)
	FetchAll(ctx context.Context, params map[string]string) (*resource.Collection, error)
}

func newFetchCmd(a *app) *cobra.Command {
	var (
		id     string
		params []string
		limit  int
		offset int
		sortBy string
		order  string
	)

	cmd := &cobra.Command{
		Use:   "fetch NAME",
		Short: "Fetch an entity or a page of a collection through a resource",
		Long: `Fetch assembles NAME and reads through its query providers. With --id
one entity is returned; otherwise a page of the collection.

The bearer token is taken from --token or RESTWIRE_TOKEN and is handed to the
query providers, so owner-scoped providers see the caller's identity.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := parse.Params(params)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("limit") {
				query[resource.ParamLimit] = strconv.Itoa(limit)
			}
			if cmd.Flags().Changed("offset") {
				query[resource.ParamOffset] = strconv.Itoa(offset)
			}
			if sortBy != "" {
				query[resource.ParamSort] = sortBy
			}
			if order != "" {
				query[resource.ParamOrder] = order
			}

			c, err := a.container()
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			ctx := cmd.Context()
			r, err := c.Assembler.Assemble(ctx, args[0])
			if err != nil {
				return err
			}
			rd, ok := r.(reader)
			if !ok {
				return fmt.Errorf("resource %q (%T) does not support reads", args[0], r)
			}
			if token := a.v.GetString(keyToken); token != "" {
				ctx = resource.WithToken(ctx, token)
			}

			if id != "" {
				entity, err := rd.Fetch(ctx, id)
				if err != nil {
					return err
				}
				return a.printYAML(entity)
			}

			page, err := rd.FetchAll(ctx, query)
			if err != nil {
				return err
			}
			if err := a.printYAML(page); err != nil {
				return err
			}
			if !a.jsonOutput() {
				fmt.Fprintf(a.stderr, "%d of %d (offset %d)\n", page.Meta.Count, page.Meta.Total, page.Meta.Offset)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Fetch the single entity with this identifier")
	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "Query parameter key=value (repeatable)")
	cmd.Flags().IntVar(&limit, "limit", resource.DefaultLimit, "Page size")
	cmd.Flags().IntVar(&offset, "offset", 0, "Page offset")
	cmd.Flags().StringVar(&sortBy, "sort", "", "Field to sort by")
	cmd.Flags().StringVar(&order, "order", "", "Sort order (asc, desc)")
	cmd.Flags().String(keyToken, "", "Bearer token handed to the query providers")
	_ = a.v.BindPFlag(keyToken, cmd.Flags().Lookup(keyToken))
	return cmd
}
