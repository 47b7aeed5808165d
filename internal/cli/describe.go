package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"GistAPI/internal/access"
	"GistAPI/internal/apperr"
	"GistAPI/internal/model"
	"GistAPI/internal/query"
	"GistAPI/internal/resolver"
)

// NewDescribeCommand plans a request offline, as superuser, and prints the
// describe report including the generated statements.
func NewDescribeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "describe <resource> [query]",
		Short:   "Show how a Gist request would be planned",
		Example: `  gist describe organisationUnits 'fields=id,parent.name&filter=level:eq:2'`,
		Args:    cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.bootstrap()
			if err != nil {
				return err
			}
			raw := ""
			if len(args) == 2 {
				raw = strings.TrimPrefix(args[1], "?")
			}
			res, err := describe(cmd.Context(), resolver.New(nil, resolverOptions(cfg)), queryDefaults(cfg), args[0], raw)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
}

func describe(ctx context.Context, r *resolver.Resolver, defaults query.Defaults, resource, raw string) (*resolver.DescribeResult, error) {
	m, ok := model.Registry().ByPlural(resource)
	if !ok {
		var err error
		if m, err = model.Registry().Describe(resource); err != nil {
			return nil, apperr.ErrNotFound("Resource `%s` does not exist.", resource)
		}
	}
	values, err := url.ParseQuery(raw)
	if err != nil {
		return nil, fmt.Errorf("query string: %w", err)
	}
	q, err := query.FromValues(values, defaults)
	if err != nil {
		return resolver.DescribeFailure(values, err), nil
	}
	q.Describe = true
	return r.Describe(ctx, resolver.Request{Schema: m, Query: q, Principal: access.System()}), nil
}
