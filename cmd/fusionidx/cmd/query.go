package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	fuserr "github.com/Aman-CERP/fusionidx/internal/errors"
	"github.com/Aman-CERP/fusionidx/internal/store"
)

// rangeFlags holds the bounds of a range query as raw arguments.
type rangeFlags struct {
	gt, gte, lt, lte string
}

func (r rangeFlags) query() (*store.Query, error) {
	if r.gt != "" && r.gte != "" {
		return nil, fuserr.Newf(fuserr.ErrCodeInvalidQuery, "use only one of --gt and --gte")
	}
	if r.lt != "" && r.lte != "" {
		return nil, fuserr.Newf(fuserr.ErrCodeInvalidQuery, "use only one of --lt and --lte")
	}
	lower, includeLower := r.gt, false
	if r.gte != "" {
		lower, includeLower = r.gte, true
	}
	upper, includeUpper := r.lt, false
	if r.lte != "" {
		upper, includeUpper = r.lte, true
	}
	return store.RangeQuery(parseOptionalValue(lower), includeLower, parseOptionalValue(upper), includeUpper), nil
}

// queryResult is the JSON form of a query.
type queryResult struct {
	Index     string  `json:"index"`
	Kind      string  `json:"kind"`
	EntityIDs []int64 `json:"entity_ids"`
}

func (a *app) newQueryCmd() *cobra.Command {
	var bounds rangeFlags

	cmd := &cobra.Command{
		Use:   "query <index> <exact|range|prefix|contains|exists> [args]...",
		Short: "Find entities in an index",
		Long: `Find the entity IDs matching a query, in ascending order.

  exact <value>...   one value per property key
  range              single-key indexes; bounds from --gt/--gte/--lt/--lte
  prefix <text>      single-key indexes; text values starting with text
  contains <text>    single-key indexes; text values containing text
  exists             every indexed entity`,
		Example: `  fusionidx query people exact alice
  fusionidx query ages range --gte 18 --lt 65
  fusionidx query people prefix al
  fusionidx query people exists --json`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := buildQuery(args[1], args[2:], bounds)
			if err != nil {
				return err
			}
			return a.runQuery(cmd, args[0], q)
		},
	}

	cmd.Flags().StringVar(&bounds.gt, "gt", "", "Range lower bound, exclusive")
	cmd.Flags().StringVar(&bounds.gte, "gte", "", "Range lower bound, inclusive")
	cmd.Flags().StringVar(&bounds.lt, "lt", "", "Range upper bound, exclusive")
	cmd.Flags().StringVar(&bounds.lte, "lte", "", "Range upper bound, inclusive")

	return cmd
}

func buildQuery(kind string, args []string, bounds rangeFlags) (*store.Query, error) {
	needs := func(n int) error {
		if len(args) != n {
			return fuserr.Newf(fuserr.ErrCodeInvalidQuery, "%s query takes %d argument(s), got %d", kind, n, len(args))
		}
		return nil
	}

	switch strings.ToLower(kind) {
	case "exact":
		if len(args) == 0 {
			return nil, fuserr.Newf(fuserr.ErrCodeInvalidQuery, "exact query needs at least one value")
		}
		return store.ExactQuery(parseValues(args)...), nil
	case "range":
		if err := needs(0); err != nil {
			return nil, err
		}
		return bounds.query()
	case "prefix":
		if err := needs(1); err != nil {
			return nil, err
		}
		return store.PrefixQuery(args[0]), nil
	case "contains":
		if err := needs(1); err != nil {
			return nil, err
		}
		return store.ContainsQuery(args[0]), nil
	case "exists":
		if err := needs(0); err != nil {
			return nil, err
		}
		return store.ExistsQuery(), nil
	default:
		return nil, fuserr.Newf(fuserr.ErrCodeInvalidQuery, "unknown query kind %q", kind).
			WithSuggestion("use exact, range, prefix, contains or exists")
	}
}

func (a *app) runQuery(cmd *cobra.Command, name string, q *store.Query) error {
	p, err := a.openProvider()
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()

	h, err := p.Open(cmd.Context(), name)
	if err != nil {
		return err
	}
	defer func() { _ = h.Close() }()

	ids, err := h.Query(cmd.Context(), q)
	if err != nil {
		return err
	}

	if a.jsonOutput {
		return writeJSON(cmd.OutOrStdout(), queryResult{Index: name, Kind: q.Kind.String(), EntityIDs: ids})
	}
	for _, id := range ids {
		if _, err := fmt.Fprintln(cmd.OutOrStdout(), id); err != nil {
			return err
		}
	}
	return nil
}
