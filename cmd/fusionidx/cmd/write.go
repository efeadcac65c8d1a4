package cmd

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/fusionidx/internal/store"
	"github.com/Aman-CERP/fusionidx/internal/value"
)

// writeResult is the JSON form of an add or remove.
type writeResult struct {
	Index    string   `json:"index"`
	EntityID int64    `json:"entity_id"`
	Values   []string `json:"values"`
	Slot     string   `json:"slot,omitempty"`
	Skipped  bool     `json:"skipped,omitempty"`
}

func (a *app) newAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <index> <entity-id> <value>...",
		Short: "Index an entity under a tuple of values",
		Long: `Index an entity under one value per property key of the index.

Values that no backend can hold, such as null, are skipped.`,
		Example: `  fusionidx add people 1 alice
  fusionidx add ages 7 42
  fusionidx add pairs 3 '"ada"' '"lovelace"'`,
		Args: cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runWrite(cmd, args, store.Added)
		},
	}
}

func (a *app) newRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <index> <entity-id> <value>...",
		Short: "Remove an entity's entry for a tuple of values",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runWrite(cmd, args, store.Removed)
		},
	}
}

func (a *app) runWrite(cmd *cobra.Command, args []string, update func(int64, ...value.Value) store.Update) error {
	name := args[0]
	id, err := parseEntityID(args[1])
	if err != nil {
		return err
	}
	values := parseValues(args[2:])
	u := update(id, values...)

	res, err := a.applyUpdate(cmd.Context(), name, u, values)
	if err != nil {
		return err
	}

	if a.jsonOutput {
		return writeJSON(cmd.OutOrStdout(), res)
	}
	out := a.printer(cmd)
	shown := strings.Join(res.Values, ", ")
	switch {
	case res.Skipped:
		out.Warn("skipped entity %d: (%s) has no backend", id, shown)
	case u.Kind == store.UpdateRemoved:
		out.Success("removed entity %d (%s) from %s", id, shown, out.Slot(res.Slot))
	default:
		out.Success("indexed entity %d (%s) in %s", id, shown, out.Slot(res.Slot))
	}
	return nil
}

func (a *app) applyUpdate(ctx context.Context, name string, u store.Update, values []value.Value) (*writeResult, error) {
	p, err := a.openProvider()
	if err != nil {
		return nil, err
	}
	defer func() { _ = p.Close() }()

	h, err := p.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer func() { _ = h.Close() }()

	if err := h.Apply(ctx, []store.Update{u}); err != nil {
		return nil, err
	}

	res := &writeResult{Index: name, EntityID: u.EntityID, Values: formatValues(values)}
	if slot, ok := h.Route(values); ok {
		res.Slot = slot.String()
	} else {
		res.Skipped = true
	}
	return res, nil
}
