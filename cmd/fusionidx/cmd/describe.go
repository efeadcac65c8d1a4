package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/fusionidx/internal/fusion"
)

func (a *app) newDescribeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "describe <index>",
		Short: "Show an index's selector, keys and per-backend entry counts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.openProvider()
			if err != nil {
				return err
			}
			defer func() { _ = p.Close() }()

			desc, err := p.Describe(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			view := newIndexView(desc.Descriptor)
			view.Entries = make(map[string]int, len(desc.SlotCounts))
			for slot, n := range desc.SlotCounts {
				view.Entries[slot.String()] = n
			}
			view.OnDisk = backendNames(desc.OnDisk)

			if a.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), view)
			}

			out := a.printer(cmd)
			out.Header(view.Name)
			out.KeyValues(
				"version", view.Version,
				"keys", strings.Join(view.PropertyKeys, ", "),
				"created", view.CreatedAt.Format(time.RFC3339),
			)
			rows := make([][]string, 0, len(desc.SlotCounts))
			for _, slot := range fusion.SortSlots(desc.Descriptor.Slots) {
				rows = append(rows, []string{slot.String(), fmt.Sprint(desc.SlotCounts[slot])})
			}
			out.Table([]string{"SLOT", "ENTRIES"}, rows)
			return nil
		},
	}
}

func (a *app) newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List indexes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := a.openProvider()
			if err != nil {
				return err
			}
			defer func() { _ = p.Close() }()

			list, err := p.List(cmd.Context())
			if err != nil {
				return err
			}

			if a.jsonOutput {
				views := make([]indexView, len(list))
				for i, d := range list {
					views[i] = newIndexView(d)
				}
				return writeJSON(cmd.OutOrStdout(), views)
			}

			out := a.printer(cmd)
			if len(list) == 0 {
				out.Warn("no indexes; create one with 'fusionidx create <name> --keys <key>'")
				return nil
			}
			rows := make([][]string, len(list))
			for i, d := range list {
				rows[i] = []string{
					d.Name,
					string(d.Version),
					strings.Join(d.PropertyKeys, ","),
					strings.Join(fusion.SlotNames(d.Slots), ","),
				}
			}
			out.Table([]string{"NAME", "SELECTOR", "KEYS", "SLOTS"}, rows)
			return nil
		},
	}
}

func (a *app) newDropCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "drop <index>",
		Short: "Delete an index and its backend files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.openProvider()
			if err != nil {
				return err
			}
			defer func() { _ = p.Close() }()

			if err := p.Drop(cmd.Context(), args[0]); err != nil {
				return err
			}
			if a.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), map[string]string{"dropped": args[0]})
			}
			a.printer(cmd).Success("dropped index %s", args[0])
			return nil
		},
	}
}
