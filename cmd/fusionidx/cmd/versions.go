package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/fusionidx/internal/fusion"
)

// selectorView is the JSON form of a registered slot selector.
type selectorView struct {
	Version   string   `json:"version"`
	Slots     []string `json:"slots"`
	Default   bool     `json:"default"`
	Supported bool     `json:"supported"`
}

func (a *app) newVersionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "versions",
		Short: "List slot selector versions",
		Long: `List the slot selector versions this build can route for, the
backends each needs, and whether the configured fusion.backends satisfy it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			configured, err := cfg.BackendSlots()
			if err != nil {
				return err
			}

			registry := fusion.DefaultRegistry()
			var views []selectorView
			for _, v := range registry.Versions() {
				sel, err := registry.Lookup(v)
				if err != nil {
					return err
				}
				views = append(views, selectorView{
					Version:   string(v),
					Slots:     fusion.SlotNames(sel.RequiredSlots()),
					Default:   string(v) == cfg.Fusion.DefaultVersion,
					Supported: sel.ValidateSatisfied(slotList(configured)) == nil,
				})
			}

			if a.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), views)
			}

			rows := make([][]string, len(views))
			for i, v := range views {
				mark := ""
				if v.Default {
					mark = "*"
				}
				supported := "yes"
				if !v.Supported {
					supported = "no"
				}
				rows[i] = []string{v.Version + mark, strings.Join(v.Slots, ","), supported}
			}
			a.printer(cmd).Table([]string{"VERSION", "SLOTS", "SUPPORTED"}, rows)
			return nil
		},
	}
}

// slotList adapts a slot slice to fusion.Configured.
type slotList []fusion.Slot

func (s slotList) Slots() []fusion.Slot { return s }
