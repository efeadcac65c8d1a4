package cmd

import (
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/fusionidx/internal/descriptor"
	"github.com/Aman-CERP/fusionidx/internal/fusion"
	"github.com/Aman-CERP/fusionidx/internal/store"
)

// indexView is the JSON form of an index descriptor.
type indexView struct {
	Name         string         `json:"name"`
	Version      string         `json:"version"`
	PropertyKeys []string       `json:"property_keys"`
	Slots        []string       `json:"slots"`
	CreatedAt    time.Time      `json:"created_at"`
	Entries      map[string]int `json:"entries,omitempty"`
	OnDisk       []string       `json:"on_disk,omitempty"`
}

func newIndexView(d *descriptor.Descriptor) indexView {
	return indexView{
		Name:         d.Name,
		Version:      string(d.Version),
		PropertyKeys: d.PropertyKeys,
		Slots:        fusion.SlotNames(d.Slots),
		CreatedAt:    d.CreatedAt,
	}
}

func backendNames(kinds []store.BackendKind) []string {
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = string(k)
	}
	return out
}

func (a *app) newCreateCmd() *cobra.Command {
	var keys []string
	var selectorVersion string

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a fusion index",
		Long: `Create a fusion index over one or more property keys.

The index is bound to a slot selector version for its lifetime. The
backends configured in fusion.backends must be exactly the slots that
version routes to, otherwise nothing is created.`,
		Example: `  # Index a single property with the default selector
  fusionidx create people --keys name

  # Composite index on the generic backend only
  fusionidx create pairs --keys first,last --selector native-1.0`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runCreate(cmd, args[0], keys, fusion.Version(selectorVersion))
		},
	}

	cmd.Flags().StringSliceVarP(&keys, "keys", "k", nil, "Property keys to index (comma-separated)")
	cmd.Flags().StringVar(&selectorVersion, "selector", "", "Slot selector version (default from fusion.default_version)")
	_ = cmd.MarkFlagRequired("keys")

	return cmd
}

func (a *app) runCreate(cmd *cobra.Command, name string, keys []string, v fusion.Version) error {
	p, err := a.openProvider()
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()

	h, err := p.Create(cmd.Context(), name, keys, v)
	if err != nil {
		return err
	}
	d := h.Descriptor()
	if err := h.Close(); err != nil {
		return err
	}

	if a.jsonOutput {
		return writeJSON(cmd.OutOrStdout(), newIndexView(d))
	}
	out := a.printer(cmd)
	out.Success("created index %s", d.Name)
	out.KeyValues(
		"version", string(d.Version),
		"keys", strings.Join(d.PropertyKeys, ", "),
		"slots", strings.Join(fusion.SlotNames(d.Slots), ", "),
	)
	return nil
}
