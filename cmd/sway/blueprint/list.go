package blueprintcmder

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/sway/pkg/blueprint"
	"github.com/papercomputeco/sway/pkg/cliui"
	"github.com/papercomputeco/sway/pkg/utils"
)

const displayNameWidth = 48

func newListCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the built-in blueprint presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runList(cmd.OutOrStdout(), asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")

	return cmd
}

func runList(w io.Writer, asJSON bool) error {
	presets := blueprint.Presets()
	if asJSON {
		return writeJSON(w, presets)
	}

	rows := make([]cliui.KV, len(presets))
	for i, p := range presets {
		rows[i] = cliui.KV{Key: p.ID, Value: utils.Truncate(p.DisplayName, displayNameWidth)}
	}

	fmt.Fprintln(w)
	cliui.KeyValues(w, rows)
	fmt.Fprintln(w)
	return nil
}
