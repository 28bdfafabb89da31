package blueprintcmder

import (
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/sway/pkg/blueprint"
)

const showLongDesc string = `Print the vertices, edges and signals of a blueprint.

The argument is either a preset id or the path to a JSON or YAML document.

Examples:
  sway blueprint show CONTENT_CURATION
  sway blueprint show ./blueprints/onboarding.yaml --json`

func newShowCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <preset|file>",
		Short: "Print a blueprint",
		Long:  showLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(cmd.OutOrStdout(), args[0], asJSON)
		},
		ValidArgsFunction: func(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
			if len(args) != 0 {
				return nil, cobra.ShellCompDirectiveNoFileComp
			}
			var ids []string
			for _, p := range blueprint.Presets() {
				ids = append(ids, p.ID)
			}
			return ids, cobra.ShellCompDirectiveDefault
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the blueprint document as JSON")

	return cmd
}

func runShow(w io.Writer, arg string, asJSON bool) error {
	var (
		doc blueprint.Document
		err error
	)
	if blueprint.IsDocumentFile(arg) {
		doc, err = blueprint.ReadFile(arg)
	} else {
		doc, err = blueprint.PresetDocument(strings.ToUpper(arg))
	}
	if err != nil {
		return err
	}

	bp, err := doc.Build()
	if err != nil {
		return err
	}

	if asJSON {
		return writeJSON(w, doc)
	}

	printBlueprint(w, arg, bp)
	return nil
}
