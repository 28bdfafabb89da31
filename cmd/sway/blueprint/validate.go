package blueprintcmder

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/sway/pkg/blueprint"
	"github.com/papercomputeco/sway/pkg/cliui"
)

const validateLongDesc string = `Validate custom blueprint documents.

Every file is parsed and built; the command fails when any of them is not a
valid blueprint.

Examples:
  sway blueprint validate blueprints/*.yaml`

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <file>...",
		Short: "Validate custom blueprint documents",
		Long:  validateLongDesc,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd.OutOrStdout(), args)
		},
	}

	return cmd
}

func runValidate(w io.Writer, paths []string) error {
	failed := 0
	fmt.Fprintln(w)
	for _, path := range paths {
		_, err := blueprint.ParseFile(path)
		if err != nil {
			failed++
			fmt.Fprintf(w, "  %s %s %s\n", cliui.FailMark, path, cliui.WarnStyle.Render(err.Error()))
			continue
		}
		fmt.Fprintf(w, "  %s %s\n", cliui.SuccessMark, path)
	}
	fmt.Fprintln(w)

	if failed > 0 {
		return fmt.Errorf("%d of %d blueprints are invalid", failed, len(paths))
	}
	return nil
}
