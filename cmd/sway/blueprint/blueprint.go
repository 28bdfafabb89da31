// Package blueprintcmder provides the blueprint command for inspecting,
// validating and stepping through blueprints without a running server.
package blueprintcmder

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/sway/pkg/blueprint"
	"github.com/papercomputeco/sway/pkg/cliui"
)

const blueprintLongDesc string = `Inspect, validate and step through blueprints.

Blueprints are the state machines sessions walk through. Built-in presets
are addressed by id; custom blueprints are JSON or YAML documents, either
given as a file or looked up by id in the blueprint directory.

  sway blueprint list                    List the built-in presets
  sway blueprint show <preset|file>      Print the vertices and edges
  sway blueprint validate <file>...      Check custom documents
  sway blueprint step                    Resolve a single transition`

const blueprintShortDesc string = "Inspect, validate and step through blueprints"

func NewBlueprintCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "blueprint",
		Aliases: []string{"bp"},
		Short:   blueprintShortDesc,
		Long:    blueprintLongDesc,
	}

	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newShowCmd())
	cmd.AddCommand(newValidateCmd())
	cmd.AddCommand(newStepCmd())

	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printBlueprint writes a human readable listing of bp.
func printBlueprint(w io.Writer, name string, bp *blueprint.Blueprint) {
	if name != "" {
		fmt.Fprintf(w, "\n  %s\n", cliui.NameStyle.Render(name))
	}

	fmt.Fprintf(w, "\n  %s\n", cliui.HeaderStyle.Render("Vertices"))
	for _, v := range bp.Vertices() {
		fmt.Fprintf(w, "  %s %s %s\n",
			cliui.KeyStyle.Render(v.Name),
			cliui.ValueStyle.Render(string(v.BatchType)),
			cliui.DimStyle.Render(formatParams(v.Params)),
		)
	}

	fmt.Fprintf(w, "\n  %s\n", cliui.HeaderStyle.Render("Edges"))
	for _, e := range bp.Edges() {
		fmt.Fprintf(w, "  %s %s %s %s\n",
			cliui.KeyStyle.Render(e.Start.Name),
			cliui.DimStyle.Render("--"+e.Signal.Label+"->"),
			cliui.KeyStyle.Render(e.End.Name),
			cliui.DimStyle.Render("("+e.Name+")"),
		)
	}

	fmt.Fprintf(w, "\n  %s %v\n\n", cliui.HeaderStyle.Render("Signals"), bp.Signals().Labels())
}

func formatParams(p blueprint.Params) string {
	s := fmt.Sprintf("remove_duplicates=%t apply_mmr=%t", p.RemoveDuplicates, p.ApplyMMR)
	if p.ApplyThreshold != 0 {
		s += fmt.Sprintf(" apply_threshold=%g", p.ApplyThreshold)
	}
	if p.LastN != 0 {
		s += fmt.Sprintf(" last_n=%g", p.LastN)
	}
	if p.NTopics != 0 {
		s += fmt.Sprintf(" n_topics=%g", p.NTopics)
	}
	return s
}
