package blueprintcmder

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papercomputeco/sway/pkg/blueprint"
	"github.com/papercomputeco/sway/pkg/cliui"
	"github.com/papercomputeco/sway/pkg/config"
)

const stepLongDesc string = `Resolve a single transition of a blueprint.

Prints the vertex the transition starts from, the vertex the session moves
to and the batch type and parameters the transition serves. The state
defaults to the initial vertex. CUSTOM blueprints are read from the
blueprint directory (backend.blueprint_dir).

Examples:
  sway blueprint step --algorithm SIMPLE --signal ITEM_VIEW
  sway blueprint step --algorithm RECOMMENDATIONS --state explore --signal BATCH
  sway blueprint step --algorithm CUSTOM --custom-id onboarding --signal CLICK`

type stepCommander struct {
	algorithm    string
	customID     string
	state        string
	signal       string
	blueprintDir string
	asJSON       bool
}

// StepOutput is the JSON form of a transition.
type StepOutput struct {
	Source      string              `json:"source"`
	Destination string              `json:"destination"`
	BatchType   blueprint.BatchType `json:"batch_type"`
	Params      blueprint.Params    `json:"params"`
}

var stepFlagKeys = []string{config.FlagBlueprintDir}

func newStepCmd() *cobra.Command {
	cmder := &stepCommander{}
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "step",
		Short: "Resolve a single blueprint transition",
		Long:  stepLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			var err error
			v, err = config.InitViper(configDir)
			if err != nil {
				return err
			}
			config.BindRegisteredFlags(v, cmd, config.ServeFlags, stepFlagKeys)
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmder.blueprintDir = v.GetString("backend.blueprint_dir")
			return cmder.run(cmd, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&cmder.algorithm, "algorithm", "SIMPLE", "SIMPLE, CUSTOM or a preset id")
	cmd.Flags().StringVar(&cmder.customID, "custom-id", "", "Custom blueprint id, for CUSTOM")
	cmd.Flags().StringVar(&cmder.state, "state", blueprint.InitialStateSentinel, "Current state")
	cmd.Flags().StringVar(&cmder.signal, "signal", "", "Signal label")
	cmd.Flags().BoolVar(&cmder.asJSON, "json", false, "Print JSON")
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagBlueprintDir, &cmder.blueprintDir)
	_ = cmd.MarkFlagRequired("signal")

	return cmd
}

func (c *stepCommander) run(cmd *cobra.Command, w io.Writer) error {
	var fetcher blueprint.CustomFetcher
	if c.blueprintDir != "" {
		fetcher = blueprint.DirFetcher{Dir: c.blueprintDir}
	}

	bp, err := blueprint.Resolve(cmd.Context(), blueprint.SourceFor(c.algorithm, c.customID), fetcher)
	if err != nil {
		return err
	}

	sig, ok := bp.Signals().Lookup(c.signal)
	if !ok {
		return fmt.Errorf("unknown signal %q (known: %v)", c.signal, bp.Signals().Labels())
	}

	res, err := bp.Step(c.state, sig)
	if err != nil {
		return err
	}

	if c.asJSON {
		return writeJSON(w, StepOutput{
			Source:      res.Source.Name,
			Destination: res.Destination.Name,
			BatchType:   res.BatchType,
			Params:      res.Params,
		})
	}

	fmt.Fprintf(w, "\n  %s %s %s\n",
		cliui.KeyStyle.Render(res.Source.Name),
		cliui.DimStyle.Render("--"+sig.Label+"->"),
		cliui.KeyStyle.Render(res.Destination.Name),
	)
	cliui.KeyValues(w, []cliui.KV{
		{Key: "batch_type", Value: string(res.BatchType)},
		{Key: "params", Value: formatParams(res.Params)},
	})
	fmt.Fprintln(w)
	return nil
}
