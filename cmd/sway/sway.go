// Package swaycmder is the root sway command.
package swaycmder

import (
	"github.com/spf13/cobra"

	authcmder "github.com/papercomputeco/sway/cmd/sway/auth"
	blueprintcmder "github.com/papercomputeco/sway/cmd/sway/blueprint"
	configcmder "github.com/papercomputeco/sway/cmd/sway/config"
	initcmder "github.com/papercomputeco/sway/cmd/sway/init"
	quantizecmder "github.com/papercomputeco/sway/cmd/sway/quantize"
	servecmder "github.com/papercomputeco/sway/cmd/sway/serve"
	versioncmder "github.com/papercomputeco/sway/cmd/version"
)

const swayLongDesc string = `Sway is a personalization engine: sessions walk a blueprint of states,
user signals move them along, and every state decides how the next batch
of content is pulled from your vector store.

Run the API server using:
  sway serve

Work with blueprints offline:
  sway blueprint list
  sway blueprint validate my-flow.yaml
  sway blueprint step --algorithm SIMPLE --signal ITEM_VIEW`

const swayShortDesc string = "Sway - personalized content batches"

func NewSwayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "sway",
		Short:        swayShortDesc,
		Long:         swayLongDesc,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to the .sway/ config directory")

	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(blueprintcmder.NewBlueprintCmd())
	cmd.AddCommand(quantizecmder.NewQuantizeCmd())
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(authcmder.NewAuthCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
