// Package configcmder provides the config command for managing persistent
// sway configuration stored in the .sway/ directory.
package configcmder

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/sway/pkg/cliui"
	"github.com/papercomputeco/sway/pkg/config"
)

const configLongDesc string = `Manage persistent sway configuration.

Configuration is stored as config.toml in the .sway/ directory and provides
default values for command flags. CLI flags and SWAY_ environment variables
always take precedence over config file values.

Keys use dotted notation matching the TOML section structure, for example:
  api.listen, storage.driver, vector_store.provider,
  backend.mode, personalize.batch_size, events.brokers

Use subcommands to get, set, or list configuration values:
  sway config set <key> <value>    Set a configuration value
  sway config get <key>            Get a configuration value
  sway config list                 List all configuration values

Examples:
  sway config set backend.mode remote
  sway config set events.brokers kafka-1:9092,kafka-2:9092
  sway config get vector_store.provider
  sway config list`

const configShortDesc string = "Manage persistent sway configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}

func completeKeys(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return config.ValidConfigKeys(), cobra.ShellCompDirectiveNoFileComp
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}

func printTarget(w io.Writer, cfger *config.Configer) {
	if target := cfger.GetTarget(); target != "" {
		fmt.Fprintf(w, "\n  %s %s\n\n",
			cliui.KeyStyle.Render("Config file:"),
			cliui.DimStyle.Render(target),
		)
		return
	}
	fmt.Fprintf(w, "\n  %s\n\n", cliui.DimStyle.Render("No config file found. Using defaults."))
}
