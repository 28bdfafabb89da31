// Package initcmder provides the init command for initializing a local .sway
// directory in the current working directory.
package initcmder

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/sway/pkg/cliui"
	"github.com/papercomputeco/sway/pkg/config"
	"github.com/papercomputeco/sway/pkg/dotdir"
)

const initLongDesc string = `Initialize a new .sway/ directory in the current working directory.

Creates a local .sway/ directory that takes precedence over the default
~/.sway/ directory, and writes a config.toml for the chosen preset:
  local     SQLite sessions and a sqlite-vec vector store (default)
  qdrant    PostgreSQL sessions and a Qdrant vector store
  remote    the hosted personalization backend over a Qdrant vector store

An existing config.toml is left untouched.

Examples:
  sway init
  sway init --preset qdrant`

const initShortDesc string = "Initialize a local .sway/ directory"

type initCommander struct {
	preset string
}

func NewInitCmd() *cobra.Command {
	cmder := &initCommander{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: initShortDesc,
		Long:  initLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&cmder.preset, "preset", "p", "local", "Config preset (local, qdrant, remote)")

	return cmd
}

func (c *initCommander) run(w io.Writer) error {
	cfg, err := config.PresetConfig(c.preset)
	if err != nil {
		return err
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	dir, err := dotdir.NewManager().Init(cwd)
	if err != nil {
		return err
	}

	_, err = os.Stat(filepath.Join(dir, "config.toml"))
	switch {
	case err == nil:
		fmt.Fprintf(w, "  %s Already initialized: %s\n", cliui.SuccessMark, cliui.DimStyle.Render(dir))
		return nil
	case !errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("reading config: %w", err)
	}

	cfger, err := config.NewConfiger(dir)
	if err != nil {
		return err
	}
	if err := cfger.SaveConfig(cfg); err != nil {
		return err
	}

	fmt.Fprintf(w, "  %s Initialized %s with the %s preset\n",
		cliui.SuccessMark,
		cliui.DimStyle.Render(dir),
		cliui.NameStyle.Render(c.preset),
	)
	return nil
}
