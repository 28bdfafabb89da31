package main

import (
	"os"

	servecmder "github.com/papercomputeco/sway/cmd/sway/serve"
)

func main() {
	cmd := servecmder.NewServeCmd()
	cmd.Use = "swayapi"
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to .sway/ config directory")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
