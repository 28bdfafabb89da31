package main

import (
	"os"

	swaycmder "github.com/papercomputeco/sway/cmd/sway"
)

func main() {
	cmd := swaycmder.NewSwayCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
