package main

import (
	"os"

	"github.com/pliefoog/bmad-autopilot-sub009/cmd/bmad/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
