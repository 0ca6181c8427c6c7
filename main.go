package main

import (
	"os"

	"github.com/levelcode/teamfabric/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
