package main

import (
	"os"

	"github.com/cumplo-spotter/cumplo-spotter/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
