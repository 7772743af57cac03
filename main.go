package main

import (
	"os"

	"github.com/enerflow/bess/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
