package main

import (
	"os"

	"github.com/jzrake/gridflow/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
