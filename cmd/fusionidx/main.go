// Package main provides the entry point for the fusionidx CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/fusionidx/cmd/fusionidx/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
