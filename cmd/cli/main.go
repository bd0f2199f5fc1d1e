// Package main is the entry point for the shop-pricing CLI.
package main

import (
	"os"

	"shop-pricing/cmd/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
