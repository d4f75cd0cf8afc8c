// Package main is the entry point for the wirelab protocol workbench.
package main

import (
	"fmt"
	"os"

	"firestige.xyz/wirelab/cmd"
	_ "firestige.xyz/wirelab/plugins"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
