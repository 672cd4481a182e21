// Package main provides the entry point for the notescout CLI.
package main

import (
	"os"

	"github.com/notescout/notescout/cmd/notescout/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
