// Package main provides the entry point for the maktaba CLI.
package main

import (
	"os"

	"github.com/maktaba-search/maktaba/cmd/maktaba/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
