// Package main is the creditscope command.
package main

import (
	"os"

	"github.com/leapstack-labs/creditscope/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
