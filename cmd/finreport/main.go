// Command finreport imports ledgers and market history and runs portfolio
// analyses from the command line.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
