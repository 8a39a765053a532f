// Command pharmaguard runs pharmacogenomic analyses from the command line
// against the standalone guideline store.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
