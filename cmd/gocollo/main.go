// Command gocollo solves, differentiates and inspects the bundled optimal
// control examples.
//
// Usage:
//
//	gocollo solve minimum-time --segments 1 --points 4
//	gocollo derivatives pendulum --json
//	gocollo structure cannonball --config gocollo.hcl
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "gocollo:", err)
		os.Exit(1)
	}
}
