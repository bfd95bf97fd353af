// ABOUTME: Entry point for the backstage binary.
// ABOUTME: Executes the root Cobra command and exits non-zero on failure.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
