// Command eventchain runs event-chain Monte Carlo simulations from
// declarative YAML configurations: start runs, resume dumped ones, and
// validate configurations without running them.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "eventchain:", err)
		os.Exit(1)
	}
}
