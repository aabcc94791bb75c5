// Command abbyd is the abby daemon: it bridges a live DAW session over
// OSC to a tool-using chat agent and serves the result over a duplex
// client channel. Its command surface splits a single long-running
// "serve" from a "version" query, wired with cobra.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
