// Command abbyctl is the operator CLI for abbyd: it opens a chat
// session over the client channel (with interactive approval prompts
// for mutating tool calls) and inspects the local audit log. It's a
// cobra root with persistent connection flags and one subcommand per
// operation.
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
