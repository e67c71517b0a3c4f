// Command modelmux is the operator CLI for modelmuxd.
package main

import (
	"fmt"
	"os"

	"github.com/modelmux/modelmux/cmd/modelmux/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
