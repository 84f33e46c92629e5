package main

import (
	"fmt"
	"os"

	"procmux/cmd/procmux/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
