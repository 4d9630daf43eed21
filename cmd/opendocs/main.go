package main

import (
	"fmt"
	"os"

	"github.com/go-go-golems/opendocs/cmd/opendocs/cmds"
)

func main() {
	rootCmd, err := cmds.NewRootCommand()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
