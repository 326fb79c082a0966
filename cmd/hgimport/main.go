package main

import (
	"os"

	"hgimport/cmd/hgimport/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
