package main

import (
	"os"

	"github.com/ledgerwatch/found"
	"github.com/ledgerwatch/found/cmd/foundctl/commands"
)

func main() {
	if err := commands.RootCommand().Execute(); err != nil {
		found.Root.Error(err.Error())
		os.Exit(1)
	}
}
