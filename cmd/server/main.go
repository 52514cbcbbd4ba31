package main

import (
	"os"

	"github.com/garyjia/office-requisition/cmd/server/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
