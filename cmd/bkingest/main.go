package main

import (
	"fmt"
	"os"

	"github.com/teranos/bkingest/cmd/bkingest/commands"
	"github.com/teranos/bkingest/logger"
)

func main() {
	err := commands.NewRootCmd().Execute()
	logger.Cleanup()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
