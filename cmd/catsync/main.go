package main

import (
	"os"

	"catsync/cmd/catsync/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
