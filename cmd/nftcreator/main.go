package main

import (
	"os"

	"nftcreator/cmd/nftcreator/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
