// Command l3vision serves the visual question answering chat and offers
// local conversion and ask commands.
package main

import (
	"os"

	"github.com/bmf87/l3vision/cmd/l3vision/commands"
	"github.com/bmf87/l3vision/cmd/l3vision/ui"
)

func main() {
	if err := commands.Execute(); err != nil {
		ui.Error("%v", err)
		os.Exit(1)
	}
}
