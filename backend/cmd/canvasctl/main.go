// canvasctl drives a canvas from the command line without the HTTP server.
package main

import (
	"os"

	"promptcanvas/backend/internal/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
