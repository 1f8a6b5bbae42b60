package main

import (
	"os"

	"b7/cmd"
	"b7/proc"
)

func main() {
	// Route SIGCHLD to the reaper before anything can spawn a child.
	proc.BlockChildSignal()

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
