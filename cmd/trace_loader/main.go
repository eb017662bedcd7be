package main

import (
	"os"

	"github.com/Avi18971911/TraceView/cmd/trace_loader/command"
)

func main() {
	if err := command.NewCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
