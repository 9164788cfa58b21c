// Package main is the entry point for the transcription service.
package main

import (
	"os"

	"github.com/juniormartinxo/transcription/cmd/transcription/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
