// Package main is the entry point for the jobworker CLI.
// It checks that the containers of a job are ready before the job's steps run
// and removes them afterwards.
package main

import (
	"os"

	"jobworker/cmd/jobworker/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
