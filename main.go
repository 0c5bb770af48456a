package main

import (
	"os"

	"github.com/MonilMehta/fyp/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
