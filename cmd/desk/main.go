package main

import (
	"os"

	"github.com/wonny/tradedesk/cmd/desk/commands"
)

// Usage: go run ./cmd/desk [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
