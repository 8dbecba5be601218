/*
main.go - Application entry point

PURPOSE:
  rentledger reconciles tenant rent ledgers from received payments.

COMMANDS:
  serve   Start the HTTP API
  apply   Apply a JSON file of payments once and print the outcomes

GLOBAL FLAGS:
  --config   Path to config.toml (default: built-in defaults)

EXAMPLES:
  # Serve the API over a SQLite database
  rentledger serve --config ./config.toml

  # Apply a batch to a local workbook file
  rentledger apply payments.json --backend xlsx --path ./rent.xlsx

SEE ALSO:
  - config/config.go: Settings and defaults
  - api/server.go: Router configuration
*/
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
