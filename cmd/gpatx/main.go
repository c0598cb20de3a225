// gpatx CLI - inspect datasources and draw ids from sequences
package main

import (
	"os"

	"github.com/lemmego/gpatx/cmd/gpatx/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
