// Command anydbctl is an operator-facing inspection and maintenance tool
// for an anydb database directory.
package main

import (
	"fmt"
	"os"

	"github.com/sharedcode/anydb/cmd/anydbctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
