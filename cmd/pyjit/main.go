// Command pyjit is the CLI driver: it loads a JSON AST fixture,
// constructs a global context, and advances the module through the phase
// driver to Imported, or stops partway for inspection (disassembly, a
// step-through REPL).
package main

import (
	"fmt"
	"os"

	"github.com/bencz/python-jit/cmd/pyjit/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
