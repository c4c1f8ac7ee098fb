// Package cmd implements pyjit's cobra command tree: one package-level
// rootCmd, each subcommand registered from its own file's init, a single
// Execute entry point, and --verbose as a persistent flag.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Version information, set by build flags.
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "pyjit",
	Short: "Ahead-of-need JIT compiler driver",
	Long: `pyjit drives a dynamically-typed scripting language's compiler
pipeline: phase advancement, the annotation and analysis visitors, the
compilation visitor, and the JIT dispatcher that specializes a function
fragment the first time it is called with a new argument-type tuple.

There is no lexer or parser in this module: every subcommand reads an
already-built AST from a JSON fixture document (see internal/astio)
rather than from script source text.`,
	Version: Version,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(`{{with .Name}}{{printf "%%s " .}}{{end}}{{printf "version %%s" .Version}}
Commit: %s
Built:  %s
`, GitCommit, BuildDate))

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
