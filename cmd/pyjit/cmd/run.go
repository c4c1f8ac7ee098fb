package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bencz/python-jit/internal/astio"
)

var (
	runImportPaths []string
	runManifest    string
	runShowTrace   bool
)

var runCmd = &cobra.Command{
	Use:   "run <fixture.json>",
	Short: "Advance a module from a JSON AST fixture to Imported",
	Long: `Decode a JSON AST fixture (internal/astio's format), register it as a
module, and advance it through the phase driver all the way to Imported:
annotation, analysis, and compiling+running its root fragment.

Examples:
  # Run a fixture, searching ./lib for its imports
  pyjit run program.json --import-path ./lib

  # Run with one leaf of the fixture patched before decoding
  pyjit run program.json --patch body.0.value.value=7

  # Load import paths from a project manifest instead
  pyjit run program.json --manifest project.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runFixture,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringArrayVar(&runImportPaths, "import-path", nil, "module search path (repeatable)")
	runCmd.Flags().StringVar(&runManifest, "manifest", "", "load import paths from a project manifest instead of --import-path")
	runCmd.Flags().StringArrayVar(&patchFlags, "patch", nil, "apply path=value to the fixture document before decoding (repeatable)")
	runCmd.Flags().BoolVar(&runShowTrace, "trace", false, "print the phase driver's and dispatcher's log trace")
}

func runFixture(_ *cobra.Command, args []string) error {
	path := args[0]

	importPaths, err := importPathsFromManifest(runManifest, runImportPaths)
	if err != nil {
		return err
	}

	doc, err := loadASTDocument(path)
	if err != nil {
		return err
	}
	mod, err := astio.Decode(doc)
	if err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}

	eng, trace := newEngine(importPaths)
	name := moduleNameFromPath(path)
	result, loadErr := eng.LoadModule(name, mod)

	if runShowTrace || verbose {
		fmt.Fprint(os.Stderr, trace.String())
	}

	if loadErr != nil {
		return loadErr
	}

	fmt.Printf("module %q: phase=%s globals=%d compiled_bytes=%d\n",
		result.Module.Name, result.Module.Phase, result.Module.Globals.Len(), result.Module.CompiledBytes)
	return nil
}
