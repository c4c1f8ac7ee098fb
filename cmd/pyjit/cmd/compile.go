package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bencz/python-jit/internal/astio"
)

var (
	compileImportPaths []string
	compileManifest     string
	compileStats         bool
	compileDisassemble   bool
)

var compileCmd = &cobra.Command{
	Use:   "compile <fixture.json>",
	Short: "Compile a fixture's root and report what got published",
	Long: `Like run, but framed around the compiled artifact rather than program
output: every fragment the root execution caused to be compiled (the
module root, and every function specialization the JIT dispatcher
created along the way), with --stats reporting the cumulative compiled
byte count and --disassemble printing each fragment's instruction
stream.

Phase Analyzed->Imported compiles and runs the root fragment in one
step, so there is no "compile without executing" mode; this command's
distinction from run is purely about what it prints afterward.`,
	Args: cobra.ExactArgs(1),
	RunE: compileFixture,
}

func init() {
	rootCmd.AddCommand(compileCmd)

	compileCmd.Flags().StringArrayVar(&compileImportPaths, "import-path", nil, "module search path (repeatable)")
	compileCmd.Flags().StringVar(&compileManifest, "manifest", "", "load import paths from a project manifest instead of --import-path")
	compileCmd.Flags().StringArrayVar(&patchFlags, "patch", nil, "apply path=value to the fixture document before decoding (repeatable)")
	compileCmd.Flags().BoolVar(&compileStats, "stats", false, "print cumulative compiled-byte counts")
	compileCmd.Flags().BoolVar(&compileDisassemble, "disassemble", false, "disassemble every published fragment")
}

func compileFixture(_ *cobra.Command, args []string) error {
	path := args[0]

	importPaths, err := importPathsFromManifest(compileManifest, compileImportPaths)
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

	if verbose {
		fmt.Fprint(os.Stderr, trace.String())
	}
	if loadErr != nil {
		return loadErr
	}

	m := result.Module
	if compileStats {
		fmt.Printf("module %q: compiled_bytes=%d code_buffer=%d\n", m.Name, m.CompiledBytes, eng.CodeSize())
	}

	if compileDisassemble {
		if m.RootFragment != nil && m.RootFragment.Published() {
			fmt.Printf("== %s:<root> ==\n", m.Name)
			if err := disassembleFragment(m.RootFragment); err != nil {
				return err
			}
		}
		for _, fn := range eng.Global.FunctionsByModule(m) {
			for _, frag := range fn.Fragments {
				if !frag.Published() {
					continue
				}
				fmt.Printf("== %s:%s#%d (args=%v) ==\n", m.Name, fn.Name, frag.Index, frag.ArgTypes)
				if err := disassembleFragment(frag); err != nil {
					return err
				}
			}
		}
	}

	return nil
}
