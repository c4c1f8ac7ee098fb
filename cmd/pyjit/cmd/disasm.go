package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bencz/python-jit/internal/astio"
)

var (
	disasmImportPaths []string
	disasmFunction     string
)

var disasmCmd = &cobra.Command{
	Use:   "disasm <fixture.json>",
	Short: "Compile a fixture and print every published fragment's disassembly",
	Long: `Equivalent to "compile --disassemble" with --stats always on, and an
optional --function filter to print only one function's fragments (by
source name) instead of the whole module.`,
	Args: cobra.ExactArgs(1),
	RunE: disasmFixture,
}

func init() {
	rootCmd.AddCommand(disasmCmd)

	disasmCmd.Flags().StringArrayVar(&disasmImportPaths, "import-path", nil, "module search path (repeatable)")
	disasmCmd.Flags().StringVar(&disasmFunction, "function", "", "only disassemble fragments of this function name")
}

func disasmFixture(_ *cobra.Command, args []string) error {
	path := args[0]

	doc, err := loadASTDocument(path)
	if err != nil {
		return err
	}
	mod, err := astio.Decode(doc)
	if err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}

	eng, _ := newEngine(disasmImportPaths)
	name := moduleNameFromPath(path)
	result, loadErr := eng.LoadModule(name, mod)
	if loadErr != nil {
		return loadErr
	}

	m := result.Module
	fmt.Printf("module %q: compiled_bytes=%d code_buffer=%d\n", m.Name, m.CompiledBytes, eng.CodeSize())

	if disasmFunction == "" {
		if m.RootFragment != nil && m.RootFragment.Published() {
			fmt.Printf("== %s:<root> ==\n", m.Name)
			if err := disassembleFragment(m.RootFragment); err != nil {
				return err
			}
		}
	}

	for _, fn := range eng.Global.FunctionsByModule(m) {
		if disasmFunction != "" && fn.Name != disasmFunction {
			continue
		}
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
	return nil
}
