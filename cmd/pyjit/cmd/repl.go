package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/bencz/python-jit/internal/astio"
	"github.com/bencz/python-jit/internal/ctx"
	"github.com/bencz/python-jit/pkg/pyjit"
)

var replImportPaths []string

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Step a fixture through the phase driver interactively",
	Long: `A line-editing shell for stepping one module through the phase driver
one command at a time, printing fragment disassembly and dispatch trace
lines as it goes. It never executes a script from text: ":load" reads
the same JSON AST fixture format every other subcommand does.

Commands:
  :load <fixture.json>   decode and register a module, replacing the current one
  :advance <phase>       advance the current module to Parsed|Annotated|Analyzed|Imported
  :disasm [function]     disassemble the root fragment, or one function's fragments
  :trace                 print the log trace accumulated so far
  :quit                  exit`,
	RunE: runREPL,
}

func init() {
	rootCmd.AddCommand(replCmd)
	replCmd.Flags().StringArrayVar(&replImportPaths, "import-path", nil, "module search path (repeatable)")
}

type replSession struct {
	eng     *pyjit.Engine
	trace   *strings.Builder
	current *ctx.ModuleContext
	out     io.Writer
	bold    func(a ...any) string
	red     func(a ...any) string
	dim     func(a ...any) string
}

func runREPL(cmd *cobra.Command, args []string) error {
	useColor := isatty.IsTerminal(os.Stdout.Fd())
	bold := color.New(color.Bold).SprintFunc()
	red := color.New(color.FgRed, color.Bold).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()
	if !useColor {
		color.NoColor = true
	}

	eng, trace := newEngine(replImportPaths)
	s := &replSession{eng: eng, trace: trace, out: os.Stdout, bold: bold, red: red, dim: dim}

	line := liner.NewLiner()
	defer line.Close()
	line.SetCompleter(func(in string) (c []string) {
		for _, cmd := range []string{":load", ":advance", ":disasm", ":trace", ":quit"} {
			if strings.HasPrefix(cmd, in) {
				c = append(c, cmd)
			}
		}
		return
	})

	fmt.Fprintf(s.out, "%s\n", bold("pyjit repl"))
	fmt.Fprintln(s.out, dim("Type :load <fixture.json> to begin, :quit to exit"))

	for {
		input, err := line.Prompt(s.prompt())
		if err == io.EOF {
			fmt.Fprintln(s.out, "goodbye")
			return nil
		}
		if err != nil {
			return err
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		if err := s.dispatch(input); err != nil {
			if err == errQuit {
				return nil
			}
			fmt.Fprintf(s.out, "%s: %v\n", s.red("error"), err)
		}
	}
}

var errQuit = fmt.Errorf("quit")

func (s *replSession) prompt() string {
	if s.current == nil {
		return "pyjit> "
	}
	return fmt.Sprintf("pyjit[%s:%s]> ", s.current.Name, s.current.Phase)
}

func (s *replSession) dispatch(input string) error {
	fields := strings.Fields(input)
	switch fields[0] {
	case ":quit", ":q":
		return errQuit
	case ":load":
		if len(fields) != 2 {
			return fmt.Errorf(":load requires a fixture path")
		}
		return s.load(fields[1])
	case ":advance":
		if len(fields) != 2 {
			return fmt.Errorf(":advance requires a target phase")
		}
		return s.advance(fields[1])
	case ":disasm":
		fn := ""
		if len(fields) == 2 {
			fn = fields[1]
		}
		return s.disasm(fn)
	case ":trace":
		fmt.Fprint(s.out, s.trace.String())
		return nil
	default:
		return fmt.Errorf("unknown command %q", fields[0])
	}
}

func (s *replSession) load(path string) error {
	doc, err := loadASTDocument(path)
	if err != nil {
		return err
	}
	mod, err := astio.Decode(doc)
	if err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	name := moduleNameFromPath(path)
	m := s.eng.Global.GetOrCreateModule(name, nil)
	m.AST = mod
	s.current = m
	fmt.Fprintf(s.out, "loaded %q at phase %s\n", name, m.Phase)
	return nil
}

func (s *replSession) advance(target string) error {
	if s.current == nil {
		return fmt.Errorf("no module loaded, use :load first")
	}
	phase, ok := parsePhase(target)
	if !ok {
		return fmt.Errorf("unknown phase %q", target)
	}
	if err := s.eng.Driver.AdvanceModule(s.eng.Global, s.current, phase); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "%s now at %s\n", s.current.Name, s.current.Phase)
	return nil
}

func parsePhase(name string) (ctx.Phase, bool) {
	switch strings.ToLower(name) {
	case "parsed":
		return ctx.Parsed, true
	case "annotated":
		return ctx.Annotated, true
	case "analyzed":
		return ctx.Analyzed, true
	case "imported":
		return ctx.Imported, true
	default:
		return ctx.Initial, false
	}
}

func (s *replSession) disasm(fn string) error {
	if s.current == nil {
		return fmt.Errorf("no module loaded, use :load first")
	}
	m := s.current
	if fn == "" {
		if m.RootFragment == nil || !m.RootFragment.Published() {
			return fmt.Errorf("root fragment not yet compiled (try :advance imported)")
		}
		fmt.Fprintf(s.out, "== %s:<root> ==\n", m.Name)
		return disassembleFragment(m.RootFragment)
	}
	for _, f := range s.eng.Global.FunctionsByModule(m) {
		if f.Name != fn {
			continue
		}
		for _, frag := range f.Fragments {
			if !frag.Published() {
				continue
			}
			fmt.Fprintf(s.out, "== %s:%s#%d (args=%v) ==\n", m.Name, f.Name, frag.Index, frag.ArgTypes)
			if err := disassembleFragment(frag); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("no function named %q in %s", fn, m.Name)
}
