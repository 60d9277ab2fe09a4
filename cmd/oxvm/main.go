// Command oxvm runs, inspects and debugs compiled script bundles: a
// pool.ConstantPool serialized by pkg/bundle into a ".redc" file.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/logrusorgru/aurora/v4"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/oxvm/oxvm/pkg/bundle"
	"github.com/oxvm/oxvm/pkg/metadata"
	"github.com/oxvm/oxvm/pkg/native"
	"github.com/oxvm/oxvm/pkg/pool"
	"github.com/oxvm/oxvm/pkg/value"
	"github.com/oxvm/oxvm/pkg/vm"
)

const version = "0.1.0"

// shellConfig is the optional per-project settings file (".oxvm.yaml")
// the repl and run commands pick up from the current directory -
// which entry point to call by default. Color is parsed but not
// consulted: output is always colored.
type shellConfig struct {
	Entry string `yaml:"entry"`
	Color bool   `yaml:"color"`
}

func loadShellConfig() shellConfig {
	cfg := shellConfig{Entry: "main;", Color: true}
	data, err := os.ReadFile(".oxvm.yaml")
	if err != nil {
		return cfg
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg
	}
	if cfg.Entry == "" {
		cfg.Entry = "main;"
	}
	return cfg
}

func loadBundle(path string) (*metadata.Metadata, *vm.VM, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	p, err := bundle.Decode(f)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("decode %s: %w", path, err)
	}
	m, err := metadata.New(p)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("build metadata for %s: %w", path, err)
	}

	var failures []string
	missing := native.RegisterAll(m, func(msg string) { fmt.Println(msg) }, &failures)

	log, _ := zap.NewProduction()
	machine := vm.New(m, log)
	return m, machine, missing, nil
}

func main() {
	cmd := &cli.Command{
		Name:    "oxvm",
		Usage:   "run and inspect compiled script bundles",
		Version: version,
		Commands: []*cli.Command{
			runCommand(),
			replCommand(),
			testCommand(),
			disasmCommand(),
		},
	}
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, aurora.Red(err))
		os.Exit(1)
	}
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "execute a function from a bundle",
		ArgsUsage: "<bundle.redc> [function]",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			args := cmd.Args()
			if args.Len() < 1 {
				return fmt.Errorf("usage: oxvm run <bundle.redc> [function]")
			}
			cfg := loadShellConfig()
			entry := cfg.Entry
			if args.Len() >= 2 {
				entry = args.Get(1)
			}

			_, machine, missing, err := loadBundle(args.Get(0))
			if err != nil {
				return err
			}
			for _, name := range missing {
				fmt.Fprintf(os.Stderr, "warning: native %q is not declared in the bundle\n", name)
			}

			result, err := machine.Call(entry)
			if err != nil {
				return fmt.Errorf("%s: %w", entry, err)
			}
			fmt.Println(describe(result))
			return nil
		},
	}
}

func disasmCommand() *cli.Command {
	return &cli.Command{
		Name:      "disasm",
		Usage:     "list the decoded instructions of every function in a bundle",
		ArgsUsage: "<bundle.redc>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() < 1 {
				return fmt.Errorf("usage: oxvm disasm <bundle.redc>")
			}
			f, err := os.Open(cmd.Args().Get(0))
			if err != nil {
				return err
			}
			defer f.Close()

			p, err := bundle.Decode(f)
			if err != nil {
				return err
			}
			for _, entry := range p.Roots() {
				fun, ok := entry.Def.Value.(*pool.Function)
				if !ok {
					continue
				}
				name, _ := p.NameStr(entry.Def.Name)
				fmt.Println(aurora.Bold(name))
				for _, ce := range fun.Code {
					fmt.Printf("  %4d: %s\n", ce.Offset, ce.Instr.Op)
				}
			}
			return nil
		},
	}
}

// testFunctions returns the public, zero-argument functions to run as
// tests: every function belonging to suite's class if suite names one,
// or every matching root function in the whole bundle otherwise.
func testFunctions(m *metadata.Metadata, suite string) (map[string]pool.PoolIndex[pool.Function], error) {
	if suite == "" {
		found := map[string]pool.PoolIndex[pool.Function]{}
		for name, idx := range m.Symbols.Functions {
			fun, err := m.Pool.Function(idx)
			if err != nil || fun.Visibility != pool.VisibilityPublic || len(fun.Parameters) != 0 || !fun.ReturnType.IsUndefined() {
				continue
			}
			if !strings.HasPrefix(name, "test") && !strings.HasSuffix(name, "Test;;Void") {
				continue
			}
			found[name] = idx
		}
		return found, nil
	}

	classIdx, ok := m.Symbols.Classes[suite]
	if !ok {
		return nil, fmt.Errorf("test suite %q not defined", suite)
	}
	class, err := m.Pool.Class(classIdx)
	if err != nil {
		return nil, err
	}
	found := map[string]pool.PoolIndex[pool.Function]{}
	for _, funIdx := range class.Functions {
		fun, err := m.Pool.Function(funIdx)
		if err != nil || fun.Visibility != pool.VisibilityPublic || len(fun.Parameters) != 0 || !fun.ReturnType.IsUndefined() {
			continue
		}
		name, err := m.Pool.DefName(pool.Cast[pool.Function, pool.Definition](funIdx))
		if err != nil {
			continue
		}
		found[name] = funIdx
	}
	return found, nil
}

// prettyTestName turns a mangled function name ("someTest;;Void")
// into a readable sentence ("some test"): drop everything from the
// first ';' (the mangled signature), and split before each uppercase
// letter, lowercasing it.
func prettyTestName(name string) string {
	if name == "" {
		return name
	}
	var b strings.Builder
	for i, c := range name {
		if c == ';' {
			break
		}
		if c >= 'A' && c <= 'Z' {
			if i > 0 {
				b.WriteByte(' ')
			}
			b.WriteRune(c - 'A' + 'a')
		} else {
			b.WriteRune(c)
		}
	}
	return b.String()
}

func testCommand() *cli.Command {
	return &cli.Command{
		Name:      "test",
		Usage:     "run every public, zero-argument, void-returning function as a test",
		ArgsUsage: "<bundle.redc> [suite]",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() < 1 {
				return fmt.Errorf("usage: oxvm test <bundle.redc> [suite]")
			}
			m, machine, _, err := loadBundle(cmd.Args().Get(0))
			if err != nil {
				return err
			}
			suite := cmd.Args().Get(1)

			tests, err := testFunctions(m, suite)
			if err != nil {
				return err
			}

			var passed, failed int
			for name := range tests {
				prettyName := prettyTestName(name)
				var failures []string
				native.RegisterAll(m, nil, &failures)
				if _, err := machine.Call(name); err != nil {
					failed++
					fmt.Println(aurora.Red(fmt.Sprintf("FAIL %s: %v", prettyName, err)))
					continue
				}
				if len(failures) > 0 {
					failed++
					fmt.Println(aurora.Red(fmt.Sprintf("FAIL %s: %s", prettyName, strings.Join(failures, "; "))))
					continue
				}
				passed++
				fmt.Println(aurora.Green(fmt.Sprintf("PASS %s", prettyName)))
			}
			fmt.Printf("%d passed, %d failed\n", passed, failed)
			if failed > 0 {
				return fmt.Errorf("%d test(s) failed", failed)
			}
			return nil
		},
	}
}

func replCommand() *cli.Command {
	return &cli.Command{
		Name:      "repl",
		Usage:     "step through a bundle's entry point interactively",
		ArgsUsage: "<bundle.redc> [function]",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() < 1 {
				return fmt.Errorf("usage: oxvm repl <bundle.redc> [function]")
			}
			cfg := loadShellConfig()
			entry := cfg.Entry
			if cmd.Args().Len() >= 2 {
				entry = cmd.Args().Get(1)
			}

			_, machine, _, err := loadBundle(cmd.Args().Get(0))
			if err != nil {
				return err
			}
			debugger := vm.NewDebugger(machine)
			debugger.Enable()
			debugger.SetStepMode(true)
			machine.Debugger = debugger

			rl, err := readline.New("oxvm> ")
			if err != nil {
				return err
			}
			defer rl.Close()
			fmt.Println("stepping", entry, "- type 'help' at the first prompt for commands")

			result, err := machine.Call(entry)
			if err != nil {
				return fmt.Errorf("%s: %w", entry, err)
			}
			fmt.Println(describe(result))
			return nil
		},
	}
}

func describe(v value.Value) string {
	u := v.Unpinned()
	switch u.Kind {
	case value.KindNull:
		return "null"
	default:
		return fmt.Sprintf("%+v", u)
	}
}
