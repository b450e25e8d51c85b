// Command timidvm loads a compiled bytecode file and runs it.
package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/arcbyte/timidvm/pkg/bytecode"
	"github.com/arcbyte/timidvm/pkg/value"
	"github.com/arcbyte/timidvm/pkg/vm"
)

const version = "0.1.0"

func main() {
	app := &cli.App{
		Name:                 "timidvm",
		Usage:                "run compiled timid bytecode",
		Version:              version,
		ArgsUsage:            "[file]",
		EnableBashCompletion: true,
		Action:               runAction,
		Commands: []*cli.Command{
			{
				Name:      "disasm",
				Usage:     "disassemble a bytecode file instead of running it",
				ArgsUsage: "<file>",
				Action:    disasmAction,
			},
			{
				Name:   "version",
				Usage:  "print the version",
				Action: func(c *cli.Context) error { fmt.Println(version); return nil },
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runAction: a missing positional argument exits cleanly (status 0, no
// output) rather than erroring — the original C entrypoint's main()
// takes the same "no argv[1], just clean up and return" branch.
func runAction(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return nil
	}

	buf, err := os.ReadFile(path)
	if err != nil {
		return cli.Exit(errors.Wrapf(err, "reading %s", path), 1)
	}

	logger, err := newLogger(c)
	if err != nil {
		return cli.Exit(err, 1)
	}
	defer logger.Sync()

	machine := vm.New(vm.WithLogger(logger))
	defer machine.Close()

	block, err := bytecode.Load(buf, machine.Interner())
	if err != nil {
		return cli.Exit(errors.Wrapf(err, "loading %s", path), 1)
	}

	if _, err := machine.Run(block); err != nil {
		return cli.Exit(err, 1)
	}
	return nil
}

func disasmAction(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return cli.Exit("disasm requires a bytecode file argument", 1)
	}

	buf, err := os.ReadFile(path)
	if err != nil {
		return cli.Exit(errors.Wrapf(err, "reading %s", path), 1)
	}

	in := vmInterner()
	block, err := bytecode.Load(buf, in)
	if err != nil {
		return cli.Exit(errors.Wrapf(err, "loading %s", path), 1)
	}

	fmt.Print(vm.HexDump(block, path))
	fmt.Print(vm.Disassemble(block, path))
	return nil
}

// vmInterner gives disasmAction a standalone interner without standing
// up a full VM, since disassembly never dispatches an instruction.
func vmInterner() *value.Interner {
	return value.NewInterner()
}

func newLogger(c *cli.Context) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return cfg.Build()
}
