package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/c4pt0r/sqlground/internal/config"
	"github.com/c4pt0r/sqlground/internal/runner"
	"github.com/c4pt0r/sqlground/internal/sqlfmt"
)

type SystemCmd interface {
	// Handle runs the command. raw is the full input line, for commands that
	// parse quoted arguments themselves.
	Handle(ctx context.Context, app *App, args []string, raw string, resultWriter io.Writer) error
	Name() string
	Description() string
	Usage() string
}

var RegisteredSystemCmds []SystemCmd

func init() {
	RegisteredSystemCmds = []SystemCmd{
		HelpCmd{},
		VerCmd{},
		ModeCmd{},
		ReadOnlyCmd{},
		UseCmd{},
		SchemaCmd{},
		RefreshSchemaCmd{},
		FormatCmd{},
		OutputFormatCmd{},
		ClearCmd{},
		LastCmd{},
		LuaCmd{},
	}
}

func SystemCmdNames() []string {
	names := make([]string, len(RegisteredSystemCmds))
	for i, cmd := range RegisteredSystemCmds {
		names[i] = cmd.Name()
	}
	return names
}

func handleCmd(ctx context.Context, app *App, line string, resultWriter io.Writer) error {
	line = strings.TrimSpace(line)
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmdName, params := fields[0], fields[1:]
	for _, cmd := range RegisteredSystemCmds {
		if cmd.Name() == cmdName {
			return cmd.Handle(ctx, app, params, line, resultWriter)
		}
	}
	fmt.Fprintf(resultWriter, "Unknown command: %s, use .help for help\n", cmdName)
	return nil
}

// choices renders options with the current one bracketed.
func choices(options []string, current string) string {
	formatted := make([]string, len(options))
	for i, opt := range options {
		if opt == current {
			formatted[i] = "[" + opt + "]"
		} else {
			formatted[i] = opt
		}
	}
	return strings.Join(formatted, " ")
}

type HelpCmd struct{}

func (cmd HelpCmd) Name() string        { return ".help" }
func (cmd HelpCmd) Description() string { return "Display help information for all available commands" }
func (cmd HelpCmd) Usage() string       { return ".help" }

func (cmd HelpCmd) Handle(_ context.Context, _ *App, _ []string, _ string, resultWriter io.Writer) error {
	for _, c := range RegisteredSystemCmds {
		fmt.Fprintf(resultWriter, "%-16s %s - Usage: %s\n", c.Name(), c.Description(), c.Usage())
	}
	fmt.Fprintf(resultWriter, "%-16s %s\n", ".quit", "Leave the shell")
	return nil
}

type VerCmd struct{}

func (cmd VerCmd) Name() string        { return ".ver" }
func (cmd VerCmd) Description() string { return "Display the current version of sqlground" }
func (cmd VerCmd) Usage() string       { return ".ver" }

func (cmd VerCmd) Handle(_ context.Context, _ *App, _ []string, _ string, resultWriter io.Writer) error {
	fmt.Fprintf(resultWriter, "sqlground version: %s\n", Version)
	return nil
}

type ModeCmd struct{}

func (cmd ModeCmd) Name() string        { return ".mode" }
func (cmd ModeCmd) Description() string { return "Set or display the mode new scripts run in" }
func (cmd ModeCmd) Usage() string       { return ".mode [DDL|DQL|DML|DCL]" }

func (cmd ModeCmd) Handle(_ context.Context, app *App, args []string, _ string, resultWriter io.Writer) error {
	if len(args) == 0 {
		names := make([]string, len(runner.Modes))
		for i, m := range runner.Modes {
			names[i] = m.String()
		}
		fmt.Fprintln(resultWriter, choices(names, app.mode.String()))
		return nil
	}
	if len(args) != 1 {
		return fmt.Errorf("usage: %s", cmd.Usage())
	}
	mode, err := runner.ParseMode(args[0])
	if err != nil {
		return err
	}
	app.mode = mode
	fmt.Fprintf(resultWriter, "Mode set to: %s (%s)\n", mode, mode.Description())
	return nil
}

type ReadOnlyCmd struct{}

func (cmd ReadOnlyCmd) Name() string { return ".readonly" }
func (cmd ReadOnlyCmd) Description() string {
	return "Toggle the SELECT/SHOW/DESCRIBE/EXPLAIN whitelist for DQL scripts"
}
func (cmd ReadOnlyCmd) Usage() string { return ".readonly [on|off]" }

func (cmd ReadOnlyCmd) Handle(_ context.Context, app *App, args []string, _ string, resultWriter io.Writer) error {
	if len(args) == 1 {
		switch strings.ToLower(args[0]) {
		case "on":
			app.ws.SetReadOnly(true)
		case "off":
			app.ws.SetReadOnly(false)
		default:
			return fmt.Errorf("usage: %s", cmd.Usage())
		}
	} else if len(args) > 1 {
		return fmt.Errorf("usage: %s", cmd.Usage())
	}
	state := "off"
	if app.ws.ReadOnly() {
		state = "on"
	}
	fmt.Fprintf(resultWriter, "Read-only DQL: %s\n", state)
	return nil
}

type UseCmd struct{}

func (cmd UseCmd) Name() string        { return ".use" }
func (cmd UseCmd) Description() string { return "Select the default database for the following scripts" }
func (cmd UseCmd) Usage() string       { return ".use <database>" }

func (cmd UseCmd) Handle(_ context.Context, app *App, args []string, _ string, resultWriter io.Writer) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: %s", cmd.Usage())
	}
	app.ws.SetDatabase(strings.Trim(args[0], "`;"))
	fmt.Fprintf(resultWriter, "Database changed to: %s\n", app.ws.Database())
	return nil
}

type SchemaCmd struct{}

func (cmd SchemaCmd) Name() string        { return ".schema" }
func (cmd SchemaCmd) Description() string { return "Display databases, tables and columns" }
func (cmd SchemaCmd) Usage() string       { return ".schema [database]" }

func (cmd SchemaCmd) Handle(ctx context.Context, app *App, args []string, _ string, resultWriter io.Writer) error {
	tree, err := app.schema.Tree(ctx, app.ws.Database())
	if err != nil {
		return err
	}
	if len(args) == 1 {
		db, ok := tree.Find(args[0])
		if !ok {
			return fmt.Errorf("unknown database: %s", args[0])
		}
		tree.Databases = tree.Databases[:0:0]
		tree.Databases = append(tree.Databases, *db)
	}
	return writeTree(resultWriter, tree)
}

type RefreshSchemaCmd struct{}

func (cmd RefreshSchemaCmd) Name() string        { return ".refresh_schema" }
func (cmd RefreshSchemaCmd) Description() string { return "Drop the cached schema tree" }
func (cmd RefreshSchemaCmd) Usage() string       { return ".refresh_schema" }

func (cmd RefreshSchemaCmd) Handle(_ context.Context, app *App, _ []string, _ string, resultWriter io.Writer) error {
	app.schema.Invalidate()
	fmt.Fprintln(resultWriter, "Schema cache cleared.")
	return nil
}

type FormatCmd struct{}

func (cmd FormatCmd) Name() string { return ".format" }
func (cmd FormatCmd) Description() string {
	return "Pretty-print the last script of the current mode and offer it for editing"
}
func (cmd FormatCmd) Usage() string { return ".format" }

func (cmd FormatCmd) Handle(_ context.Context, app *App, _ []string, _ string, resultWriter io.Writer) error {
	st, err := app.ws.Snapshot(app.mode)
	if err != nil {
		return err
	}
	if strings.TrimSpace(st.Script) == "" {
		return errors.New("nothing to format")
	}
	out, err := sqlfmt.Format(st.Script)
	if err != nil {
		return err
	}
	io.WriteString(resultWriter, out)
	app.suggest = strings.TrimSpace(strings.ReplaceAll(out, "\n", " "))
	return nil
}

type OutputFormatCmd struct{}

func (cmd OutputFormatCmd) Name() string        { return ".output_format" }
func (cmd OutputFormatCmd) Description() string { return "Set or display the current output format" }
func (cmd OutputFormatCmd) Usage() string       { return ".output_format [format]" }

func (cmd OutputFormatCmd) Handle(_ context.Context, app *App, args []string, _ string, resultWriter io.Writer) error {
	if len(args) == 0 {
		fmt.Fprintln(resultWriter, choices(config.OutputFormats, app.format))
		return nil
	}
	if len(args) != 1 {
		return fmt.Errorf("usage: .output_format <format>")
	}
	if _, err := NewResultIOWriter(args[0], io.Discard); err != nil {
		return fmt.Errorf("invalid format: %s", args[0])
	}
	app.format = args[0]
	fmt.Fprintf(resultWriter, "Output format set to: %s\n", app.format)
	return nil
}

type ClearCmd struct{}

func (cmd ClearCmd) Name() string        { return ".clear" }
func (cmd ClearCmd) Description() string { return "Clear the script and result of the current mode" }
func (cmd ClearCmd) Usage() string       { return ".clear" }

func (cmd ClearCmd) Handle(_ context.Context, app *App, _ []string, _ string, resultWriter io.Writer) error {
	if err := app.ws.Clear(app.mode); err != nil {
		return err
	}
	fmt.Fprintf(resultWriter, "%s editor cleared.\n", app.mode)
	return nil
}

type LastCmd struct{}

func (cmd LastCmd) Name() string        { return ".last" }
func (cmd LastCmd) Description() string { return "Show the last script and result of a mode" }
func (cmd LastCmd) Usage() string       { return ".last [DDL|DQL|DML|DCL]" }

func (cmd LastCmd) Handle(_ context.Context, app *App, args []string, _ string, resultWriter io.Writer) error {
	mode := app.mode
	if len(args) == 1 {
		m, err := runner.ParseMode(args[0])
		if err != nil {
			return err
		}
		mode = m
	}
	st, err := app.ws.Snapshot(mode)
	if err != nil {
		return err
	}
	if st.Result == nil && st.Err == nil {
		fmt.Fprintf(resultWriter, "No %s script has run yet.\n", mode)
		return nil
	}
	fmt.Fprintln(resultWriter, st.Script)
	if err := writeResult(resultWriter, app.format, st.Result); err != nil {
		return err
	}
	if st.Err != nil {
		printError(resultWriter, st.Err)
	}
	return nil
}
