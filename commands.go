package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/c4pt0r/sqlground/internal/runner"
	"github.com/c4pt0r/sqlground/internal/server"
	"github.com/c4pt0r/sqlground/internal/sqlfmt"
)

// readScript reads the named file, or stdin when no file is given or the
// name is "-".
func readScript(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		b, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(b), nil
	}
	b, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("failed to read script: %w", err)
	}
	return string(b), nil
}

func newRunCmd() *cobra.Command {
	var modeFlag string
	cmd := &cobra.Command{
		Use:   "run [file]",
		Short: "Run a script file (or stdin) in one mode",
		Long: `Run splits the script into statements and executes them in order.
When --mode is omitted on a terminal, the mode is suggested from the parsed
statements and confirmed interactively.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			script, err := readScript(cmd, args)
			if err != nil {
				return err
			}

			mode, err := resolveMode(modeFlag, script)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			r, _, closeDB, err := connect(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeDB()

			res, err := r.Run(ctx, runner.Request{
				Mode:            mode,
				Script:          script,
				Database:        cfg.Database.Name,
				EnforceReadOnly: cfg.ReadOnlyDQL,
			})
			if werr := writeResult(cmd.OutOrStdout(), cfg.Output, res); werr != nil {
				return werr
			}
			if err != nil {
				printError(cmd.ErrOrStderr(), err)
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&modeFlag, "mode", "m", "", "Script mode: DDL, DQL, DML or DCL")
	_ = cmd.RegisterFlagCompletionFunc("mode", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		names := make([]string, len(runner.Modes))
		for i, m := range runner.Modes {
			names[i] = m.String()
		}
		return names, cobra.ShellCompDirectiveNoFileComp
	})
	return cmd
}

// resolveMode parses flag, or asks for a mode when flag is empty and a
// terminal is attached.
func resolveMode(flag, script string) (runner.Mode, error) {
	if flag != "" {
		return runner.ParseMode(flag)
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return runner.ModeUnknown, fmt.Errorf("--mode is required when stdin is not a terminal: %w", runner.ErrInvalidMode)
	}
	return pickMode(script)
}

// pickMode asks for a mode, placing the suggested one first.
func pickMode(script string) (runner.Mode, error) {
	modes := append([]runner.Mode(nil), runner.Modes...)
	if suggested, ok := sqlfmt.Suggest(script); ok {
		for i, m := range modes {
			if m == suggested {
				modes[0], modes[i] = modes[i], modes[0]
				break
			}
		}
	}

	items := make([]string, len(modes))
	for i, m := range modes {
		items[i] = fmt.Sprintf("%s (%s)", m, m.Description())
	}
	prompt := promptui.Select{
		Label: "Select script mode (Ctrl+C to cancel)",
		Items: items,
	}
	idx, _, err := prompt.Run()
	if err != nil {
		return runner.ModeUnknown, err
	}
	return modes[idx], nil
}

func newFormatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "format [file]",
		Short: "Pretty-print a script",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			script, err := readScript(cmd, args)
			if err != nil {
				return err
			}
			out, err := sqlfmt.Format(script)
			if err != nil {
				return err
			}
			_, err = io.WriteString(cmd.OutOrStdout(), out)
			return err
		},
	}
}

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the database, table and column tree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			_, cat, closeDB, err := connect(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeDB()

			tree, err := cat.Tree(ctx, cfg.Database.Name)
			if err != nil {
				return err
			}
			if cfg.Output == "json" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(tree)
			}
			return writeTree(cmd.OutOrStdout(), tree)
		},
	}
}

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			r, cat, closeDB, err := connect(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeDB()

			if addr != "" {
				cfg.Server.Addr = addr
			}
			return server.New(r, cat, cfg.Server, cfg.Database.Name).Serve(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (defaults to server.addr or $PORT)")
	return cmd
}
