package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/c4pt0r/sqlground/internal/catalog"
	"github.com/c4pt0r/sqlground/internal/config"
	"github.com/c4pt0r/sqlground/internal/runner"
	"github.com/c4pt0r/sqlground/internal/session"
	"github.com/c4pt0r/sqlground/internal/workspace"
)

// Version is set at build time.
var Version = "0.1.0"

const schemaCacheTTL = 30 * time.Second

var (
	cfgFile string
	cfg     config.Config
)

// schemaSource is satisfied by *catalog.Catalog.
type schemaSource interface {
	Tree(ctx context.Context, current string) (catalog.Tree, error)
	Invalidate()
}

// App is the state shared by the REPL, its dot-commands and Lua scripts.
type App struct {
	run     workspace.RunFunc
	ws      *workspace.Workspace
	schema  schemaSource
	mode    runner.Mode
	format  string
	out     io.Writer
	lua     *luaEnv
	suggest string
}

func newApp(run workspace.RunFunc, schema schemaSource, c config.Config, out io.Writer) *App {
	app := &App{
		run:    run,
		ws:     workspace.New(run),
		schema: schema,
		mode:   runner.ReadQuery,
		format: c.Output,
		out:    out,
	}
	app.ws.SetReadOnly(c.ReadOnlyDQL)
	app.ws.SetDatabase(c.Database.Name)
	app.ws.OnSchemaChange(schema.Invalidate)
	return app
}

// Close releases the Lua state, if one was created.
func (app *App) Close() {
	if app.lua != nil {
		app.lua.Close()
	}
}

// connect opens the pool described by c. The returned func closes it.
func connect(ctx context.Context, c config.Config) (*runner.Runner, *catalog.Catalog, func(), error) {
	pool, err := session.Open(ctx, c.Database)
	if err != nil {
		return nil, nil, nil, err
	}
	closeFn := func() {
		if err := pool.Close(); err != nil {
			log.Debug().Err(err).Msg("failed to close database")
		}
	}
	return runner.New(pool), catalog.New(pool.DB(), schemaCacheTTL), closeFn, nil
}

func setupLogging(l config.Logging) {
	var writer io.Writer = zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) {
		w.Out = os.Stderr
	})
	if l.Format == "json" {
		writer = os.Stderr
	}
	gLog := zerolog.New(writer).With().Timestamp().Logger()

	if l.Verbose {
		log.Logger = gLog.Level(zerolog.DebugLevel)
	} else {
		log.Logger = gLog.Level(zerolog.WarnLevel)
	}
}

// applyFlags copies explicitly set persistent flags over the loaded
// configuration.
func applyFlags(cmd *cobra.Command, c *config.Config) error {
	flags := cmd.Flags()
	var err error
	set := func(name string, fn func() error) {
		if err == nil && flags.Changed(name) {
			err = fn()
		}
	}
	set("host", func() (e error) { c.Database.Host, e = flags.GetString("host"); return })
	set("port", func() (e error) { c.Database.Port, e = flags.GetInt("port"); return })
	set("user", func() (e error) { c.Database.User, e = flags.GetString("user"); return })
	set("password", func() (e error) { c.Database.Password, e = flags.GetString("password"); return })
	set("database", func() (e error) { c.Database.Name, e = flags.GetString("database"); return })
	set("tls", func() (e error) { c.Database.TLS, e = flags.GetBool("tls"); return })
	set("output", func() (e error) { c.Output, e = flags.GetString("output"); return })
	set("verbose", func() (e error) { c.Logging.Verbose, e = flags.GetBool("verbose"); return })
	set("log-format", func() (e error) { c.Logging.Format, e = flags.GetString("log-format"); return })
	return err
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "sqlground",
		Short: "A MySQL playground that runs scripts per command category",
		Long: `sqlground runs SQL scripts against a MySQL-compatible server, one
statement at a time. Every script is declared as DDL, DQL, DML or DCL:
DQL scripts are limited to read-only statements and DML scripts run in a
single transaction that is rolled back on the first failure.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" {
				return nil
			}
			var err error
			cfg, err = config.Load(cfgFile)
			if err != nil {
				return err
			}
			if err := applyFlags(cmd, &cfg); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			setupLogging(cfg.Logging)
			return nil
		},
		RunE:          runREPLCmd,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&cfgFile, "config", "c", "", "Path to TOML configuration file")
	pf.StringP("host", "H", "", "MySQL hostname")
	pf.IntP("port", "p", 0, "MySQL port")
	pf.StringP("user", "u", "", "MySQL username")
	pf.StringP("password", "P", "", "MySQL password")
	pf.StringP("database", "d", "", "Default database")
	pf.Bool("tls", false, "Connect with TLS")
	pf.StringP("output", "o", "", "Output format: plain, table, json or csv")
	pf.BoolP("verbose", "v", false, "Verbose logging")
	pf.String("log-format", "", "Log format: console or json")

	_ = rootCmd.RegisterFlagCompletionFunc("output", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return config.OutputFormats, cobra.ShellCompDirectiveNoFileComp
	})

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "repl",
			Short: "Start the interactive shell (default)",
			Args:  cobra.NoArgs,
			RunE:  runREPLCmd,
		},
		newRunCmd(),
		newFormatCmd(),
		newSchemaCmd(),
		newServeCmd(),
	)
	return rootCmd
}

func runREPLCmd(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	r, cat, closeDB, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	app := newApp(r.Run, cat, cfg, cmd.OutOrStdout())
	defer app.Close()
	return repl(ctx, app, term.IsTerminal(int(os.Stdin.Fd())))
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		var runErr *runner.Error
		if !errors.As(err, &runErr) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		stop()
		os.Exit(1)
	}
}
