package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"github.com/rs/zerolog/log"

	"github.com/c4pt0r/sqlground/sqlsplit"
)

const continuationPrompt = "    -> "

func historyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.Getenv("HOME")
	}
	return filepath.Join(home, ".sqlground.history")
}

func (app *App) prompt() string {
	db := app.ws.Database()
	if db == "" {
		db = "(none)"
	}
	return fmt.Sprintf("%s [%s]> ", db, app.mode)
}

func repl(ctx context.Context, app *App, interactive bool) error {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	defer func() {
		line.Close()
		// show cursor
		fmt.Print("\033[?25h")
	}()

	historyFile := historyPath()
	if f, err := os.Open(historyFile); err == nil {
		_, _ = line.ReadHistory(f)
		f.Close()
	}

	var buf strings.Builder
	for ctx.Err() == nil {
		var prompt string
		if interactive {
			prompt = app.prompt()
			if buf.Len() > 0 {
				prompt = continuationPrompt
			}
		}

		var input string
		var err error
		if app.suggest != "" {
			input, err = line.PromptWithSuggestion(prompt, app.suggest, -1)
			app.suggest = ""
		} else {
			input, err = line.Prompt(prompt)
		}
		if errors.Is(err, liner.ErrPromptAborted) {
			buf.Reset()
			continue
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Debug().Err(err).Msg("prompt failed")
			}
			break
		}

		if strings.TrimSpace(input) == "" && buf.Len() == 0 {
			continue
		}
		line.AppendHistory(input)

		if buf.Len() == 0 && strings.HasPrefix(strings.TrimSpace(input), ".") {
			if quit := app.dispatch(ctx, input); quit {
				break
			}
			continue
		}

		if buf.Len() > 0 {
			buf.WriteString("\n")
		}
		buf.WriteString(input)
		if !sqlsplit.Complete(buf.String()) {
			continue
		}
		script := buf.String()
		buf.Reset()
		app.runScript(ctx, script)
	}

	if f, err := os.Create(historyFile); err != nil {
		log.Warn().Err(err).Msg("failed to write history file")
	} else {
		_, _ = line.WriteHistory(f)
		f.Close()
	}
	return nil
}

// dispatch runs a dot-command and reports whether the shell should exit.
func (app *App) dispatch(ctx context.Context, input string) bool {
	name := strings.Fields(input)[0]
	if name == ".quit" || name == ".exit" {
		return true
	}
	if err := handleCmd(ctx, app, input, app.out); err != nil {
		printError(app.out, err)
	}
	return false
}

// runScript loads script into the editor of the current mode, runs it and
// prints the outcome.
func (app *App) runScript(ctx context.Context, script string) {
	if err := app.ws.Edit(app.mode, script); err != nil {
		printError(app.out, err)
		return
	}
	res, err := app.ws.Run(ctx, app.mode)
	if werr := writeResult(app.out, app.format, res); werr != nil {
		printError(app.out, werr)
	}
	if err != nil {
		printError(app.out, err)
	}
}
