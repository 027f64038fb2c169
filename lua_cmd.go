package main

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"
)

var luaScriptPattern = regexp.MustCompile(`\.lua-eval\s+"((?:[^"\\]|\\.)*)"`)

type LuaCmd struct{}

func (cmd LuaCmd) Name() string {
	return ".lua-eval"
}

func (cmd LuaCmd) Description() string {
	return "Execute a Lua script with sql.run, sql.split and sql.keywords"
}

func (cmd LuaCmd) Usage() string {
	return `.lua-eval "<script>" [args...]`
}

// parseLuaScriptAndArgs extracts the quoted script and the arguments that
// follow it. Arguments may be double-quoted to include spaces.
func parseLuaScriptAndArgs(rawInput string) (string, []string, error) {
	matches := luaScriptPattern.FindStringSubmatch(rawInput)
	if len(matches) < 2 {
		return "", nil, fmt.Errorf("invalid script format: script must be enclosed in quotes")
	}
	script := strings.ReplaceAll(matches[1], `\"`, `"`)

	scriptEnd := strings.Index(rawInput, matches[0]) + len(matches[0])
	return script, splitArgs(strings.TrimSpace(rawInput[scriptEnd:])), nil
}

func splitArgs(s string) []string {
	var (
		args    []string
		current strings.Builder
		quoted  bool
		escaped bool
		pending bool
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			current.WriteByte(c)
			escaped = false
		case c == '\\':
			escaped = true
			pending = true
		case c == '"':
			quoted = !quoted
			pending = true
		case c == ' ' && !quoted:
			if pending {
				args = append(args, current.String())
				current.Reset()
				pending = false
			}
		default:
			current.WriteByte(c)
			pending = true
		}
	}
	if pending {
		args = append(args, current.String())
	}
	return args
}

func (cmd LuaCmd) Handle(ctx context.Context, app *App, args []string, raw string, resultWriter io.Writer) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: %s", cmd.Usage())
	}
	script, parsedArgs, err := parseLuaScriptAndArgs(raw)
	if err != nil {
		return err
	}
	return app.luaEnv().Execute(ctx, script, parsedArgs, resultWriter)
}
