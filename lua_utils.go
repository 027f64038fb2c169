package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/c4pt0r/sqlground/internal/runner"
	"github.com/c4pt0r/sqlground/sqlsplit"
)

// luaEnv is a Lua state bound to an App. Scripts share globals across
// .lua-eval calls.
type luaEnv struct {
	mu  sync.Mutex
	L   *lua.LState
	app *App

	// set for the duration of Execute
	ctx context.Context
	out io.Writer
}

// luaEnv returns the app's Lua state, creating it on first use.
func (app *App) luaEnv() *luaEnv {
	if app.lua == nil {
		env := &luaEnv{L: lua.NewState(), app: app}
		env.registerSQLFunctions()
		env.L.SetGlobal("print", env.L.NewFunction(env.print))
		app.lua = env
	}
	return app.lua
}

func (e *luaEnv) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.L.Close()
}

// Execute runs script with args exposed as the global table args.
func (e *luaEnv) Execute(ctx context.Context, script string, args []string, resultWriter io.Writer) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ctx, e.out = ctx, resultWriter
	defer func() { e.ctx, e.out = nil, nil }()

	argTable := e.L.NewTable()
	for i, arg := range args {
		argTable.RawSetInt(i+1, lua.LString(arg))
	}
	e.L.SetGlobal("args", argTable)

	if err := e.L.DoString(script); err != nil {
		return fmt.Errorf("lua execution error: %w", err)
	}
	return nil
}

func (e *luaEnv) print(L *lua.LState) int {
	n := L.GetTop()
	parts := make([]string, n)
	for i := 1; i <= n; i++ {
		parts[i-1] = L.ToStringMeta(L.Get(i)).String()
	}
	fmt.Fprintln(e.out, strings.Join(parts, "\t"))
	return 0
}

func (e *luaEnv) registerSQLFunctions() {
	L := e.L
	sqlTable := L.NewTable()
	sqlTable.RawSetString("run", L.NewFunction(e.run))
	sqlTable.RawSetString("split", L.NewFunction(luaSplit))
	sqlTable.RawSetString("keywords", L.NewFunction(luaKeywords))
	L.SetGlobal("sql", sqlTable)
}

// run implements sql.run(mode, script). It never raises; failures are
// reported through the ok and error fields of the returned table.
func (e *luaEnv) run(L *lua.LState) int {
	modeName := L.CheckString(1)
	script := L.CheckString(2)

	result := L.NewTable()
	result.RawSetString("ok", lua.LTrue)

	mode, err := runner.ParseMode(modeName)
	if err != nil {
		result.RawSetString("ok", lua.LFalse)
		result.RawSetString("error", lua.LString(err.Error()))
		L.Push(result)
		return 1
	}

	res, err := e.app.run(e.ctx, runner.Request{
		Mode:            mode,
		Script:          script,
		Database:        e.app.ws.Database(),
		EnforceReadOnly: e.app.ws.ReadOnly(),
	})

	results := L.NewTable()
	if res != nil {
		for i, out := range res.Outcomes {
			results.RawSetInt(i+1, outcomeTable(L, out))
		}
	}
	result.RawSetString("results", results)

	if err != nil {
		result.RawSetString("ok", lua.LFalse)
		result.RawSetString("error", lua.LString(err.Error()))
		var runErr *runner.Error
		if errors.As(err, &runErr) {
			result.RawSetString("code", lua.LString(runErr.Code))
			if runErr.Located() {
				result.RawSetString("index", lua.LNumber(runErr.Index))
			}
		}
	}
	L.Push(result)
	return 1
}

func outcomeTable(L *lua.LState, out runner.Outcome) *lua.LTable {
	t := L.NewTable()
	t.RawSetString("index", lua.LNumber(out.Stmt().Index))
	t.RawSetString("statement", lua.LString(out.Stmt().Text))

	switch o := out.(type) {
	case *runner.RowSet:
		t.RawSetString("type", lua.LString("resultset"))
		columns := L.NewTable()
		for i, col := range o.Fields {
			columns.RawSetInt(i+1, lua.LString(col))
		}
		data := L.NewTable()
		for i, row := range o.Rows {
			rowTable := L.NewTable()
			for j, v := range row.Values {
				rowTable.RawSetInt(j+1, toLuaValue(v))
			}
			data.RawSetInt(i+1, rowTable)
		}
		t.RawSetString("columns", columns)
		t.RawSetString("data", data)
		t.RawSetString("row_count", lua.LNumber(o.RowCount()))
	case *runner.Acknowledgement:
		t.RawSetString("type", lua.LString("ok"))
		t.RawSetString("rows_affected", lua.LNumber(o.AffectedRows))
		if o.InsertID != nil {
			t.RawSetString("last_insert_id", lua.LNumber(*o.InsertID))
		}
	}
	return t
}

func toLuaValue(v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case []byte:
		return lua.LString(string(val))
	case string:
		return lua.LString(val)
	case int64:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case bool:
		return lua.LBool(val)
	case time.Time:
		return lua.LString(val.Format("2006-01-02 15:04:05"))
	default:
		return lua.LString(fmt.Sprintf("%v", val))
	}
}

// luaSplit implements sql.split(script), returning statement texts.
func luaSplit(L *lua.LState) int {
	stmts := sqlsplit.Split(L.CheckString(1))
	t := L.NewTable()
	for i, s := range stmts {
		t.RawSetInt(i+1, lua.LString(s.Text))
	}
	L.Push(t)
	return 1
}

// luaKeywords implements sql.keywords(stmt [, n]); n defaults to 1.
func luaKeywords(L *lua.LState) int {
	n := L.OptInt(2, 1)
	t := L.NewTable()
	for i, kw := range sqlsplit.LeadingKeywords(L.CheckString(1), n) {
		t.RawSetInt(i+1, lua.LString(kw))
	}
	L.Push(t)
	return 1
}
