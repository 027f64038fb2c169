package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLuaScriptAndArgs(t *testing.T) {
	tests := []struct {
		raw        string
		wantScript string
		wantArgs   []string
	}{
		{`.lua-eval "print(1)"`, "print(1)", nil},
		{`.lua-eval "print(args[1])" a b`, "print(args[1])", []string{"a", "b"}},
		{`.lua-eval "print(\"x\")" "two words" c\ d`, `print("x")`, []string{"two words", "c d"}},
		{`.lua-eval "x" ""`, "x", []string{""}},
	}
	for _, tt := range tests {
		script, args, err := parseLuaScriptAndArgs(tt.raw)
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.wantScript, script, tt.raw)
		assert.Equal(t, tt.wantArgs, args, tt.raw)
	}

	_, _, err := parseLuaScriptAndArgs(`.lua-eval print(1)`)
	assert.Error(t, err)
}

func TestLua_SplitAndKeywords(t *testing.T) {
	app, _, _, _ := newTestApp(t)
	var out bytes.Buffer

	err := handleCmd(context.Background(), app,
		`.lua-eval "local s = sql.split(args[1]) print(#s, s[2]) local k = sql.keywords(s[2], 2) print(k[1], k[2])" "select 1; /* c */ insert into t values (';')"`,
		&out)
	require.NoError(t, err)
	assert.Equal(t, "2\t/* c */ insert into t values (';')\nINSERT\tINTO\n", out.String())
}

func TestLua_Run(t *testing.T) {
	app, rec, _, _ := newTestApp(t)
	var out bytes.Buffer

	script := `
local r = sql.run("DML", "INSERT INTO t VALUES (1); FAIL; INSERT INTO t VALUES (2)")
print(r.ok, #r.results, r.results[1].type, r.results[1].rows_affected, r.index, r.code)
local q = sql.run("dql", "SELECT a FROM t")
print(q.ok, q.results[1].columns[1], q.results[1].data[1][1], q.results[1].row_count)
local bad = sql.run("nope", "SELECT 1")
print(bad.ok)
`
	require.NoError(t, app.luaEnv().Execute(context.Background(), script, nil, &out))
	assert.Equal(t, "false\t1\tok\t1\t1\t1064\ntrue\ta\t1\t1\nfalse\n", out.String())
	require.Len(t, rec.reqs, 2)
	assert.Equal(t, "shop", rec.reqs[0].Database)
}

func TestLua_ExecutionError(t *testing.T) {
	app, _, _, _ := newTestApp(t)
	err := app.luaEnv().Execute(context.Background(), "error('bad')", nil, &bytes.Buffer{})
	assert.ErrorContains(t, err, "lua execution error")
}
