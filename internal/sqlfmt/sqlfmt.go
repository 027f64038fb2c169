// Package sqlfmt uses the TiDB parser for the things the lexical splitter
// deliberately does not do: pretty-printing statements and suggesting which
// mode a script belongs to.
package sqlfmt

import (
	"fmt"
	"strings"

	"github.com/pingcap/tidb/pkg/parser"
	"github.com/pingcap/tidb/pkg/parser/ast"
	"github.com/pingcap/tidb/pkg/parser/format"
	_ "github.com/pingcap/tidb/pkg/parser/test_driver"

	"github.com/c4pt0r/sqlground/internal/runner"
	"github.com/c4pt0r/sqlground/sqlsplit"
)

const restoreFlags = format.DefaultRestoreFlags | format.RestoreStringWithoutCharset

// ParseError reports a statement the parser rejected.
type ParseError struct {
	Statement sqlsplit.Statement
	Err       error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("statement %d: %v", e.Statement.Index, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Format re-renders every statement of script with uppercase keywords and
// backtick-quoted names, one statement per line. Comments are not preserved.
func Format(script string) (string, error) {
	p := parser.New()
	var sb strings.Builder
	for _, stmt := range sqlsplit.Split(script) {
		nodes, _, err := p.Parse(stmt.Text, "", "")
		if err != nil {
			return "", &ParseError{Statement: stmt, Err: err}
		}
		for _, node := range nodes {
			if err := node.Restore(format.NewRestoreCtx(restoreFlags, &sb)); err != nil {
				return "", &ParseError{Statement: stmt, Err: err}
			}
			sb.WriteString(";\n")
		}
	}
	return sb.String(), nil
}

// modeOf maps a parsed statement to the editor it belongs in.
func modeOf(stmt ast.StmtNode) runner.Mode {
	switch stmt.(type) {
	// DQL
	case *ast.SelectStmt, *ast.SetOprStmt, *ast.ShowStmt, *ast.ExplainStmt:
		return runner.ReadQuery
	// DML
	case *ast.InsertStmt, *ast.UpdateStmt, *ast.DeleteStmt, *ast.LoadDataStmt:
		return runner.DataMutation
	// DCL
	case *ast.GrantStmt, *ast.RevokeStmt, *ast.GrantRoleStmt, *ast.RevokeRoleStmt,
		*ast.CreateUserStmt, *ast.AlterUserStmt, *ast.DropUserStmt, *ast.SetPwdStmt:
		return runner.AccessControl
	// DDL
	case *ast.CreateTableStmt, *ast.AlterTableStmt, *ast.DropTableStmt,
		*ast.TruncateTableStmt, *ast.RenameTableStmt, *ast.CreateIndexStmt, *ast.DropIndexStmt,
		*ast.CreateDatabaseStmt, *ast.DropDatabaseStmt, *ast.AlterDatabaseStmt, *ast.CreateViewStmt:
		return runner.SchemaDefinition
	}
	if _, ok := stmt.(ast.DDLNode); ok {
		return runner.SchemaDefinition
	}
	return runner.ModeUnknown
}

// Classify parses stmt and returns the mode it belongs to, or ModeUnknown
// for statements outside the four categories such as SET or USE.
func Classify(stmt string) (runner.Mode, error) {
	nodes, _, err := parser.New().Parse(stmt, "", "")
	if err != nil {
		return runner.ModeUnknown, err
	}
	if len(nodes) == 0 {
		return runner.ModeUnknown, nil
	}
	return modeOf(nodes[0]), nil
}

// Suggest returns the single mode shared by every classifiable statement of
// script. ok is false when the script mixes modes, has none, or does not
// parse.
func Suggest(script string) (mode runner.Mode, ok bool) {
	p := parser.New()
	for _, stmt := range sqlsplit.Split(script) {
		nodes, _, err := p.Parse(stmt.Text, "", "")
		if err != nil {
			return runner.ModeUnknown, false
		}
		for _, node := range nodes {
			m := modeOf(node)
			switch {
			case m == runner.ModeUnknown:
			case mode == runner.ModeUnknown:
				mode = m
			case mode != m:
				return runner.ModeUnknown, false
			}
		}
	}
	return mode, mode != runner.ModeUnknown
}
