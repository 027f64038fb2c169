package runner

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c4pt0r/sqlground/sqlsplit"
)

// fakeSession records every call and fails the statements listed in failOn.
type fakeSession struct {
	calls     []string
	executed  []string
	failOn    map[string]error
	beginErr  error
	commitErr error
	rollErr   error
}

func (f *fakeSession) Execute(_ context.Context, query string) (Outcome, error) {
	f.calls = append(f.calls, "exec")
	if err, ok := f.failOn[query]; ok {
		return nil, err
	}
	f.executed = append(f.executed, query)
	if returnsRows(query) {
		return &RowSet{
			Fields: []string{"1"},
			Rows:   []Row{{Columns: []string{"1"}, Values: []any{int64(1)}}},
		}, nil
	}
	return &Acknowledgement{AffectedRows: 1, Message: "OK"}, nil
}

func (f *fakeSession) Begin(context.Context) error {
	f.calls = append(f.calls, "begin")
	return f.beginErr
}

func (f *fakeSession) Commit() error {
	f.calls = append(f.calls, "commit")
	return f.commitErr
}

func (f *fakeSession) Rollback() error {
	f.calls = append(f.calls, "rollback")
	return f.rollErr
}

func returnsRows(q string) bool {
	return strings.HasPrefix(q, "SELECT") || strings.HasPrefix(q, "SHOW")
}

func statement(idx int, text string) sqlsplit.Statement {
	return sqlsplit.Statement{Index: idx, Text: text}
}

type fakePool struct {
	sess     *fakeSession
	err      error
	acquired int
	released int
	database string
}

func (p *fakePool) Acquire(_ context.Context, database string) (Session, func(), error) {
	if p.err != nil {
		return nil, nil, p.err
	}
	p.acquired++
	p.database = database
	return p.sess, func() { p.released++ }, nil
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"DDL", SchemaDefinition, false},
		{"dql", ReadQuery, false},
		{" Dml ", DataMutation, false},
		{"DCL", AccessControl, false},
		{"TCL", ModeUnknown, true},
		{"", ModeUnknown, true},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if tt.wantErr {
			require.ErrorIs(t, err, ErrInvalidMode)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
		assert.Equal(t, tt.want, mustRoundTrip(t, got))
	}
}

func mustRoundTrip(t *testing.T, m Mode) Mode {
	t.Helper()
	b, err := m.MarshalText()
	require.NoError(t, err)
	var out Mode
	require.NoError(t, out.UnmarshalText(b))
	return out
}

func TestPrepare(t *testing.T) {
	t.Run("unknown mode", func(t *testing.T) {
		_, err := Prepare(Request{Script: "SELECT 1"})
		require.ErrorIs(t, err, ErrInvalidMode)
	})

	t.Run("empty script", func(t *testing.T) {
		_, err := Prepare(Request{Mode: DataMutation, Script: " ; -- \n"})
		// A comment-only segment is still a statement.
		require.NoError(t, err)

		_, err = Prepare(Request{Mode: DataMutation, Script: " ;\n ; "})
		require.ErrorIs(t, err, ErrEmptyScript)

		var runErr *Error
		require.ErrorAs(t, err, &runErr)
		assert.Equal(t, KindValidation, runErr.Kind)
		assert.False(t, runErr.Located())
	})

	t.Run("read-only violation", func(t *testing.T) {
		_, err := Prepare(Request{Mode: ReadQuery, Script: "SELECT 1; DROP TABLE t;", EnforceReadOnly: true})
		require.ErrorIs(t, err, ErrReadOnly)

		var runErr *Error
		require.ErrorAs(t, err, &runErr)
		assert.Equal(t, 1, runErr.Index)
		assert.Equal(t, "DROP TABLE t", runErr.Statement)
		assert.Equal(t, CodeReadOnly, runErr.Code)
	})

	t.Run("enforcement off", func(t *testing.T) {
		stmts, err := Prepare(Request{Mode: ReadQuery, Script: "SELECT 1; DROP TABLE t;"})
		require.NoError(t, err)
		assert.Len(t, stmts, 2)
	})

	t.Run("enforcement only applies to read queries", func(t *testing.T) {
		_, err := Prepare(Request{Mode: DataMutation, Script: "DELETE FROM t", EnforceReadOnly: true})
		require.NoError(t, err)
	})
}

func TestExecute_DataMutationRollsBackOnFailure(t *testing.T) {
	sess := &fakeSession{failOn: map[string]error{
		"UPDATE t SET a = 2": &DBError{Code: "1146", Message: "Table 'db.t' doesn't exist"},
	}}
	stmts, err := Prepare(Request{Mode: DataMutation, Script: "INSERT INTO t VALUES (1); UPDATE t SET a = 2; DELETE FROM t"})
	require.NoError(t, err)

	res, err := Execute(context.Background(), sess, DataMutation, stmts)
	require.Error(t, err)

	require.Len(t, res.Outcomes, 1)
	assert.Equal(t, 0, res.Outcomes[0].Stmt().Index)
	assert.False(t, res.Complete())

	var runErr *Error
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, KindExecution, runErr.Kind)
	assert.Equal(t, 1, runErr.Index)
	assert.Equal(t, "UPDATE t SET a = 2", runErr.Statement)
	assert.Equal(t, "1146", runErr.Code)
	assert.Equal(t, "Table 'db.t' doesn't exist", runErr.Message)

	assert.Equal(t, []string{"begin", "exec", "exec", "rollback"}, sess.calls)
}

func TestExecute_RollbackFailureKeepsOriginalError(t *testing.T) {
	original := &DBError{Message: "duplicate entry"}
	sess := &fakeSession{
		failOn:  map[string]error{"INSERT INTO t VALUES (1)": original},
		rollErr: errors.New("connection lost"),
	}
	stmts, err := Prepare(Request{Mode: DataMutation, Script: "INSERT INTO t VALUES (1)"})
	require.NoError(t, err)

	_, err = Execute(context.Background(), sess, DataMutation, stmts)
	require.ErrorIs(t, err, original)
	assert.Contains(t, sess.calls, "rollback")
}

func TestExecute_DataMutationCommits(t *testing.T) {
	sess := &fakeSession{}
	stmts, err := Prepare(Request{Mode: DataMutation, Script: "INSERT INTO t VALUES (1); SELECT * FROM t"})
	require.NoError(t, err)

	res, err := Execute(context.Background(), sess, DataMutation, stmts)
	require.NoError(t, err)
	assert.True(t, res.Complete())
	assert.Equal(t, []string{"begin", "exec", "exec", "commit"}, sess.calls)

	require.Len(t, res.Outcomes, 2)
	switch out := res.Outcomes[0].(type) {
	case *Acknowledgement:
		assert.Equal(t, int64(1), out.AffectedRows)
	case *RowSet:
		t.Fatalf("unexpected row set for insert")
	}
	rs, ok := res.Outcomes[1].(*RowSet)
	require.True(t, ok)
	assert.Equal(t, 1, rs.RowCount())
	assert.Equal(t, "SELECT * FROM t", rs.Statement.Text)
}

func TestExecute_CommitFailure(t *testing.T) {
	sess := &fakeSession{commitErr: errors.New("commit refused")}
	stmts, err := Prepare(Request{Mode: DataMutation, Script: "INSERT INTO t VALUES (1)"})
	require.NoError(t, err)

	res, err := Execute(context.Background(), sess, DataMutation, stmts)
	var runErr *Error
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, KindSession, runErr.Kind)
	assert.Equal(t, 0, runErr.Index)
	assert.Equal(t, "INSERT INTO t VALUES (1)", runErr.Statement)
	assert.ErrorContains(t, err, "failed to commit transaction")
	assert.Len(t, res.Outcomes, 1)
	assert.Equal(t, []string{"begin", "exec", "commit", "rollback"}, sess.calls)
}

func TestExecute_BeginFailure(t *testing.T) {
	sess := &fakeSession{beginErr: errors.New("no connection")}
	stmts, err := Prepare(Request{Mode: DataMutation, Script: "INSERT INTO t VALUES (1)"})
	require.NoError(t, err)

	res, err := Execute(context.Background(), sess, DataMutation, stmts)
	var runErr *Error
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, KindSession, runErr.Kind)
	assert.Empty(t, res.Outcomes)
	assert.Equal(t, []string{"begin"}, sess.calls)
}

func TestExecute_NonTransactionalModes(t *testing.T) {
	for _, mode := range []Mode{SchemaDefinition, ReadQuery, AccessControl} {
		t.Run(mode.String(), func(t *testing.T) {
			sess := &fakeSession{failOn: map[string]error{"BAD": &DBError{Message: "syntax error"}}}
			stmts, err := Prepare(Request{Mode: mode, Script: "SELECT 1; BAD; SELECT 2"})
			require.NoError(t, err)

			res, err := Execute(context.Background(), sess, mode, stmts)
			require.Error(t, err)
			assert.Len(t, res.Outcomes, 1)
			assert.Equal(t, []string{"exec", "exec"}, sess.calls)
		})
	}
}

func TestExecute_SessionFaultIsLocated(t *testing.T) {
	sess := &fakeSession{failOn: map[string]error{"SELECT 2": errors.New("broken pipe")}}
	stmts, err := Prepare(Request{Mode: SchemaDefinition, Script: "SELECT 1; SELECT 2"})
	require.NoError(t, err)

	_, err = Execute(context.Background(), sess, SchemaDefinition, stmts)
	var runErr *Error
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, KindSession, runErr.Kind)
	assert.Equal(t, 1, runErr.Index)
}

func TestRunner_Run(t *testing.T) {
	t.Run("read-only violation executes nothing", func(t *testing.T) {
		pool := &fakePool{sess: &fakeSession{}}
		res, err := New(pool).Run(context.Background(), Request{
			Mode:            ReadQuery,
			Script:          "SELECT 1; DROP TABLE t;",
			EnforceReadOnly: true,
		})
		var runErr *Error
		require.ErrorAs(t, err, &runErr)
		assert.Equal(t, 1, runErr.Index)
		assert.Empty(t, res.Outcomes)
		assert.Zero(t, pool.acquired)
		assert.Empty(t, pool.sess.calls)
	})

	t.Run("empty script never acquires", func(t *testing.T) {
		pool := &fakePool{sess: &fakeSession{}}
		_, err := New(pool).Run(context.Background(), Request{Mode: SchemaDefinition, Script: "   "})
		require.ErrorIs(t, err, ErrEmptyScript)
		assert.Zero(t, pool.acquired)
	})

	t.Run("session released on failure", func(t *testing.T) {
		pool := &fakePool{sess: &fakeSession{failOn: map[string]error{"SELECT 2": &DBError{Message: "boom"}}}}
		res, err := New(pool).Run(context.Background(), Request{Mode: ReadQuery, Script: "SELECT 1; SELECT 2", Database: "shop"})
		require.Error(t, err)
		assert.Len(t, res.Outcomes, 1)
		assert.Equal(t, 1, pool.acquired)
		assert.Equal(t, 1, pool.released)
		assert.Equal(t, "shop", pool.database)
	})

	t.Run("acquire failure is unlocated", func(t *testing.T) {
		pool := &fakePool{err: errors.New("too many connections")}
		_, err := New(pool).Run(context.Background(), Request{Mode: ReadQuery, Script: "SELECT 1"})
		var runErr *Error
		require.ErrorAs(t, err, &runErr)
		assert.Equal(t, KindSession, runErr.Kind)
		assert.Equal(t, -1, runErr.Index)
	})

	t.Run("success", func(t *testing.T) {
		pool := &fakePool{sess: &fakeSession{}}
		res, err := New(pool).Run(context.Background(), Request{Mode: ReadQuery, Script: "SELECT 1; SHOW TABLES", EnforceReadOnly: true})
		require.NoError(t, err)
		assert.True(t, res.Complete())
		assert.Equal(t, 1, pool.released)
	})
}

func TestOutcomeJSON(t *testing.T) {
	id := int64(42)
	res := &Result{Outcomes: []Outcome{
		&RowSet{
			Fields: []string{"id", "name"},
			Rows:   []Row{{Columns: []string{"id", "name"}, Values: []any{int64(1), []byte("alice")}}},
		},
		&Acknowledgement{AffectedRows: 3, InsertID: &id},
		&RowSet{},
	}}
	res.Outcomes[0].setStmt(statement(0, "SELECT id, name FROM users"))
	res.Outcomes[1].setStmt(statement(1, "INSERT INTO users (name) VALUES ('bob')"))

	b, err := json.Marshal(res.Outcomes)
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"index":0,"statement":"SELECT id, name FROM users","type":"resultset",
		 "fields":["id","name"],"rows":[{"id":1,"name":"alice"}],"rowCount":1},
		{"index":1,"statement":"INSERT INTO users (name) VALUES ('bob')","type":"ok",
		 "affectedRows":3,"message":"OK","insertId":42},
		{"index":0,"statement":"","type":"resultset","fields":[],"rows":[],"rowCount":0}
	]`, string(b))
}
