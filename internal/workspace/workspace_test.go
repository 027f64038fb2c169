package workspace

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c4pt0r/sqlground/internal/runner"
)

type recorder struct {
	reqs []runner.Request
	res  *runner.Result
	err  error
}

func (r *recorder) run(_ context.Context, req runner.Request) (*runner.Result, error) {
	r.reqs = append(r.reqs, req)
	if r.res == nil {
		return &runner.Result{Mode: req.Mode}, r.err
	}
	return r.res, r.err
}

func TestWorkspace_EditAndSnapshot(t *testing.T) {
	ws := New((&recorder{}).run)

	require.NoError(t, ws.Edit(runner.DataMutation, "INSERT INTO t VALUES (1)"))
	require.NoError(t, ws.Append(runner.DataMutation, "INSERT INTO t VALUES (2)"))

	st, err := ws.Snapshot(runner.DataMutation)
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO t VALUES (1)\nINSERT INTO t VALUES (2)", st.Script)

	other, err := ws.Snapshot(runner.ReadQuery)
	require.NoError(t, err)
	assert.Empty(t, other.Script)

	assert.ErrorIs(t, ws.Edit(runner.ModeUnknown, "x"), runner.ErrInvalidMode)
}

func TestWorkspace_RunPassesSettings(t *testing.T) {
	rec := &recorder{}
	ws := New(rec.run)
	ws.SetDatabase("shop")
	require.NoError(t, ws.Edit(runner.ReadQuery, "SELECT 1"))

	_, err := ws.Run(context.Background(), runner.ReadQuery)
	require.NoError(t, err)

	require.Len(t, rec.reqs, 1)
	assert.Equal(t, runner.Request{
		Mode:            runner.ReadQuery,
		Script:          "SELECT 1",
		Database:        "shop",
		EnforceReadOnly: true,
	}, rec.reqs[0])

	st, _ := ws.Snapshot(runner.ReadQuery)
	assert.False(t, st.Running)
	assert.NotNil(t, st.Result)
	assert.NoError(t, st.Err)
}

func TestWorkspace_ReadOnlyPrecheck(t *testing.T) {
	rec := &recorder{}
	ws := New(rec.run)
	require.NoError(t, ws.Edit(runner.ReadQuery, "SELECT 1; DELETE FROM t"))

	res, err := ws.Run(context.Background(), runner.ReadQuery)
	require.Error(t, err)
	assert.Empty(t, rec.reqs, "nothing may be sent")
	assert.Empty(t, res.Outcomes)

	var runErr *runner.Error
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, runner.CodeReadOnly, runErr.Code)
	assert.Equal(t, 1, runErr.Index)
	assert.ErrorIs(t, err, runner.ErrReadOnly)

	ws.SetReadOnly(false)
	_, err = ws.Run(context.Background(), runner.ReadQuery)
	require.NoError(t, err)
	require.Len(t, rec.reqs, 1)
	assert.False(t, rec.reqs[0].EnforceReadOnly)
}

func TestWorkspace_RunRecordsFailure(t *testing.T) {
	cause := &runner.Error{Kind: runner.KindExecution, Message: "boom", Index: 0}
	rec := &recorder{err: cause}
	ws := New(rec.run)
	require.NoError(t, ws.Edit(runner.DataMutation, "DELETE FROM t"))

	_, err := ws.Run(context.Background(), runner.DataMutation)
	assert.ErrorIs(t, err, cause)

	st, _ := ws.Snapshot(runner.DataMutation)
	assert.ErrorIs(t, st.Err, cause)
	assert.Equal(t, "DELETE FROM t", st.Script)

	require.NoError(t, ws.Clear(runner.DataMutation))
	st, _ = ws.Snapshot(runner.DataMutation)
	assert.Empty(t, st.Script)
	assert.Nil(t, st.Result)
	assert.NoError(t, st.Err)
}

func TestWorkspace_SchemaChangeCallback(t *testing.T) {
	calls := 0
	ws := New((&recorder{err: errors.New("denied")}).run)
	ws.OnSchemaChange(func() { calls++ })

	for _, m := range runner.Modes {
		require.NoError(t, ws.Edit(m, "SHOW TABLES"))
		_, _ = ws.Run(context.Background(), m)
	}
	assert.Equal(t, 2, calls)
}

func TestWorkspace_RejectsConcurrentRunOfSameMode(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	ws := New(func(_ context.Context, req runner.Request) (*runner.Result, error) {
		close(started)
		<-release
		return &runner.Result{Mode: req.Mode}, nil
	})
	require.NoError(t, ws.Edit(runner.DataMutation, "DELETE FROM t"))

	done := make(chan error, 1)
	go func() {
		_, err := ws.Run(context.Background(), runner.DataMutation)
		done <- err
	}()
	<-started

	_, err := ws.Run(context.Background(), runner.DataMutation)
	assert.ErrorIs(t, err, ErrRunning)
	assert.ErrorIs(t, ws.Edit(runner.DataMutation, "x"), ErrRunning)
	st, _ := ws.Snapshot(runner.DataMutation)
	assert.True(t, st.Running)

	close(release)
	require.NoError(t, <-done)
}

func TestPrecheck_MatchesRunnerValidation(t *testing.T) {
	req := runner.Request{Mode: runner.ReadQuery, Script: "SHOW TABLES;\n/* x */ drop table t", EnforceReadOnly: true}

	var local, remote *runner.Error
	require.ErrorAs(t, precheck(req), &local)
	_, err := runner.Prepare(req)
	require.ErrorAs(t, err, &remote)

	assert.Equal(t, remote.Kind, local.Kind)
	assert.Equal(t, remote.Message, local.Message)
	assert.Equal(t, remote.Code, local.Code)
	assert.Equal(t, remote.Index, local.Index)
	assert.Equal(t, remote.Statement, local.Statement)
}
