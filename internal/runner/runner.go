// Package runner executes SQL scripts statement by statement against a
// database session.
package runner

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/c4pt0r/sqlground/internal/telemetry"
	"github.com/c4pt0r/sqlground/sqlsplit"
)

// Request is one script submission.
type Request struct {
	Mode   Mode
	Script string
	// Database selects the default schema for the session, when set.
	Database string
	// EnforceReadOnly rejects ReadQuery scripts containing statements outside
	// the read-only whitelist.
	EnforceReadOnly bool
}

// Prepare validates a request and splits its script. No session is needed:
// every error returned here is a validation error.
func Prepare(req Request) ([]sqlsplit.Statement, error) {
	if req.Mode == ModeUnknown {
		return nil, validationError("Invalid mode.", ErrInvalidMode)
	}

	stmts := sqlsplit.Split(req.Script)
	if len(stmts) == 0 {
		return nil, validationError("SQL is empty.", ErrEmptyScript)
	}

	if req.Mode == ReadQuery && req.EnforceReadOnly {
		var v *sqlsplit.Violation
		if err := sqlsplit.CheckReadOnly(stmts); errors.As(err, &v) {
			return nil, ReadOnlyError(v)
		}
	}
	return stmts, nil
}

// Execute runs stmts in order on sess. DataMutation scripts run in one
// transaction that is rolled back on the first failure.
//
// The returned Result is never nil. On failure it holds the outcomes of the
// statements that ran before the fault and the error is an *Error.
func Execute(ctx context.Context, sess Session, mode Mode, stmts []sqlsplit.Statement) (*Result, error) {
	res := &Result{Mode: mode, Statements: len(stmts)}
	logger := log.With().Str("mode", mode.String()).Int("statements", len(stmts)).Logger()

	if mode.Transactional() {
		if err := sess.Begin(ctx); err != nil {
			return res, sessionError("failed to begin transaction", err)
		}
	}

	for _, stmt := range stmts {
		out, err := sess.Execute(ctx, stmt.Text)
		if err != nil {
			logger.Debug().Err(err).Int("index", stmt.Index).Msg("statement failed")
			if mode.Transactional() {
				rollback(sess, logger)
			}
			return res, executionError(stmt.Index, stmt.Text, err)
		}
		out.setStmt(stmt)
		res.Outcomes = append(res.Outcomes, out)
	}

	if mode.Transactional() {
		if err := sess.Commit(); err != nil {
			rollback(sess, logger)
			e := sessionError("failed to commit transaction", err)
			// Located at the last attempted statement.
			if n := len(stmts); n > 0 {
				e.Index, e.Statement = stmts[n-1].Index, stmts[n-1].Text
			}
			return res, e
		}
	}
	return res, nil
}

// rollback is best effort: its failure never replaces the original error.
func rollback(sess Session, logger zerolog.Logger) {
	if err := sess.Rollback(); err != nil {
		telemetry.RollbacksTotal.WithLabelValues("failed").Inc()
		logger.Warn().Err(err).Msg("rollback failed")
		return
	}
	telemetry.RollbacksTotal.WithLabelValues("ok").Inc()
}

// Runner runs scripts on sessions drawn from a pool.
type Runner struct {
	pool Pool
}

// New creates a Runner backed by pool.
func New(pool Pool) *Runner {
	return &Runner{pool: pool}
}

// Run validates req, acquires a session and executes the script. Validation
// happens before acquisition, so invalid scripts never hold a connection.
func (r *Runner) Run(ctx context.Context, req Request) (res *Result, err error) {
	start := time.Now()
	defer func() {
		telemetry.ObserveRun(req.Mode.String(), resultLabel(err), len(res.Outcomes), time.Since(start))
	}()

	res = &Result{Mode: req.Mode}
	stmts, err := Prepare(req)
	if err != nil {
		return res, err
	}
	res.Statements = len(stmts)

	sess, release, err := r.pool.Acquire(ctx, req.Database)
	if err != nil {
		return res, sessionError("failed to acquire session", err)
	}
	defer release()

	return Execute(ctx, sess, req.Mode, stmts)
}

func resultLabel(err error) string {
	var runErr *Error
	if err == nil {
		return "ok"
	}
	if errors.As(err, &runErr) {
		return runErr.Kind.String()
	}
	return "unknown"
}
