package runner

import "context"

// Session is exclusive use of one database connection for the duration of a
// run.
type Session interface {
	// Execute runs one statement and returns a *RowSet or *Acknowledgement.
	// The returned outcome's statement is filled in by the runner.
	// Statement rejections should be returned as *DBError.
	Execute(ctx context.Context, query string) (Outcome, error)
	// Begin opens a transaction; subsequent Execute calls run inside it.
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error
}

// Pool hands out sessions. The release func must be called on every path
// once the run is over.
type Pool interface {
	Acquire(ctx context.Context, database string) (Session, func(), error)
}
