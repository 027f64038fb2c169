package runner

import (
	"errors"
	"fmt"

	"github.com/c4pt0r/sqlground/sqlsplit"
)

var (
	// ErrEmptyScript is returned when a script contains no statements.
	ErrEmptyScript = errors.New("SQL is empty")
	// ErrInvalidMode is returned for an unrecognized mode token.
	ErrInvalidMode = errors.New("invalid mode")
	// ErrReadOnly is returned when a read query script contains a statement
	// outside the read-only whitelist.
	ErrReadOnly = errors.New("read-only violation")
)

// CodeReadOnly is the error code reported for read-only violations.
const CodeReadOnly = "DQL_ONLY"

// Kind classifies where a run failed.
type Kind int

const (
	// KindValidation errors are detected before any statement executes.
	KindValidation Kind = iota
	// KindExecution errors are statements rejected by the database.
	KindExecution
	// KindSession errors are connectivity or transaction-control faults.
	KindSession
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindExecution:
		return "execution"
	case KindSession:
		return "session"
	default:
		return "unknown"
	}
}

// Error is the failure of a run. Index is -1 when the failure is not tied to
// a statement.
type Error struct {
	Kind      Kind
	Message   string
	Code      string
	Index     int
	Statement string
	Err       error
}

func (e *Error) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("statement %d: %s", e.Index, e.Message)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Located reports whether the error points at a statement.
func (e *Error) Located() bool {
	return e.Index >= 0
}

// DBError is a statement rejected by the database. Sessions convert driver
// errors into DBError so the code survives without the runner knowing the
// driver.
type DBError struct {
	Code    string
	Message string
	Err     error
}

func (e *DBError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s)", e.Message, e.Code)
	}
	return e.Message
}

func (e *DBError) Unwrap() error {
	return e.Err
}

func validationError(msg string, err error) *Error {
	return &Error{Kind: KindValidation, Message: msg, Index: -1, Err: err}
}

// ReadOnlyError reports the first statement of a read query script that is
// outside the read-only whitelist.
func ReadOnlyError(v *sqlsplit.Violation) *Error {
	return &Error{
		Kind:      KindValidation,
		Message:   "DQL allows only SELECT/SHOW/DESCRIBE/EXPLAIN statements.",
		Code:      CodeReadOnly,
		Index:     v.Statement.Index,
		Statement: v.Statement.Text,
		Err:       errors.Join(ErrReadOnly, v),
	}
}

func sessionError(msg string, err error) *Error {
	return &Error{Kind: KindSession, Message: fmt.Sprintf("%s: %v", msg, err), Index: -1, Err: err}
}

// executionError locates err at the statement that failed. A fault that is
// not a DBError is still reported at the attempted index, but as a session
// error.
func executionError(idx int, stmt string, err error) *Error {
	e := &Error{Kind: KindExecution, Message: err.Error(), Index: idx, Statement: stmt, Err: err}
	var dbErr *DBError
	if errors.As(err, &dbErr) {
		e.Message = dbErr.Message
		e.Code = dbErr.Code
	} else {
		e.Kind = KindSession
	}
	return e
}
