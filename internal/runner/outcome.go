package runner

import (
	"encoding/json"

	"github.com/c4pt0r/sqlground/sqlsplit"
)

// Outcome is the result of one successfully executed statement. It is either
// a *RowSet or an *Acknowledgement.
type Outcome interface {
	// Stmt returns the statement that produced the outcome.
	Stmt() sqlsplit.Statement
	setStmt(sqlsplit.Statement)
}

// Row is one record of a row set, values in column order.
type Row struct {
	Columns []string
	Values  []any
}

// MarshalJSON renders the row as an object keyed by column name. Byte slices
// returned by the driver are rendered as text.
func (r Row) MarshalJSON() ([]byte, error) {
	converted := make(map[string]any, len(r.Columns))
	for i, col := range r.Columns {
		val := r.Values[i]
		if byteVal, ok := val.([]byte); ok {
			converted[col] = string(byteVal)
		} else {
			converted[col] = val
		}
	}
	return json.Marshal(converted)
}

// RowSet is the outcome of a statement that returned rows.
type RowSet struct {
	Statement sqlsplit.Statement
	Fields    []string
	Rows      []Row
}

func (r *RowSet) Stmt() sqlsplit.Statement       { return r.Statement }
func (r *RowSet) setStmt(s sqlsplit.Statement) { r.Statement = s }

// RowCount is the number of rows returned.
func (r *RowSet) RowCount() int { return len(r.Rows) }

func (r *RowSet) MarshalJSON() ([]byte, error) {
	fields := r.Fields
	if fields == nil {
		fields = []string{}
	}
	rows := r.Rows
	if rows == nil {
		rows = []Row{}
	}
	return json.Marshal(struct {
		Index     int      `json:"index"`
		Statement string   `json:"statement"`
		Type      string   `json:"type"`
		Fields    []string `json:"fields"`
		Rows      []Row    `json:"rows"`
		RowCount  int      `json:"rowCount"`
	}{r.Statement.Index, r.Statement.Text, "resultset", fields, rows, len(rows)})
}

// Acknowledgement is the outcome of a statement that did not return rows.
type Acknowledgement struct {
	Statement    sqlsplit.Statement
	AffectedRows int64
	// InsertID is set when the statement generated an auto-increment value.
	InsertID *int64
	Message  string
}

func (a *Acknowledgement) Stmt() sqlsplit.Statement       { return a.Statement }
func (a *Acknowledgement) setStmt(s sqlsplit.Statement) { a.Statement = s }

func (a *Acknowledgement) MarshalJSON() ([]byte, error) {
	msg := a.Message
	if msg == "" {
		msg = "OK"
	}
	return json.Marshal(struct {
		Index        int    `json:"index"`
		Statement    string `json:"statement"`
		Type         string `json:"type"`
		AffectedRows int64  `json:"affectedRows"`
		Message      string `json:"message"`
		InsertID     *int64 `json:"insertId,omitempty"`
	}{a.Statement.Index, a.Statement.Text, "ok", a.AffectedRows, msg, a.InsertID})
}

// Result is the ordered outcome sequence of one run. When the run failed it
// holds exactly the prefix that executed before the fault.
type Result struct {
	Mode     Mode
	Outcomes []Outcome
	// Statements is the number of statements the script split into.
	Statements int
}

// Complete reports whether every statement produced an outcome.
func (r *Result) Complete() bool {
	return r != nil && len(r.Outcomes) == r.Statements
}
