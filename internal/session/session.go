// Package session implements the runner's Session and Pool on top of
// database/sql and the MySQL driver.
package session

import (
	"context"
	"crypto/tls"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	"github.com/c4pt0r/sqlground/internal/config"
	"github.com/c4pt0r/sqlground/internal/runner"
	"github.com/c4pt0r/sqlground/sqlsplit"
)

const tlsConfigName = "sqlground"

// rowKeywords are leading keywords of statements that return a result set.
var rowKeywords = map[string]struct{}{
	"SELECT":   {},
	"SHOW":     {},
	"DESCRIBE": {},
	"DESC":     {},
	"EXPLAIN":  {},
	"WITH":     {},
	"VALUES":   {},
	"TABLE":    {},
	"HELP":     {},
	"CALL":     {},
	"CHECK":    {},
	"CHECKSUM": {},
	"ANALYZE":  {},
	"OPTIMIZE": {},
	"REPAIR":   {},
}

// ReturnsRows reports whether stmt is expected to produce a result set.
// A WITH statement returns rows unless its main statement is a mutation.
func ReturnsRows(stmt string) bool {
	kw := sqlsplit.LeadingKeyword(stmt)
	if kw == "WITH" {
		return !withMutates(stmt)
	}
	_, ok := rowKeywords[kw]
	return ok
}

// withMutates finds the first statement keyword that follows the common
// table expressions of stmt. Words inside parentheses, quotes and comments
// belong to the expressions and are skipped.
func withMutates(stmt string) bool {
	depth := 0
	for i := 0; i < len(stmt); i++ {
		c := stmt[i]
		switch {
		case c == '\'' || c == '"' || c == '`':
			i = skipQuoted(stmt, i)
		case c == '#' || (c == '-' && strings.HasPrefix(stmt[i:], "-- ")):
			if nl := strings.IndexByte(stmt[i:], '\n'); nl >= 0 {
				i += nl
			} else {
				return false
			}
		case c == '/' && strings.HasPrefix(stmt[i:], "/*"):
			end := strings.Index(stmt[i+2:], "*/")
			if end < 0 {
				return false
			}
			i += end + 3
		case c == '(':
			depth++
		case c == ')':
			depth--
		case isWordByte(c):
			j := i
			for j < len(stmt) && isWordByte(stmt[j]) {
				j++
			}
			if depth == 0 {
				switch strings.ToUpper(stmt[i:j]) {
				case "UPDATE", "DELETE", "INSERT", "REPLACE":
					return true
				case "SELECT", "TABLE", "VALUES":
					return false
				}
			}
			i = j - 1
		}
	}
	return false
}

// skipQuoted returns the offset of the quote closing the one at i.
func skipQuoted(s string, i int) int {
	q := s[i]
	for i++; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case q:
			return i
		}
	}
	return len(s)
}

func isWordByte(b byte) bool {
	return b == '_' || b == '$' || ('0' <= b && b <= '9') || ('a' <= b && b <= 'z') || ('A' <= b && b <= 'Z')
}

// DSN builds the driver DSN for cfg. Multi-statement mode stays off: scripts
// are split before they reach the driver.
func DSN(cfg config.Database) string {
	mc := mysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	mc.DBName = cfg.Name
	mc.Params = map[string]string{"charset": "utf8mb4"}
	if cfg.TLS {
		mc.TLSConfig = tlsConfigName
	}
	return mc.FormatDSN()
}

// Open connects to the server described by cfg and returns a pool bounded by
// cfg.MaxOpenConns. cfg.Name is the schema every pooled connection starts in.
func Open(ctx context.Context, cfg config.Database) (*Pool, error) {
	if cfg.TLS {
		err := mysql.RegisterTLSConfig(tlsConfigName, &tls.Config{
			MinVersion: tls.VersionTLS12,
			ServerName: cfg.Host,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to register TLS config: %w", err)
		}
	}

	db, err := sql.Open("mysql", DSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxOpenConns)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	log.Info().Str("host", cfg.Host).Int("port", cfg.Port).Int("max_open_conns", cfg.MaxOpenConns).Msg("connected to database")
	p := NewPool(db)
	p.database = cfg.Name
	return p, nil
}

// Pool hands out one dedicated connection per run.
//
// Connections go back to the pool only while their session is known to be
// clean. Anything that may leave state behind, such as an open transaction,
// a lock, a variable or a different current schema, gets the connection
// closed on release.
type Pool struct {
	db *sql.DB
	// database is the schema new connections start in.
	database string
}

// NewPool wraps an existing handle whose connections start without a
// current schema.
func NewPool(db *sql.DB) *Pool {
	return &Pool{db: db}
}

// DB returns the underlying handle.
func (p *Pool) DB() *sql.DB {
	return p.db
}

// Close closes the underlying handle.
func (p *Pool) Close() error {
	return p.db.Close()
}

// Acquire reserves a connection and switches it to database when set. The
// release func returns the connection to the pool, or closes it when the run
// may have changed its session state.
func (p *Pool) Acquire(ctx context.Context, database string) (runner.Session, func(), error) {
	conn, err := p.db.Conn(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get connection: %w", err)
	}
	s := &Conn{conn: conn}
	release := func() {
		if s.tx != nil {
			if err := s.tx.Rollback(); err != nil {
				s.dirty = true
			}
			s.tx = nil
		}
		if s.dirty {
			discard(conn)
			return
		}
		if err := conn.Close(); err != nil {
			log.Debug().Err(err).Msg("failed to release connection")
		}
	}

	if database != "" && database != p.database {
		s.dirty = true
		if _, err := conn.ExecContext(ctx, "USE "+QuoteIdentifier(database)); err != nil {
			release()
			return nil, nil, fmt.Errorf("failed to select database %s: %w", database, convertError(err))
		}
	}
	return s, release, nil
}

// discard closes the physical connection behind conn instead of pooling it.
// database/sql drops a connection whose Raw callback reports ErrBadConn.
func discard(conn *sql.Conn) {
	err := conn.Raw(func(any) error { return driver.ErrBadConn })
	if err != nil && !errors.Is(err, driver.ErrBadConn) {
		log.Debug().Err(err).Msg("failed to discard connection")
		return
	}
	log.Debug().Msg("discarded connection with modified session state")
}

// QuoteIdentifier quotes name with backticks, doubling embedded backticks.
func QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Conn is a runner.Session bound to one connection.
type Conn struct {
	conn *sql.Conn
	tx   *sql.Tx
	// dirty is set once the session state may differ from a fresh
	// connection's.
	dirty bool
}

var _ runner.Session = (*Conn)(nil)

func (c *Conn) target() execer {
	if c.tx != nil {
		return c.tx
	}
	return c.conn
}

// Execute runs query, reading rows for statements that return a result set.
func (c *Conn) Execute(ctx context.Context, query string) (runner.Outcome, error) {
	if !sqlsplit.IsReadOnly(query) {
		c.dirty = true
	}
	if ReturnsRows(query) {
		return c.query(ctx, query)
	}
	return c.exec(ctx, query)
}

func (c *Conn) exec(ctx context.Context, query string) (runner.Outcome, error) {
	res, err := c.target().ExecContext(ctx, query)
	if err != nil {
		return nil, convertError(err)
	}
	ack := &runner.Acknowledgement{Message: "OK"}
	if n, err := res.RowsAffected(); err == nil {
		ack.AffectedRows = n
	}
	if id, err := res.LastInsertId(); err == nil && id != 0 {
		ack.InsertID = &id
	}
	return ack, nil
}

func (c *Conn) query(ctx context.Context, query string) (runner.Outcome, error) {
	rows, err := c.target().QueryContext(ctx, query)
	if err != nil {
		return nil, convertError(err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, convertError(err)
	}
	// CALL and friends may end up without a result set.
	if len(cols) == 0 {
		return &runner.Acknowledgement{Message: "OK"}, rows.Err()
	}

	rs := &runner.RowSet{Fields: cols, Rows: []runner.Row{}}
	for rows.Next() {
		values := make([]any, len(cols))
		pointers := make([]any, len(cols))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, convertError(err)
		}
		rs.Rows = append(rs.Rows, runner.Row{Columns: cols, Values: values})
	}
	if err := rows.Err(); err != nil {
		return nil, convertError(err)
	}
	return rs, nil
}

// Begin opens a transaction on the connection.
func (c *Conn) Begin(ctx context.Context) error {
	if c.tx != nil {
		return errors.New("transaction already open")
	}
	tx, err := c.conn.BeginTx(ctx, nil)
	if err != nil {
		return convertError(err)
	}
	c.tx = tx
	return nil
}

// Commit commits the open transaction.
func (c *Conn) Commit() error {
	if c.tx == nil {
		return sql.ErrTxDone
	}
	err := c.tx.Commit()
	c.tx = nil
	return convertError(err)
}

// Rollback aborts the open transaction.
func (c *Conn) Rollback() error {
	if c.tx == nil {
		return sql.ErrTxDone
	}
	err := c.tx.Rollback()
	c.tx = nil
	return convertError(err)
}

// convertError turns server errors into *runner.DBError carrying the MySQL
// error number as code. Other errors are returned unchanged.
func convertError(err error) error {
	if err == nil {
		return nil
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return &runner.DBError{Code: strconv.Itoa(int(me.Number)), Message: me.Message, Err: err}
	}
	return err
}
