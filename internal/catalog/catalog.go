// Package catalog reads database, table and column metadata from
// information_schema and arranges it as a tree.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	databasesQuery = `SELECT schema_name FROM information_schema.schemata ORDER BY schema_name`
	tablesQuery    = `SELECT table_schema, table_name FROM information_schema.tables WHERE table_type = 'BASE TABLE' ORDER BY table_schema, table_name`
	columnsQuery   = `SELECT table_schema, table_name, column_name, data_type FROM information_schema.columns ORDER BY table_schema, table_name, ordinal_position`
)

// Column is one table column.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Table is one base table.
type Table struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
}

// Database is one schema with its tables.
type Database struct {
	Name   string  `json:"name"`
	Tables []Table `json:"tables"`
}

// Tree is the full catalog as seen from CurrentDatabase.
type Tree struct {
	CurrentDatabase string     `json:"currentDatabase,omitempty"`
	Databases       []Database `json:"databases"`
}

// Find returns the database called name.
func (t *Tree) Find(name string) (*Database, bool) {
	for i := range t.Databases {
		if t.Databases[i].Name == name {
			return &t.Databases[i], true
		}
	}
	return nil, false
}

// TableRef names a table within a schema.
type TableRef struct {
	Schema string
	Name   string
}

// ColumnRef names a column within a schema table.
type ColumnRef struct {
	Schema string
	Table  string
	Name   string
	Type   string
}

// BuildTree groups tables and columns under their databases. Tables whose
// schema is missing from databases still get an entry; columns of unknown
// tables are dropped. Input order is preserved.
func BuildTree(databases []string, tables []TableRef, columns []ColumnRef, current string) Tree {
	tree := Tree{CurrentDatabase: current, Databases: []Database{}}
	dbIndex := make(map[string]int, len(databases))

	addDB := func(name string) int {
		if i, ok := dbIndex[name]; ok {
			return i
		}
		tree.Databases = append(tree.Databases, Database{Name: name, Tables: []Table{}})
		dbIndex[name] = len(tree.Databases) - 1
		return dbIndex[name]
	}

	for _, name := range databases {
		addDB(name)
	}

	type pos struct{ db, table int }
	tableIndex := make(map[TableRef]pos, len(tables))
	for _, t := range tables {
		di := addDB(t.Schema)
		db := &tree.Databases[di]
		db.Tables = append(db.Tables, Table{Name: t.Name, Columns: []Column{}})
		tableIndex[t] = pos{di, len(db.Tables) - 1}
	}

	for _, c := range columns {
		p, ok := tableIndex[TableRef{Schema: c.Schema, Name: c.Table}]
		if !ok {
			continue
		}
		tbl := &tree.Databases[p.db].Tables[p.table]
		tbl.Columns = append(tbl.Columns, Column{Name: c.Name, Type: c.Type})
	}
	return tree
}

// Querier is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Catalog loads trees and caches them per current database.
type Catalog struct {
	q     Querier
	cache *expirable.LRU[string, Tree]
}

// New creates a catalog reading through q. Cached trees expire after ttl.
func New(q Querier, ttl time.Duration) *Catalog {
	return &Catalog{
		q:     q,
		cache: expirable.NewLRU[string, Tree](16, nil, ttl),
	}
}

// Tree returns the catalog tree, from cache when fresh.
func (c *Catalog) Tree(ctx context.Context, current string) (Tree, error) {
	if tree, ok := c.cache.Get(current); ok {
		return tree, nil
	}
	tree, err := c.Load(ctx, current)
	if err != nil {
		return Tree{}, err
	}
	c.cache.Add(current, tree)
	return tree, nil
}

// Invalidate drops every cached tree. Callers invoke it after running
// statements that may change the schema.
func (c *Catalog) Invalidate() {
	c.cache.Purge()
}

// Load reads the catalog without consulting the cache.
func (c *Catalog) Load(ctx context.Context, current string) (Tree, error) {
	databases, err := c.databases(ctx)
	if err != nil {
		return Tree{}, err
	}
	tables, err := c.tables(ctx)
	if err != nil {
		return Tree{}, err
	}
	columns, err := c.columns(ctx)
	if err != nil {
		return Tree{}, err
	}
	return BuildTree(databases, tables, columns, current), nil
}

// Databases lists schema names.
func (c *Catalog) Databases(ctx context.Context) ([]string, error) {
	return c.databases(ctx)
}

func (c *Catalog) databases(ctx context.Context) ([]string, error) {
	rows, err := c.q.QueryContext(ctx, databasesQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to list databases: %w", err)
	}
	defer rows.Close()

	var databases []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan database: %w", err)
		}
		databases = append(databases, name)
	}
	return databases, rows.Err()
}

func (c *Catalog) tables(ctx context.Context) ([]TableRef, error) {
	rows, err := c.q.QueryContext(ctx, tablesQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var tables []TableRef
	for rows.Next() {
		var t TableRef
		if err := rows.Scan(&t.Schema, &t.Name); err != nil {
			return nil, fmt.Errorf("failed to scan table: %w", err)
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

func (c *Catalog) columns(ctx context.Context) ([]ColumnRef, error) {
	rows, err := c.q.QueryContext(ctx, columnsQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to list columns: %w", err)
	}
	defer rows.Close()

	var columns []ColumnRef
	for rows.Next() {
		var col ColumnRef
		if err := rows.Scan(&col.Schema, &col.Table, &col.Name, &col.Type); err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}
		columns = append(columns, col)
	}
	return columns, rows.Err()
}
