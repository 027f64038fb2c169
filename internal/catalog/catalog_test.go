package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildTree(t *testing.T) {
	tree := BuildTree(
		[]string{"information_schema", "shop"},
		[]TableRef{
			{Schema: "shop", Name: "orders"},
			{Schema: "shop", Name: "users"},
			{Schema: "orphan", Name: "t"},
		},
		[]ColumnRef{
			{Schema: "shop", Table: "users", Name: "id", Type: "int"},
			{Schema: "shop", Table: "users", Name: "name", Type: "varchar"},
			{Schema: "shop", Table: "orders", Name: "id", Type: "bigint"},
			{Schema: "shop", Table: "ghost", Name: "x", Type: "int"},
		},
		"shop",
	)

	b, err := json.Marshal(tree)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"currentDatabase": "shop",
		"databases": [
			{"name": "information_schema", "tables": []},
			{"name": "shop", "tables": [
				{"name": "orders", "columns": [{"name": "id", "type": "bigint"}]},
				{"name": "users", "columns": [
					{"name": "id", "type": "int"},
					{"name": "name", "type": "varchar"}
				]}
			]},
			{"name": "orphan", "tables": [{"name": "t", "columns": []}]}
		]
	}`, string(b))

	db, ok := tree.Find("shop")
	require.True(t, ok)
	assert.Len(t, db.Tables, 2)
	_, ok = tree.Find("missing")
	assert.False(t, ok)
}

func TestBuildTree_NoCurrentDatabase(t *testing.T) {
	b, err := json.Marshal(BuildTree(nil, nil, nil, ""))
	require.NoError(t, err)
	assert.JSONEq(t, `{"databases": []}`, string(b))
}

func expectCatalog(mock sqlmock.Sqlmock) {
	mock.ExpectQuery(databasesQuery).WillReturnRows(sqlmock.NewRows([]string{"schema_name"}).AddRow("shop"))
	mock.ExpectQuery(tablesQuery).WillReturnRows(sqlmock.NewRows([]string{"table_schema", "table_name"}).AddRow("shop", "users"))
	mock.ExpectQuery(columnsQuery).WillReturnRows(
		sqlmock.NewRows([]string{"table_schema", "table_name", "column_name", "data_type"}).
			AddRow("shop", "users", "id", "int"),
	)
}

func TestCatalog_TreeIsCached(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()

	expectCatalog(mock)
	cat := New(db, time.Minute)

	first, err := cat.Tree(context.Background(), "shop")
	require.NoError(t, err)
	second, err := cat.Tree(context.Background(), "shop")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.NoError(t, mock.ExpectationsWereMet())

	expectCatalog(mock)
	cat.Invalidate()
	_, err = cat.Tree(context.Background(), "shop")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalog_LoadError(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(databasesQuery).WillReturnRows(sqlmock.NewRows([]string{"schema_name"}).AddRow("shop"))
	mock.ExpectQuery(tablesQuery).WillReturnError(errors.New("access denied"))

	_, err = New(db, time.Minute).Tree(context.Background(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to list tables")
}
