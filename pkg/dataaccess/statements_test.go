package dataaccess

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectSQL(t *testing.T) {
	tests := []struct {
		name     string
		stmt     *Select
		wantSQL  string
		wantArgs []any
	}{
		{
			"star projection",
			&Select{From: "CatalogService_Books"},
			`SELECT * FROM "CatalogService_Books"`,
			nil,
		},
		{
			"explicit columns",
			&Select{From: "CatalogService_Books", Columns: []string{"ID", "title"}},
			`SELECT "ID", "title" FROM "CatalogService_Books"`,
			nil,
		},
		{
			"count only",
			&Select{From: "CatalogService_Books", CountOnly: true},
			`SELECT count(1) AS count FROM "CatalogService_Books"`,
			nil,
		},
		{
			"aggregates",
			&Select{
				From: "CatalogService_Books",
				Aggregates: []Aggregate{
					{Func: "max", Field: "stock", Alias: "max_stock"},
					{Func: "avg", Field: "price", Alias: "avg_price"},
				},
			},
			`SELECT max("stock") AS "max_stock", avg("price") AS "avg_price" FROM "CatalogService_Books"`,
			nil,
		},
		{
			"where order limit offset",
			&Select{
				From:    "CatalogService_Books",
				Columns: []string{"title"},
				Where:   &Comparison{Field: "stock", Op: OpGt, Value: 5},
				OrderBy: []Ordering{{Field: "title"}, {Field: "stock", Desc: true}},
				Limit:   10,
				Offset:  20,
			},
			`SELECT "title" FROM "CatalogService_Books" WHERE "stock" > $1 ORDER BY "title", "stock" DESC LIMIT 10 OFFSET 20`,
			[]any{5},
		},
		{
			"zero limit is omitted",
			&Select{From: "t", Limit: 0, Offset: 0},
			`SELECT * FROM "t"`,
			nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args, err := tt.stmt.SQL()
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, sql)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestSelectSQLRejectsUnknownAggregate(t *testing.T) {
	stmt := &Select{
		From:       "t",
		Aggregates: []Aggregate{{Func: "pg_sleep", Field: "x", Alias: "y"}},
	}
	_, _, err := stmt.SQL()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pg_sleep")
}

func TestInsertSQL(t *testing.T) {
	stmt := &Insert{
		Into: "CatalogService_Books",
		Row:  map[string]any{"title": "Leviathan", "ID": "b1", "stock": 7},
	}

	sql, args, err := stmt.SQL()
	require.NoError(t, err)
	// Columns come out sorted so the statement is deterministic.
	assert.Equal(t, `INSERT INTO "CatalogService_Books" ("ID", "stock", "title") VALUES ($1, $2, $3) RETURNING *`, sql)
	assert.Equal(t, []any{"b1", 7, "Leviathan"}, args)
}

func TestInsertSQLRejectsEmptyRow(t *testing.T) {
	stmt := &Insert{Into: "t", Row: map[string]any{}}
	_, _, err := stmt.SQL()
	require.Error(t, err)
}

func TestUpdateSQLContinuesPlaceholderNumbering(t *testing.T) {
	stmt := &Update{
		Table: "CatalogService_Books",
		Set:   map[string]any{"title": "Renamed", "stock": 3},
		Where: &Comparison{Field: "ID", Op: OpEq, Value: "b1"},
	}

	sql, args, err := stmt.SQL()
	require.NoError(t, err)
	assert.Equal(t, `UPDATE "CatalogService_Books" SET "stock" = $1, "title" = $2 WHERE "ID" = $3`, sql)
	assert.Equal(t, []any{3, "Renamed", "b1"}, args)
}

func TestUpdateSQLRejectsEmptySet(t *testing.T) {
	stmt := &Update{Table: "t", Set: map[string]any{}}
	_, _, err := stmt.SQL()
	require.Error(t, err)
}

func TestDeleteSQL(t *testing.T) {
	stmt := &Delete{
		From:  "CatalogService_Books",
		Where: &Comparison{Field: "ID", Op: OpEq, Value: "b1"},
	}

	sql, args, err := stmt.SQL()
	require.NoError(t, err)
	assert.Equal(t, `DELETE FROM "CatalogService_Books" WHERE "ID" = $1`, sql)
	assert.Equal(t, []any{"b1"}, args)
}

func TestDeleteSQLRequiresPredicate(t *testing.T) {
	stmt := &Delete{From: "CatalogService_Books"}
	_, _, err := stmt.SQL()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires a predicate")
}
