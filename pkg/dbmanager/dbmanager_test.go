package dbmanager

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetDialect(t *testing.T) {
	tests := []struct {
		driver string
		want   string
	}{
		{"mysql", "mysql"},
		{"sqlite", "sqlite"},
		{"sqlite3", "sqlite"},
		{"postgres", "postgres"},
		{"pgx", "postgres"},
		{"mssql", "sqlserver"},
		{"oracle", "mysql"},
	}

	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			assert.Equal(t, tt.want, GetDialect(tt.driver).Name())
		})
	}
}

func TestDialectFormatting(t *testing.T) {
	assert.Equal(t, "`a``b`", MySQLDialect{}.QuoteIdentifier("a`b"))
	assert.Equal(t, `"users"`, SQLiteDialect{}.QuoteIdentifier("users"))
	assert.Equal(t, "[users]", SQLServerDialect{}.QuoteIdentifier("users"))

	assert.Equal(t, "$3", PostgreSQLDialect{}.Placeholder(3))
	assert.Equal(t, "@p2", SQLServerDialect{}.Placeholder(2))
	assert.Equal(t, "?", SQLiteDialect{}.Placeholder(7))

	assert.Equal(t, " LIMIT 5, 10", MySQLDialect{}.Limit(10, 5))
	assert.Equal(t, " LIMIT -1 OFFSET 4", SQLiteDialect{}.Limit(0, 4))
	assert.Equal(t, " OFFSET 0 ROWS FETCH NEXT 1 ROWS ONLY", SQLServerDialect{}.Limit(1, 0))
	assert.Equal(t, "", PostgreSQLDialect{}.Limit(0, 0))

	assert.False(t, SQLServerDialect{}.SupportsRowValues())
	assert.True(t, SQLiteDialect{}.SupportsRowValues())
}

func TestDBManager(t *testing.T) {
	mgr := NewDBManager()
	defer mgr.Close()

	require.NoError(t, mgr.AddConnection("default", "sqlite", ":memory:", 1, 1))
	err := mgr.AddConnection("default", "sqlite", ":memory:", 1, 1)
	assert.Error(t, err)

	db, dialect, err := mgr.Lookup("default")
	require.NoError(t, err)
	assert.NotNil(t, db)
	assert.Equal(t, "sqlite", dialect.Name())

	_, _, err = mgr.Lookup("missing")
	assert.Error(t, err)
	assert.Error(t, mgr.SetDefault("missing"))

	require.NoError(t, mgr.AddConnection("analytics", "sqlite", ":memory:", 1, 1))
	require.NoError(t, mgr.SetDefault("analytics"))
	defDB, _ := mgr.GetDefault()
	assert.Same(t, mgr.GetConnection("analytics"), defDB)
	assert.Equal(t, []string{"analytics", "default"}, mgr.GetConnectionNames())
}

func TestTransaction(t *testing.T) {
	mgr := NewDBManager()
	require.NoError(t, mgr.AddConnection("default", "sqlite", ":memory:", 1, 1))
	defer mgr.Close()

	db := mgr.GetConnection("default")
	_, err := db.Exec(`CREATE TABLE items (id INTEGER PRIMARY KEY)`)
	require.NoError(t, err)
	ctx := context.Background()

	count := func() int {
		var n int
		require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM items`).Scan(&n))
		return n
	}

	boom := errors.New("boom")
	err = mgr.Transaction(ctx, "default", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO items (id) VALUES (1)`); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, count())

	err = mgr.Transaction(ctx, "default", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO items (id) VALUES (2)`)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 1, count())

	assert.Error(t, mgr.Transaction(ctx, "missing", func(*sql.Tx) error { return nil }))
}
