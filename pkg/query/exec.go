package query

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"atlas/pkg/metrics"
)

// SQLExecutor is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type SQLExecutor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Select runs the SELECT described by qs and scans every row into a map.
func Select(ctx context.Context, exec SQLExecutor, qs *QueryState) (results []Row, err error) {
	query, args := qs.BuildSQL("SELECT")
	start := time.Now()
	defer func() { metrics.ObserveQuery(qs.Table, "SELECT", start, err) }()

	slog.Debug("atlas query", "table", qs.Table, "sql", query, "args", args)

	rows, err := exec.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	results = []Row{}
	for rows.Next() {
		columns := make([]interface{}, len(cols))
		columnPointers := make([]interface{}, len(cols))
		for i := range columns {
			columnPointers[i] = &columns[i]
		}

		if err := rows.Scan(columnPointers...); err != nil {
			return nil, err
		}

		m := make(Row, len(cols))
		for i, colName := range cols {
			if b, ok := columns[i].([]byte); ok {
				m[colName] = string(b)
			} else {
				m[colName] = columns[i]
			}
		}
		results = append(results, m)
	}
	return results, rows.Err()
}

func Count(ctx context.Context, exec SQLExecutor, qs *QueryState) (total int64, err error) {
	query, args := qs.BuildSQL("COUNT")
	start := time.Now()
	defer func() { metrics.ObserveQuery(qs.Table, "COUNT", start, err) }()

	slog.Debug("atlas query", "table", qs.Table, "sql", query, "args", args)
	err = exec.QueryRowContext(ctx, query, args...).Scan(&total)
	return total, err
}

// Insert writes data and returns the generated key when the driver reports
// one. On PostgreSQL the returning columns are read back instead.
func Insert(ctx context.Context, exec SQLExecutor, qs *QueryState, data Row, returning []string) (id interface{}, err error) {
	query, args := qs.BuildInsert(data, returning)
	start := time.Now()
	defer func() { metrics.ObserveQuery(qs.Table, "INSERT", start, err) }()

	slog.Debug("atlas query", "table", qs.Table, "sql", query, "args", args)

	if len(returning) > 0 && qs.Dialect.Name() == "postgres" {
		var generated interface{}
		if err = exec.QueryRowContext(ctx, query, args...).Scan(&generated); err != nil {
			return nil, err
		}
		return generated, nil
	}

	res, err := exec.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	lastID, lerr := res.LastInsertId()
	if lerr != nil || lastID == 0 {
		return nil, nil
	}
	return lastID, nil
}

func Update(ctx context.Context, exec SQLExecutor, qs *QueryState, data Row) (affected int64, err error) {
	query, args := qs.BuildUpdate(data)
	return run(ctx, exec, qs.Table, "UPDATE", query, args)
}

func Delete(ctx context.Context, exec SQLExecutor, qs *QueryState) (affected int64, err error) {
	query, args := qs.BuildSQL("DELETE")
	return run(ctx, exec, qs.Table, "DELETE", query, args)
}

func run(ctx context.Context, exec SQLExecutor, table, queryType, query string, args []interface{}) (affected int64, err error) {
	start := time.Now()
	defer func() { metrics.ObserveQuery(table, queryType, start, err) }()

	slog.Debug("atlas query", "table", table, "sql", query, "args", args)
	res, err := exec.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	affected, _ = res.RowsAffected()
	return affected, nil
}
