package dbmanager

import (
	"fmt"
	"strings"
)

// Dialect abstracts the SQL differences between supported databases.
type Dialect interface {
	Name() string
	QuoteIdentifier(name string) string
	Placeholder(n int) string
	Limit(limit, offset int) string
	// SupportsRowValues reports whether "(a, b) IN ((?, ?), ...)" is valid.
	SupportsRowValues() bool
}

type MySQLDialect struct{}

func (d MySQLDialect) Name() string { return "mysql" }

func (d MySQLDialect) QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (d MySQLDialect) Placeholder(n int) string {
	return "?"
}

func (d MySQLDialect) Limit(limit, offset int) string {
	if limit > 0 {
		if offset > 0 {
			return fmt.Sprintf(" LIMIT %d, %d", offset, limit)
		}
		return fmt.Sprintf(" LIMIT %d", limit)
	}
	if offset > 0 {
		// MySQL has no OFFSET without LIMIT.
		return fmt.Sprintf(" LIMIT 18446744073709551615 OFFSET %d", offset)
	}
	return ""
}

func (d MySQLDialect) SupportsRowValues() bool { return true }

type SQLiteDialect struct{}

func (d SQLiteDialect) Name() string { return "sqlite" }

func (d SQLiteDialect) QuoteIdentifier(name string) string {
	return "\"" + strings.ReplaceAll(name, "\"", "\"\"") + "\""
}

func (d SQLiteDialect) Placeholder(n int) string {
	return "?"
}

func (d SQLiteDialect) Limit(limit, offset int) string {
	res := ""
	if limit > 0 {
		res += fmt.Sprintf(" LIMIT %d", limit)
	}
	if offset > 0 {
		if limit <= 0 {
			res += " LIMIT -1"
		}
		res += fmt.Sprintf(" OFFSET %d", offset)
	}
	return res
}

func (d SQLiteDialect) SupportsRowValues() bool { return true }

type SQLServerDialect struct{}

func (d SQLServerDialect) Name() string { return "sqlserver" }

func (d SQLServerDialect) QuoteIdentifier(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

func (d SQLServerDialect) Placeholder(n int) string {
	return fmt.Sprintf("@p%d", n)
}

// Limit uses OFFSET-FETCH, which needs an ORDER BY on the query.
func (d SQLServerDialect) Limit(limit, offset int) string {
	res := ""
	if offset > 0 {
		res += fmt.Sprintf(" OFFSET %d ROWS", offset)
		if limit > 0 {
			res += fmt.Sprintf(" FETCH NEXT %d ROWS ONLY", limit)
		}
	} else if limit > 0 {
		res += fmt.Sprintf(" OFFSET 0 ROWS FETCH NEXT %d ROWS ONLY", limit)
	}
	return res
}

func (d SQLServerDialect) SupportsRowValues() bool { return false }

type PostgreSQLDialect struct{}

func (d PostgreSQLDialect) Name() string { return "postgres" }

func (d PostgreSQLDialect) QuoteIdentifier(name string) string {
	return "\"" + strings.ReplaceAll(name, "\"", "\"\"") + "\""
}

func (d PostgreSQLDialect) Placeholder(n int) string {
	return fmt.Sprintf("$%d", n)
}

func (d PostgreSQLDialect) Limit(limit, offset int) string {
	res := ""
	if limit > 0 {
		res += fmt.Sprintf(" LIMIT %d", limit)
	}
	if offset > 0 {
		res += fmt.Sprintf(" OFFSET %d", offset)
	}
	return res
}

func (d PostgreSQLDialect) SupportsRowValues() bool { return true }

// GetDialect returns the dialect for a database/sql driver name.
// Unknown drivers get MySQL behaviour.
func GetDialect(driverName string) Dialect {
	switch strings.ToLower(driverName) {
	case "mysql":
		return MySQLDialect{}
	case "sqlite", "sqlite3":
		return SQLiteDialect{}
	case "postgres", "postgresql", "pgx":
		return PostgreSQLDialect{}
	case "sqlserver", "mssql":
		return SQLServerDialect{}
	default:
		return MySQLDialect{}
	}
}
