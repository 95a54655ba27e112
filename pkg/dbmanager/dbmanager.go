package dbmanager

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

// DBManager keeps named database connections together with the dialect of
// the driver each one was opened with.
type DBManager struct {
	mu          sync.RWMutex
	connections map[string]*sql.DB
	dialects    map[string]Dialect
	defaultName string
}

func NewDBManager() *DBManager {
	return &DBManager{
		connections: make(map[string]*sql.DB),
		dialects:    make(map[string]Dialect),
		defaultName: "default",
	}
}

// AddConnection opens and pings a new connection.
// name is the identifier used by mappers ("default", "analytics", ...),
// driverName is the database/sql driver and dsn its data source name.
func (m *DBManager) AddConnection(name, driverName, dsn string, maxOpen, maxIdle int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.connections[name]; exists {
		return fmt.Errorf("database connection '%s' already exists", name)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return fmt.Errorf("failed to open database '%s': %w", name, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping database '%s': %w", name, err)
	}

	configurePool(db, maxOpen, maxIdle)

	m.connections[name] = db
	m.dialects[name] = GetDialect(driverName)
	return nil
}

// GetConnection returns nil when name is unknown.
func (m *DBManager) GetConnection(name string) *sql.DB {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connections[name]
}

func (m *DBManager) GetDialect(name string) Dialect {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dialects[name]
}

// Lookup returns the connection and dialect registered under name.
func (m *DBManager) Lookup(name string) (*sql.DB, Dialect, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	db, ok := m.connections[name]
	if !ok {
		return nil, nil, fmt.Errorf("database connection '%s' not found", name)
	}
	return db, m.dialects[name], nil
}

func (m *DBManager) GetDefault() (*sql.DB, Dialect) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connections[m.defaultName], m.dialects[m.defaultName]
}

func (m *DBManager) SetDefault(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.connections[name]; !exists {
		return fmt.Errorf("database connection '%s' not found", name)
	}

	m.defaultName = name
	return nil
}

// GetConnectionNames returns the registered names in sorted order.
func (m *DBManager) GetConnectionNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.connections))
	for name := range m.connections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Transaction runs fn inside a transaction on the named connection. The
// transaction is rolled back when fn returns an error or panics.
func (m *DBManager) Transaction(ctx context.Context, name string, fn func(tx *sql.Tx) error) (err error) {
	db := m.GetConnection(name)
	if db == nil {
		return fmt.Errorf("database connection '%s' not found", name)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func configurePool(db *sql.DB, maxOpen, maxIdle int) {
	if maxOpen == 0 {
		maxOpen = 100
	}
	if maxIdle == 0 {
		maxIdle = 25
	}

	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(time.Minute)
}

// Close closes every connection and reports the last failure, if any.
func (m *DBManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var lastErr error
	for name, db := range m.connections {
		if err := db.Close(); err != nil {
			lastErr = fmt.Errorf("failed to close database '%s': %w", name, err)
		}
	}
	m.connections = make(map[string]*sql.DB)
	m.dialects = make(map[string]Dialect)

	return lastErr
}
