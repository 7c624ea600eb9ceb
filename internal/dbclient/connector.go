package dbclient

import (
	"context"
	"fmt"

	"tablexport/internal/domain"
	"tablexport/internal/etl"
)

// TableInfo describes one table of the connected database.
type TableInfo struct {
	Name string `json:"name"`
}

// Connector abstracts interaction with an external database.
type Connector interface {
	etl.Source

	// TestConnection verifies connectivity.
	TestConnection(ctx context.Context) error

	// ListTables returns the tables visible to the connection.
	ListTables(ctx context.Context) ([]TableInfo, error)

	// Close closes the connection pool.
	Close() error
}

// NewConnector creates a Connector for the given database connection.
// The password must be provided separately (from a SecretStore).
func NewConnector(conn *domain.DatabaseConnection, password string) (Connector, error) {
	switch conn.Driver {
	case domain.DatabaseDriverSQLite:
		return newSQLiteConnector(conn)
	case domain.DatabaseDriverMySQL:
		return newSQLConnector(mysqlDialect, buildMySQLDSN(conn, password))
	case domain.DatabaseDriverPostgres:
		return newSQLConnector(postgresDialect, buildPostgresDSN(conn, password))
	default:
		return nil, fmt.Errorf("unsupported driver: %s", conn.Driver)
	}
}
