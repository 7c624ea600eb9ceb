package dbclient

import (
	"strings"

	"tablexport/internal/domain"

	_ "modernc.org/sqlite"
)

// newSQLiteConnector creates a connector for an external SQLite file.
// The busy timeout lets an export wait out a writer holding the lock.
func newSQLiteConnector(conn *domain.DatabaseConnection) (*sqlConnector, error) {
	dsn := conn.Host
	if !strings.Contains(dsn, "?") {
		dsn += "?_pragma=busy_timeout(5000)"
	}
	return newSQLConnector(sqliteDialect, dsn)
}
