package domain

import (
	"fmt"
	"strings"
)

// DatabaseDriver represents the type of database engine.
type DatabaseDriver string

const (
	DatabaseDriverMySQL    DatabaseDriver = "mysql"
	DatabaseDriverPostgres DatabaseDriver = "postgres"
	DatabaseDriverSQLite   DatabaseDriver = "sqlite"
)

// DatabaseConnection holds the metadata for connecting to an external database.
// The password is stored separately in the SecretStore.
type DatabaseConnection struct {
	Name     string         `json:"name" mapstructure:"name"`
	Driver   DatabaseDriver `json:"driver" mapstructure:"driver"`
	Host     string         `json:"host" mapstructure:"host"`         // hostname or file path (sqlite)
	Port     int            `json:"port" mapstructure:"port"`         // 0 for sqlite
	Database string         `json:"database" mapstructure:"database"` // db name or empty for sqlite
	Username string         `json:"username" mapstructure:"username"`
	SSLMode  string         `json:"sslMode" mapstructure:"ssl_mode"`
}

// Validate checks that the connection names a supported driver and a target.
func (c *DatabaseConnection) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("connection name is required")
	}
	switch c.Driver {
	case DatabaseDriverSQLite:
		if c.Host == "" {
			return fmt.Errorf("connection %q: sqlite needs a file path in host", c.Name)
		}
	case DatabaseDriverMySQL, DatabaseDriverPostgres:
		if c.Host == "" || c.Database == "" {
			return fmt.Errorf("connection %q: host and database are required", c.Name)
		}
	default:
		return fmt.Errorf("connection %q: unsupported driver %q", c.Name, c.Driver)
	}
	return nil
}
