package service

import (
	"fmt"

	"tablexport/internal/dbclient"
	"tablexport/internal/domain"
	"tablexport/internal/secret"
)

// ConnectionLookup resolves a configured connection by name.
type ConnectionLookup interface {
	Connection(name string) (*domain.DatabaseConnection, error)
}

// ConnectorFactory opens a connector for the named connection. The caller
// closes it.
type ConnectorFactory func(name string) (dbclient.Connector, error)

// NewConnectorFactory resolves connections from conns and their passwords
// from secrets.
func NewConnectorFactory(conns ConnectionLookup, secrets secret.SecretStore) ConnectorFactory {
	return func(name string) (dbclient.Connector, error) {
		conn, err := conns.Connection(name)
		if err != nil {
			return nil, err
		}
		var password string
		if secrets != nil && conn.Driver != domain.DatabaseDriverSQLite {
			pw, err := secrets.Get(secret.PasswordKey(conn.Name))
			if err != nil {
				return nil, fmt.Errorf("password for %q: %w", conn.Name, err)
			}
			password = string(pw)
		}
		return dbclient.NewConnector(conn, password)
	}
}
