package dbclient

import (
	"net"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"

	"tablexport/internal/domain"
)

// buildMySQLDSN formats a go-sql-driver DSN. parseTime makes DATETIME and
// TIMESTAMP columns scan as time.Time.
func buildMySQLDSN(conn *domain.DatabaseConnection, password string) string {
	port := conn.Port
	if port == 0 {
		port = 3306
	}
	cfg := mysql.NewConfig()
	cfg.User = conn.Username
	cfg.Passwd = password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(conn.Host, strconv.Itoa(port))
	cfg.DBName = conn.Database
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	if conn.SSLMode == "require" {
		cfg.TLSConfig = "true"
	}
	return cfg.FormatDSN()
}
