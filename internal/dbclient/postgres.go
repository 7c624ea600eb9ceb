package dbclient

import (
	"net"
	"net/url"
	"strconv"

	"tablexport/internal/domain"

	_ "github.com/lib/pq"
)

// buildPostgresDSN returns a postgres:// URL for lib/pq. Credentials are
// URL-escaped so passwords may contain any character.
func buildPostgresDSN(conn *domain.DatabaseConnection, password string) string {
	port := conn.Port
	if port == 0 {
		port = 5432
	}
	sslMode := conn.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(conn.Host, strconv.Itoa(port)),
		Path:   "/" + conn.Database,
		RawQuery: url.Values{
			"sslmode":          {sslMode},
			"application_name": {"tablexport"},
			"connect_timeout":  {"10"},
		}.Encode(),
	}
	if conn.Username != "" {
		u.User = url.UserPassword(conn.Username, password)
	}
	return u.String()
}
