package dbclient

import (
	"fmt"
	"net/url"

	_ "github.com/lib/pq"

	"docmodel/internal/domain"
)

// buildPostgresDSN constructs a lib/pq URL from a DatabaseConnection.
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
		Scheme:   "postgres",
		User:     url.UserPassword(conn.Username, password),
		Host:     fmt.Sprintf("%s:%d", conn.Host, port),
		Path:     "/" + conn.Database,
		RawQuery: url.Values{"sslmode": {sslMode}}.Encode(),
	}
	return u.String()
}
