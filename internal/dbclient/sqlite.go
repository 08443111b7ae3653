package dbclient

import (
	_ "modernc.org/sqlite"

	"docmodel/internal/domain"
)

// SQLiteDSN returns the modernc DSN for a database file, in WAL mode with a
// busy timeout so readers and the writer can share it.
func SQLiteDSN(path string) string {
	return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

// newSQLiteConnector creates a connector for an external SQLite file.
func newSQLiteConnector(conn *domain.DatabaseConnection) (*sqlConnector, error) {
	return newSQLConnector(dialectSQLite, SQLiteDSN(conn.Host))
}
