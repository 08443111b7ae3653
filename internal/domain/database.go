package domain

import "time"

// DatabaseDriver represents the type of database engine.
type DatabaseDriver string

const (
	DatabaseDriverMySQL    DatabaseDriver = "mysql"
	DatabaseDriverPostgres DatabaseDriver = "postgres"
	DatabaseDriverMongoDB  DatabaseDriver = "mongodb"
	DatabaseDriverSQLite   DatabaseDriver = "sqlite"
)

// Valid reports whether d is one of the supported drivers.
func (d DatabaseDriver) Valid() bool {
	switch d {
	case DatabaseDriverMySQL, DatabaseDriverPostgres, DatabaseDriverMongoDB, DatabaseDriverSQLite:
		return true
	}
	return false
}

// DatabaseConnection is a saved connection used both to read source
// documents and to persist decomposed tables. The password lives in the
// secret store, keyed by connection ID.
type DatabaseConnection struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Driver    DatabaseDriver `json:"driver"`
	Host      string         `json:"host"`     // hostname, URI (mongodb) or file path (sqlite)
	Port      int            `json:"port"`     // 0 means driver default
	Database  string         `json:"database"` // db name or empty for sqlite
	Username  string         `json:"username"`
	SSLMode   string         `json:"sslMode"`
	ExtraJSON string         `json:"extraJson"` // driver-specific options
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

type DatabaseConnectionStore interface {
	CreateConnection(c *DatabaseConnection) error
	GetConnection(id string) (*DatabaseConnection, error)
	ListConnections() ([]DatabaseConnection, error)
	UpdateConnection(c *DatabaseConnection) error
	DeleteConnection(id string) error
}
