package dbclient

import (
	"context"
	"fmt"

	"docmodel/internal/domain"
	"docmodel/internal/relation"
	"docmodel/internal/value"
)

// QueryPage is a batch of rows fetched from a query cursor.
type QueryPage struct {
	Columns      []string        `json:"columns"`
	Rows         [][]value.Value `json:"rows"`
	TotalFetched int             `json:"totalFetched"` // total rows fetched so far
	HasMore      bool            `json:"hasMore"`      // cursor has more rows
	IsWrite      bool            `json:"isWrite"`
	AffectedRows int             `json:"affectedRows"`
}

// Objects converts the page rows into objects keyed by column name.
func (p *QueryPage) Objects() []*value.Object {
	out := make([]*value.Object, 0, len(p.Rows))
	for _, row := range p.Rows {
		obj := value.NewObject()
		for i, col := range p.Columns {
			if i < len(row) {
				obj.Set(col, row[i])
			}
		}
		out = append(out, obj)
	}
	return out
}

// SchemaInfo lists the tables or collections of a database.
type SchemaInfo struct {
	Tables []TableInfo `json:"tables"`
}

type TableInfo struct {
	Name    string       `json:"name"`
	Columns []ColumnInfo `json:"columns"`
}

type ColumnInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Table is a fully materialized table handed to WriteTable.
type Table struct {
	Name    string
	Columns []relation.Column
	Rows    []relation.Row
}

// Connector abstracts interaction with an external database.
type Connector interface {
	// TestConnection verifies connectivity.
	TestConnection(ctx context.Context) error

	// Execute runs a query and returns the first batch of rows.
	// For reads: opens a cursor and fetches fetchSize rows.
	// For writes: executes and returns affected rows count.
	Execute(ctx context.Context, query string, fetchSize int) (*QueryPage, error)

	// FetchMore continues reading from the open cursor.
	FetchMore(ctx context.Context, fetchSize int) (*QueryPage, error)

	// Introspect lists tables and their columns.
	Introspect(ctx context.Context) (*SchemaInfo, error)

	// WriteTable persists t. With overwrite, any existing table of the
	// same name is replaced; otherwise rows are appended.
	WriteTable(ctx context.Context, t *Table, overwrite bool) (int, error)

	// TableQuery returns the query reading every row of a table.
	TableQuery(table string) string

	// Close closes the connection and any open cursors.
	Close() error
}

// NewConnector creates a Connector for the given database connection.
// The password must be provided separately (from the secret store).
func NewConnector(conn *domain.DatabaseConnection, password string) (Connector, error) {
	switch conn.Driver {
	case domain.DatabaseDriverSQLite:
		return newSQLiteConnector(conn)
	case domain.DatabaseDriverMySQL:
		return newSQLConnector(dialectMySQL, buildMySQLDSN(conn, password))
	case domain.DatabaseDriverPostgres:
		return newSQLConnector(dialectPostgres, buildPostgresDSN(conn, password))
	case domain.DatabaseDriverMongoDB:
		return newMongoConnector(conn, password)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", conn.Driver)
	}
}
