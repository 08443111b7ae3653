package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"docmodel/internal/domain"
)

// DBConnectionStore manages saved database connections in SQLite.
type DBConnectionStore struct {
	db *DB
}

var _ domain.DatabaseConnectionStore = (*DBConnectionStore)(nil)

func NewDBConnectionStore(db *DB) *DBConnectionStore {
	return &DBConnectionStore{db: db}
}

const connColumns = `id, name, driver, host, port, database_name, username, ssl_mode, extra_json, created_at, updated_at`

func scanConnection(sc rowScanner) (*domain.DatabaseConnection, error) {
	c := &domain.DatabaseConnection{}
	err := sc.Scan(&c.ID, &c.Name, &c.Driver, &c.Host, &c.Port, &c.Database, &c.Username, &c.SSLMode, &c.ExtraJSON, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (s *DBConnectionStore) CreateConnection(c *domain.DatabaseConnection) error {
	now := time.Now().UTC()
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.ExtraJSON == "" {
		c.ExtraJSON = "{}"
	}
	c.CreatedAt = now
	c.UpdatedAt = now

	_, err := s.db.conn.Exec(
		`INSERT INTO db_connections (`+connColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Driver, c.Host, c.Port, c.Database, c.Username, c.SSLMode, c.ExtraJSON, c.CreatedAt, c.UpdatedAt,
	)
	return err
}

func (s *DBConnectionStore) GetConnection(id string) (*domain.DatabaseConnection, error) {
	c, err := scanConnection(s.db.conn.QueryRow(`SELECT `+connColumns+` FROM db_connections WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("database connection %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *DBConnectionStore) ListConnections() ([]domain.DatabaseConnection, error) {
	rows, err := s.db.conn.Query(`SELECT ` + connColumns + ` FROM db_connections ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conns []domain.DatabaseConnection
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		conns = append(conns, *c)
	}
	return conns, rows.Err()
}

func (s *DBConnectionStore) UpdateConnection(c *domain.DatabaseConnection) error {
	c.UpdatedAt = time.Now().UTC()
	res, err := s.db.conn.Exec(
		`UPDATE db_connections SET name=?, driver=?, host=?, port=?, database_name=?, username=?, ssl_mode=?, extra_json=?, updated_at=?
		 WHERE id=?`,
		c.Name, c.Driver, c.Host, c.Port, c.Database, c.Username, c.SSLMode, c.ExtraJSON, c.UpdatedAt, c.ID,
	)
	if err != nil {
		return err
	}
	return expectOne(res, "database connection", c.ID)
}

func (s *DBConnectionStore) DeleteConnection(id string) error {
	res, err := s.db.conn.Exec(`DELETE FROM db_connections WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return expectOne(res, "database connection", id)
}
