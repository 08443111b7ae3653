package service

import (
	"context"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"docmodel/internal/dbclient"
	"docmodel/internal/domain"
	"docmodel/internal/secret"
	"docmodel/internal/storage"
)

// ─────────────────────────────────────────────────────────────
// Connection Service: saved database connections
// ─────────────────────────────────────────────────────────────

// CreateConnectionInput is the service-layer DTO for creating/updating
// connections.
type CreateConnectionInput struct {
	Name      string `json:"name"`
	Driver    string `json:"driver"`
	Host      string `json:"host"`
	Port      int    `json:"port"`
	Database  string `json:"database"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	SSLMode   string `json:"sslMode"`
	ExtraJSON string `json:"extraJson"`
}

func (in CreateConnectionInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("connection name is required")
	}
	if !domain.DatabaseDriver(in.Driver).Valid() {
		return fmt.Errorf("unsupported driver: %q", in.Driver)
	}
	if in.Host == "" {
		return fmt.Errorf("host is required")
	}
	return nil
}

const defaultPoolSize = 8

// ConnectionService manages saved connections and a bounded pool of live
// connectors used for ad-hoc queries. Pipelines get their own connectors
// through OpenConnector so cursors never interleave.
type ConnectionService struct {
	connStore *storage.DBConnectionStore
	secrets   secret.SecretStore
	log       *zap.Logger

	pool *lru.Cache[string, dbclient.Connector]
}

func NewConnectionService(connStore *storage.DBConnectionStore, secrets secret.SecretStore, log *zap.Logger) *ConnectionService {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("connections")
	pool, _ := lru.NewWithEvict(defaultPoolSize, func(id string, c dbclient.Connector) {
		if err := c.Close(); err != nil {
			log.Warn("close connector", zap.String("connection", id), zap.Error(err))
		}
	})
	return &ConnectionService{
		connStore: connStore,
		secrets:   secrets,
		log:       log,
		pool:      pool,
	}
}

func secretKey(id string) string { return "db:" + id }

// ── Connection CRUD ────────────────────────────────────────

func (s *ConnectionService) ListConnections() ([]domain.DatabaseConnection, error) {
	return s.connStore.ListConnections()
}

func (s *ConnectionService) GetConnection(id string) (*domain.DatabaseConnection, error) {
	return s.connStore.GetConnection(id)
}

func (s *ConnectionService) CreateConnection(input CreateConnectionInput) (*domain.DatabaseConnection, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	conn := &domain.DatabaseConnection{
		Name:      input.Name,
		Driver:    domain.DatabaseDriver(input.Driver),
		Host:      input.Host,
		Port:      input.Port,
		Database:  input.Database,
		Username:  input.Username,
		SSLMode:   input.SSLMode,
		ExtraJSON: input.ExtraJSON,
	}
	if err := s.connStore.CreateConnection(conn); err != nil {
		return nil, fmt.Errorf("create connection: %w", err)
	}
	if input.Password != "" && s.secrets != nil {
		if err := s.secrets.Set(secretKey(conn.ID), []byte(input.Password)); err != nil {
			return nil, fmt.Errorf("store password: %w", err)
		}
	}
	return conn, nil
}

func (s *ConnectionService) UpdateConnection(id string, input CreateConnectionInput) error {
	if err := input.validate(); err != nil {
		return err
	}
	conn, err := s.connStore.GetConnection(id)
	if err != nil {
		return err
	}
	conn.Name = input.Name
	conn.Driver = domain.DatabaseDriver(input.Driver)
	conn.Host = input.Host
	conn.Port = input.Port
	conn.Database = input.Database
	conn.Username = input.Username
	conn.SSLMode = input.SSLMode
	if input.ExtraJSON != "" {
		conn.ExtraJSON = input.ExtraJSON
	}
	if err := s.connStore.UpdateConnection(conn); err != nil {
		return err
	}
	if input.Password != "" && s.secrets != nil {
		if err := s.secrets.Set(secretKey(id), []byte(input.Password)); err != nil {
			return fmt.Errorf("store password: %w", err)
		}
	}
	// Next query reconnects with the new settings.
	s.pool.Remove(id)
	return nil
}

func (s *ConnectionService) DeleteConnection(id string) error {
	s.pool.Remove(id)
	if s.secrets != nil {
		_ = s.secrets.Delete(secretKey(id))
	}
	return s.connStore.DeleteConnection(id)
}

// ── Query / Test / Introspect ──────────────────────────────

// ExecuteQuery runs a query on the pooled connector of a connection.
func (s *ConnectionService) ExecuteQuery(ctx context.Context, id, query string, fetchSize int) (*dbclient.QueryPage, error) {
	connector, err := s.getOrCreate(ctx, id)
	if err != nil {
		return nil, err
	}
	page, err := connector.Execute(ctx, query, fetchSize)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	return page, nil
}

// FetchMoreRows continues the last ExecuteQuery of a connection.
func (s *ConnectionService) FetchMoreRows(ctx context.Context, id string, fetchSize int) (*dbclient.QueryPage, error) {
	connector, ok := s.pool.Get(id)
	if !ok {
		return nil, fmt.Errorf("no active query for connection %s", id)
	}
	return connector.FetchMore(ctx, fetchSize)
}

func (s *ConnectionService) TestConnection(ctx context.Context, id string) error {
	connector, err := s.getOrCreate(ctx, id)
	if err != nil {
		return err
	}
	return connector.TestConnection(ctx)
}

func (s *ConnectionService) Introspect(ctx context.Context, id string) (*dbclient.SchemaInfo, error) {
	connector, err := s.getOrCreate(ctx, id)
	if err != nil {
		return nil, err
	}
	return connector.Introspect(ctx)
}

// ── Connectors ─────────────────────────────────────────────

// OpenConnector opens a dedicated connector; the caller closes it.
func (s *ConnectionService) OpenConnector(_ context.Context, id string) (dbclient.Connector, error) {
	conn, err := s.connStore.GetConnection(id)
	if err != nil {
		return nil, fmt.Errorf("get connection %s: %w", id, err)
	}

	var password string
	if s.secrets != nil {
		pw, err := s.secrets.Get(secretKey(id))
		if err != nil {
			s.log.Warn("read password", zap.String("connection", id), zap.Error(err))
		}
		password = string(pw)
	}

	connector, err := dbclient.NewConnector(conn, password)
	if err != nil {
		return nil, fmt.Errorf("open db connection: %w", err)
	}
	return connector, nil
}

func (s *ConnectionService) getOrCreate(ctx context.Context, id string) (dbclient.Connector, error) {
	if c, ok := s.pool.Get(id); ok {
		return c, nil
	}
	connector, err := s.OpenConnector(ctx, id)
	if err != nil {
		return nil, err
	}
	s.pool.Add(id, connector)
	return connector, nil
}

// Close tears down all pooled connectors.
func (s *ConnectionService) Close() {
	s.pool.Purge()
}
