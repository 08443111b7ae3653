package etl

import (
	"context"
	"fmt"

	"docmodel/internal/dbclient"
	"docmodel/internal/relation"
	"docmodel/internal/value"
)

// ── Destination ────────────────────────────────────────────
// A Destination persists the terminal tables of a decomposition.
//
// Pattern: Singer target protocol.

// WriteMode determines how a table is written to the destination.
type WriteMode string

const (
	WriteOverwrite WriteMode = "overwrite" // replace any existing table of the same name
	WriteAppend    WriteMode = "append"    // add rows to an existing table
)

// ParseWriteMode defaults to overwrite.
func ParseWriteMode(s string) (WriteMode, error) {
	switch WriteMode(s) {
	case "", WriteOverwrite:
		return WriteOverwrite, nil
	case WriteAppend:
		return WriteAppend, nil
	}
	return "", fmt.Errorf("unknown write mode: %q", s)
}

// Destination writes tables to a target system.
type Destination interface {
	// Name identifies the destination in logs and run history.
	Name() string
	// WriteTable materializes frame and stores it under table.
	WriteTable(ctx context.Context, table string, frame *relation.Frame, mode WriteMode) (int, error)
	Close() error
}

// Destination types accepted in DestinationConfig.Type.
const (
	DestConnection  = "connection"
	DestObjectStore = "object_store"
	DestDir         = "dir"
)

// DestinationConfig selects and addresses a destination.
type DestinationConfig struct {
	Type         string `json:"type"`
	ConnectionID string `json:"connectionId,omitempty"` // connection
	Path         string `json:"path,omitempty"`         // dir
	Bucket       string `json:"bucket,omitempty"`       // object_store
	Prefix       string `json:"prefix,omitempty"`       // object_store key prefix
}

func (c DestinationConfig) Validate() error {
	switch c.Type {
	case DestConnection:
		if c.ConnectionID == "" {
			return fmt.Errorf("destination: connectionId is required")
		}
	case DestDir:
		if c.Path == "" {
			return fmt.Errorf("destination: path is required")
		}
	case DestObjectStore:
		if c.Bucket == "" {
			return fmt.Errorf("destination: bucket is required")
		}
	default:
		return fmt.Errorf("destination: unknown type %q", c.Type)
	}
	return nil
}

// DestinationResolver opens the destination a job points at. The app
// layer implements it since connections need secrets.
type DestinationResolver interface {
	OpenDestination(ctx context.Context, cfg DestinationConfig) (Destination, error)
}

// DestinationResolverFunc adapts a plain function to DestinationResolver.
type DestinationResolverFunc func(context.Context, DestinationConfig) (Destination, error)

func (f DestinationResolverFunc) OpenDestination(ctx context.Context, cfg DestinationConfig) (Destination, error) {
	return f(ctx, cfg)
}

// ── Connector Destination ──────────────────────────────────
// Writes tables through a dbclient.Connector (SQL tables or Mongo
// collections).

// ConnectorWriter implements Destination for database connections.
type ConnectorWriter struct {
	Label string
	Conn  dbclient.Connector
}

func (w *ConnectorWriter) Name() string { return w.Label }

func (w *ConnectorWriter) WriteTable(ctx context.Context, table string, frame *relation.Frame, mode WriteMode) (int, error) {
	rows, err := frame.Collect(ctx)
	if err != nil {
		return 0, fmt.Errorf("materialize %s: %w", table, err)
	}
	return w.Conn.WriteTable(ctx, &dbclient.Table{
		Name:    table,
		Columns: frame.Columns(),
		Rows:    rows,
	}, mode != WriteAppend)
}

func (w *ConnectorWriter) Close() error { return w.Conn.Close() }

// encodeJSONLines renders frame as one JSON object per line, keys in column
// order.
func encodeJSONLines(ctx context.Context, frame *relation.Frame) ([]byte, int, error) {
	objs, err := frame.Objects(ctx)
	if err != nil {
		return nil, 0, err
	}
	var buf []byte
	for _, obj := range objs {
		buf = value.AppendJSON(buf, obj)
		buf = append(buf, '\n')
	}
	return buf, len(objs), nil
}
