package service

import (
	"context"
	"fmt"

	"docmodel/internal/etl"
)

// DestinationResolver opens the destinations model jobs write to.
type DestinationResolver struct {
	Connections *ConnectionService
	ObjectStore etl.ObjectStoreConfig
}

var _ etl.DestinationResolver = (*DestinationResolver)(nil)

func (r *DestinationResolver) OpenDestination(ctx context.Context, cfg etl.DestinationConfig) (etl.Destination, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Type {
	case etl.DestConnection:
		if r.Connections == nil {
			return nil, fmt.Errorf("connections are not available")
		}
		meta, err := r.Connections.GetConnection(cfg.ConnectionID)
		if err != nil {
			return nil, err
		}
		conn, err := r.Connections.OpenConnector(ctx, cfg.ConnectionID)
		if err != nil {
			return nil, err
		}
		return &etl.ConnectorWriter{Label: fmt.Sprintf("%s:%s", meta.Driver, meta.Name), Conn: conn}, nil
	case etl.DestObjectStore:
		return etl.NewObjectStoreWriter(r.ObjectStore, cfg.Bucket, cfg.Prefix)
	default:
		return &etl.DirWriter{Dir: cfg.Path}, nil
	}
}
