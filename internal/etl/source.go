package etl

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ── Source ──────────────────────────────────────────────────
// A Source extracts documents from an external system.
// Implementations live in etl/sources/, one file per source type.
//
// Pattern: Airbyte connector protocol (spec → discover → read).

// SourceConfig is an opaque configuration map parsed per source type.
type SourceConfig map[string]any

// String returns a string option, or "" when absent.
func (c SourceConfig) String(key string) string {
	switch v := c[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Bool reads a boolean option that may be stored as a bool or as the
// strings "true" / "false".
func (c SourceConfig) Bool(key string, def bool) bool {
	switch v := c[key].(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "yes", "1":
			return true
		case "false", "no", "0":
			return false
		}
	}
	return def
}

// ConfigField describes a single configuration input for a source.
type ConfigField struct {
	Key      string   `json:"key"`
	Label    string   `json:"label"`
	Type     string   `json:"type"` // "string" | "select" | "textarea" | "file" | "connection"
	Required bool     `json:"required"`
	Options  []string `json:"options,omitempty"` // for "select" type
	Default  string   `json:"default,omitempty"`
	Help     string   `json:"help,omitempty"`
}

// SourceSpec describes a source type: its label and config fields.
type SourceSpec struct {
	Type         string        `json:"type"`
	Label        string        `json:"label"`
	ConfigFields []ConfigField `json:"configFields"`
}

// Validate reports the first required field missing from cfg.
func (s SourceSpec) Validate(cfg SourceConfig) error {
	for _, f := range s.ConfigFields {
		if f.Required && cfg.String(f.Key) == "" {
			return fmt.Errorf("%s: %s is required", s.Type, f.Key)
		}
	}
	return nil
}

// Source is the interface every data source must implement.
type Source interface {
	// Spec returns metadata about this source type.
	Spec() SourceSpec

	// Discover introspects the source and returns the top-level fields.
	Discover(ctx context.Context, cfg SourceConfig) (*Schema, error)

	// Read streams records from the source into a channel.
	// The channel is closed when all records have been read or ctx is cancelled.
	// Errors are sent on the error channel (buffered size 1).
	Read(ctx context.Context, cfg SourceConfig) (<-chan Record, <-chan error)
}

// ── Source Registry ────────────────────────────────────────
// Compile-time registration via init() in each source file.

var (
	registryMu sync.RWMutex
	registry   = map[string]Source{}
)

// RegisterSource registers a source by its spec type.
// Called from init() in each source implementation file.
func RegisterSource(s Source) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[s.Spec().Type] = s
}

// GetSource returns a registered source by type, or an error if not found.
func GetSource(typ string) (Source, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	s, ok := registry[typ]
	if !ok {
		return nil, fmt.Errorf("unknown source type: %q", typ)
	}
	return s, nil
}

// ListSources returns the specs of all registered sources, sorted by type.
func ListSources() []SourceSpec {
	registryMu.RLock()
	defer registryMu.RUnlock()
	specs := make([]SourceSpec, 0, len(registry))
	for _, s := range registry {
		specs = append(specs, s.Spec())
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Type < specs[j].Type })
	return specs
}

// ReadAll drains a source. With max > 0 it stops after max records and
// cancels the rest of the read.
func ReadAll(ctx context.Context, src Source, cfg SourceConfig, max int) ([]Record, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	recCh, errCh := src.Read(ctx, cfg)
	var records []Record
	for rec := range recCh {
		records = append(records, rec)
		if max > 0 && len(records) >= max {
			cancel()
			break
		}
	}
	// Drain so the producer can exit.
	for range recCh {
	}
	if err := <-errCh; err != nil && (max <= 0 || len(records) < max) {
		return records, err
	}
	return records, nil
}
