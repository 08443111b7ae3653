package etl

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"docmodel/internal/relation"
)

// DirWriter writes each table as <Dir>/<table>.jsonl.
type DirWriter struct {
	Dir string
}

func (w *DirWriter) Name() string { return "dir:" + w.Dir }

func (w *DirWriter) WriteTable(ctx context.Context, table string, frame *relation.Frame, mode WriteMode) (int, error) {
	data, n, err := encodeJSONLines(ctx, frame)
	if err != nil {
		return 0, fmt.Errorf("materialize %s: %w", table, err)
	}
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return 0, fmt.Errorf("create dir: %w", err)
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if mode == WriteAppend {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	f, err := os.OpenFile(filepath.Join(w.Dir, table+".jsonl"), flags, 0o644)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", table, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return 0, fmt.Errorf("write %s: %w", table, err)
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("close %s: %w", table, err)
	}
	return n, nil
}

func (w *DirWriter) Close() error { return nil }
