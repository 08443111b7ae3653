package decompose

import (
	"sort"

	"go.uber.org/zap"

	"docmodel/internal/relation"
)

// ProcessedFieldSet holds field names that need no further decomposition.
// A name, once added, is skipped for the rest of the run in every table.
type ProcessedFieldSet map[string]struct{}

func (s ProcessedFieldSet) Add(name string) { s[name] = struct{}{} }

func (s ProcessedFieldSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Sorted returns the members in lexical order.
func (s ProcessedFieldSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Result maps lineage paths to terminal tables.
type Result struct {
	tables map[string]*relation.Frame
	order  []string

	// Collisions lists lineage paths recorded more than once; the last
	// table recorded under the path wins.
	Collisions []string
	// Truncated lists lineage paths that stopped at the depth cap with
	// fields left undecomposed.
	Truncated []string
	// Processed is the final processed field set, sorted.
	Processed []string
}

func newResult() *Result {
	return &Result{tables: make(map[string]*relation.Frame)}
}

func (r *Result) record(log *zap.Logger, path string, frame *relation.Frame) {
	if _, exists := r.tables[path]; exists {
		log.Warn("lineage path recorded twice, keeping the latest table", zap.String("path", path))
		r.Collisions = append(r.Collisions, path)
	} else {
		r.order = append(r.order, path)
	}
	r.tables[path] = frame
}

// Paths returns the lineage paths in the order they were first recorded.
func (r *Result) Paths() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

func (r *Result) Table(path string) (*relation.Frame, bool) {
	f, ok := r.tables[path]
	return f, ok
}

func (r *Result) Len() int { return len(r.order) }
