package decompose

import (
	"context"
	"fmt"

	"docmodel/internal/relation"
	"docmodel/internal/value"
)

// FieldKind is the decomposition class of a field.
type FieldKind uint8

const (
	FieldScalar FieldKind = iota
	FieldArray
	FieldObject
	FieldAmbiguous
)

func (k FieldKind) String() string {
	switch k {
	case FieldArray:
		return "ARRAY"
	case FieldObject:
		return "OBJECT"
	case FieldAmbiguous:
		return "AMBIGUOUS"
	default:
		return "SCALAR"
	}
}

// Field describes one column as seen by the classifier.
type Field struct {
	Name string
	Kind FieldKind
}

const typeOfColumn = "TYPEOF"

// Classify samples up to sampleSize distinct values of field and reports
// whether they are arrays, objects or neither. Mixed arrays and objects
// yield FieldAmbiguous and an *AmbiguousTypeError. A rare kind outside the
// sample is not seen.
func Classify(ctx context.Context, frame *relation.Frame, field string, sampleSize int) (Field, error) {
	if sampleSize <= 0 {
		sampleSize = DefaultSampleSize
	}
	kinds := frame.
		Select(field).
		Distinct().
		Limit(sampleSize).
		SelectExpr(relation.Col(field).TypeOf().As(typeOfColumn)).
		Distinct().
		Filter(relation.Col(typeOfColumn).IsIn(
			value.String(value.KindArray.String()),
			value.String(value.KindObject.String()),
		))

	rows, err := kinds.Collect(ctx)
	if err != nil {
		return Field{Name: field}, fmt.Errorf("classify %s: %w", field, err)
	}

	switch len(rows) {
	case 0:
		return Field{Name: field, Kind: FieldScalar}, nil
	case 1:
		if rows[0][0] == value.String(value.KindArray.String()) {
			return Field{Name: field, Kind: FieldArray}, nil
		}
		return Field{Name: field, Kind: FieldObject}, nil
	default:
		seen := make([]value.Kind, 0, len(rows))
		for _, r := range rows {
			k, _ := value.ParseKind(string(r[0].(value.String)))
			seen = append(seen, k)
		}
		return Field{Name: field, Kind: FieldAmbiguous}, &AmbiguousTypeError{Field: field, Kinds: seen}
	}
}
