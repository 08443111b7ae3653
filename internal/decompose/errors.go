package decompose

import (
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"

	"docmodel/internal/value"
)

// ErrAmbiguousType matches every *AmbiguousTypeError.
var ErrAmbiguousType = errors.New("field does not have a unique type of either ARRAY or OBJECT")

// AmbiguousTypeError reports a field whose sampled values are both arrays
// and objects.
type AmbiguousTypeError struct {
	Field string
	Path  string
	Kinds []value.Kind
}

func (e *AmbiguousTypeError) Error() string {
	kinds := lo.Map(e.Kinds, func(k value.Kind, _ int) string { return k.String() })
	return fmt.Sprintf("%q in %s: %s (saw %s)", e.Field, e.Path, ErrAmbiguousType, strings.Join(kinds, ", "))
}

func (e *AmbiguousTypeError) Is(target error) bool { return target == ErrAmbiguousType }
