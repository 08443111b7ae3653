package value

import (
	"fmt"
	"strings"
)

// Kind is the runtime type tag of a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

var kindNames = [...]string{
	KindNull:   "NULL",
	KindBool:   "BOOLEAN",
	KindNumber: "NUMBER",
	KindString: "STRING",
	KindArray:  "ARRAY",
	KindObject: "OBJECT",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// IsComplex reports whether values of this kind can be decomposed further.
func (k Kind) IsComplex() bool {
	return k == KindArray || k == KindObject
}

// ParseKind is the inverse of Kind.String, case-insensitive.
func ParseKind(s string) (Kind, error) {
	up := strings.ToUpper(strings.TrimSpace(s))
	for k, name := range kindNames {
		if name == up {
			return Kind(k), nil
		}
	}
	return KindNull, fmt.Errorf("unknown value kind: %q", s)
}
