package value

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/buger/jsonparser"
)

// ── Decoding ───────────────────────────────────────────────

// FromJSON parses a JSON document into a Value. Object key order is kept.
func FromJSON(data []byte) (Value, error) {
	raw, vtype, _, err := jsonparser.Get(data)
	if err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	return fromParsed(raw, vtype)
}

func fromParsed(data []byte, vtype jsonparser.ValueType) (Value, error) {
	switch vtype {
	case jsonparser.Null:
		return Null, nil
	case jsonparser.Boolean:
		b, err := jsonparser.ParseBoolean(data)
		if err != nil {
			return nil, err
		}
		return Bool(b), nil
	case jsonparser.Number:
		if !bytes.ContainsAny(data, ".eE") {
			if i, err := jsonparser.ParseInt(data); err == nil {
				return FromInt(i), nil
			}
		}
		f, err := jsonparser.ParseFloat(data)
		if err != nil {
			return nil, err
		}
		return Number(f), nil
	case jsonparser.String:
		s, err := jsonparser.ParseString(data)
		if err != nil {
			return nil, err
		}
		return String(s), nil
	case jsonparser.Array:
		arr := Array{}
		var errs []error
		_, err := jsonparser.ArrayEach(data, func(elem []byte, t jsonparser.ValueType, _ int, err error) {
			if err != nil {
				errs = append(errs, err)
				return
			}
			v, err := fromParsed(elem, t)
			if err != nil {
				errs = append(errs, err)
				return
			}
			arr = append(arr, v)
		})
		if err != nil {
			return nil, err
		}
		if len(errs) > 0 {
			return nil, errors.Join(errs...)
		}
		return arr, nil
	case jsonparser.Object:
		obj := NewObject()
		err := jsonparser.ObjectEach(data, func(key []byte, val []byte, t jsonparser.ValueType, _ int) error {
			v, err := fromParsed(val, t)
			if err != nil {
				return err
			}
			obj.Set(string(key), v)
			return nil
		})
		if err != nil {
			return nil, err
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported json token type: %s", vtype)
	}
}

// ParseText interprets s as a JSON array or object when it looks like one,
// and as a plain string otherwise.
func ParseText(s string) Value {
	trimmed := strings.TrimLeft(s, " \t\r\n")
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		if v, err := FromJSON([]byte(trimmed)); err == nil {
			return v
		}
	}
	return String(s)
}

// ── Encoding ───────────────────────────────────────────────

// AppendJSON appends the compact JSON form of v, keeping object key order.
func AppendJSON(dst []byte, v Value) []byte {
	return appendValue(dst, v, false)
}

// Canonical returns the compact JSON form of v with object keys sorted.
// Values that are Equal have identical canonical forms.
func Canonical(v Value) []byte {
	return appendValue(nil, v, true)
}

func appendValue(dst []byte, v Value, sorted bool) []byte {
	switch t := v.(type) {
	case nil, nullValue:
		return append(dst, "null"...)
	case Bool:
		return strconv.AppendBool(dst, bool(t))
	case Number:
		return appendNumber(dst, float64(t))
	case Int:
		return strconv.AppendInt(dst, int64(t), 10)
	case String:
		return appendString(dst, string(t))
	case Array:
		dst = append(dst, '[')
		for i, e := range t {
			if i > 0 {
				dst = append(dst, ',')
			}
			dst = appendValue(dst, e, sorted)
		}
		return append(dst, ']')
	case *Object:
		keys := t.Keys()
		if sorted {
			keys = t.sortedKeys()
		}
		dst = append(dst, '{')
		for i, k := range keys {
			if i > 0 {
				dst = append(dst, ',')
			}
			dst = appendString(dst, k)
			dst = append(dst, ':')
			dst = appendValue(dst, t.fields[k], sorted)
		}
		return append(dst, '}')
	default:
		return appendString(dst, v.String())
	}
}

func appendNumber(dst []byte, f float64) []byte {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return append(dst, "null"...)
	}
	abs := math.Abs(f)
	format := byte('f')
	if abs != 0 && (abs < 1e-6 || abs >= 1e21) {
		format = 'e'
	}
	return strconv.AppendFloat(dst, f, format, -1, 64)
}

const hex = "0123456789abcdef"

func appendString(dst []byte, s string) []byte {
	dst = append(dst, '"')
	start := 0
	for i := 0; i < len(s); {
		b := s[i]
		if b < utf8.RuneSelf {
			if b >= 0x20 && b != '"' && b != '\\' {
				i++
				continue
			}
			dst = append(dst, s[start:i]...)
			switch b {
			case '"', '\\':
				dst = append(dst, '\\', b)
			case '\n':
				dst = append(dst, '\\', 'n')
			case '\r':
				dst = append(dst, '\\', 'r')
			case '\t':
				dst = append(dst, '\\', 't')
			default:
				dst = append(dst, '\\', 'u', '0', '0', hex[b>>4], hex[b&0xf])
			}
			i++
			start = i
			continue
		}
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			dst = append(dst, s[start:i]...)
			dst = append(dst, "\ufffd"...)
			i += size
			start = i
			continue
		}
		i += size
	}
	dst = append(dst, s[start:]...)
	return append(dst, '"')
}
