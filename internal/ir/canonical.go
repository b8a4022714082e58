package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical produces canonical JSON for cache keys and fingerprints.
//
// Differences from json.Marshal:
//  1. Object keys sorted by UTF-16 code units
//  2. No HTML escaping
//  3. Strings are NFC normalized
//  4. Type arguments encode as {"type": "<printed type>"}
//  5. nil values and floats are rejected
func MarshalCanonical(v any) ([]byte, error) {
	e := canonicalEncoder{normalize: true}
	if err := e.marshal(v); err != nil {
		return nil, err
	}
	return e.buf.Bytes(), nil
}

// marshalExact is MarshalCanonical without NFC normalization: strings that
// differ byte-wise encode differently.
func marshalExact(v any) ([]byte, error) {
	var e canonicalEncoder
	if err := e.marshal(v); err != nil {
		return nil, err
	}
	return e.buf.Bytes(), nil
}

type canonicalEncoder struct {
	buf       bytes.Buffer
	normalize bool
}

func (e *canonicalEncoder) marshal(v any) error {
	buf := &e.buf
	switch val := v.(type) {
	case nil:
		return fmt.Errorf("null is forbidden in canonical JSON")
	case Int:
		fmt.Fprintf(buf, "%d", int64(val))
	case String:
		return e.marshalString(string(val))
	case Bool:
		marshalCanonicalBool(buf, bool(val))
	case TypeValue:
		if val.T == nil {
			return fmt.Errorf("type argument without a type")
		}
		return e.marshalObject(map[string]any{"type": val.T.String()})
	case Args:
		obj := make(map[string]any, len(val))
		for k, arg := range val {
			if arg == nil {
				return fmt.Errorf("arg %q: null is forbidden", k)
			}
			obj[k] = arg
		}
		return e.marshalObject(obj)
	case Params:
		obj := make(map[string]any, len(val))
		for k, p := range val {
			obj[k] = p.String()
		}
		return e.marshalObject(obj)
	case string:
		return e.marshalString(val)
	case int:
		fmt.Fprintf(buf, "%d", val)
	case int64:
		fmt.Fprintf(buf, "%d", val)
	case bool:
		marshalCanonicalBool(buf, val)
	case []string:
		arr := make([]any, len(val))
		for i, s := range val {
			arr[i] = s
		}
		return e.marshalArray(arr)
	case []any:
		return e.marshalArray(val)
	case map[string]any:
		return e.marshalObject(val)
	case float32, float64:
		return fmt.Errorf("floats are forbidden in canonical JSON: %v", val)
	default:
		return fmt.Errorf("unsupported type for canonical JSON: %T", v)
	}
	return nil
}

func marshalCanonicalBool(buf *bytes.Buffer, b bool) {
	if b {
		buf.WriteString("true")
		return
	}
	buf.WriteString("false")
}

// marshalString writes a JSON string without HTML escaping, NFC normalized
// unless the encoder is exact.
func (e *canonicalEncoder) marshalString(s string) error {
	if e.normalize {
		s = norm.NFC.String(s)
	}
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	e.buf.Write(bytes.TrimSuffix(tmp.Bytes(), []byte{'\n'}))
	return nil
}

func (e *canonicalEncoder) marshalArray(arr []any) error {
	buf := &e.buf
	buf.WriteByte('[')
	for i, elem := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := e.marshal(elem); err != nil {
			return fmt.Errorf("array[%d]: %w", i, err)
		}
	}
	buf.WriteByte(']')
	return nil
}

func (e *canonicalEncoder) marshalObject(obj map[string]any) error {
	buf := &e.buf
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysUTF16)

	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := e.marshalString(k); err != nil {
			return fmt.Errorf("key %q: %w", k, err)
		}
		buf.WriteByte(':')
		if err := e.marshal(obj[k]); err != nil {
			return fmt.Errorf("value for key %q: %w", k, err)
		}
	}
	buf.WriteByte('}')
	return nil
}

// compareKeysUTF16 orders strings by UTF-16 code units (RFC 8785).
func compareKeysUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	for i := 0; i < min(len(a16), len(b16)); i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	}
	return 0
}
