package kv

import (
	"bytes"
	"cmp"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"strings"
)

// PartKind identifies the type of a key part. The numeric order of the
// kinds is the order in which parts of different kinds sort.
type PartKind uint8

const (
	KindBytes PartKind = iota + 1
	KindString
	KindBigInt
	KindNumber
	KindBool
)

var partTags = map[PartKind]string{
	KindBytes:  "Uint8Array",
	KindString: "string",
	KindBigInt: "bigint",
	KindNumber: "number",
	KindBool:   "boolean",
}

// String returns the wire tag for the kind.
func (k PartKind) String() string {
	if tag, ok := partTags[k]; ok {
		return tag
	}
	return fmt.Sprintf("PartKind(%d)", uint8(k))
}

// KeyPart is one typed component of a composite key. Only the field
// matching Kind is meaningful.
type KeyPart struct {
	Kind  PartKind
	Str   string
	Num   float64
	Int   *big.Int
	Bool  bool
	Bytes []byte
}

// String returns a string key part.
func String(s string) KeyPart { return KeyPart{Kind: KindString, Str: s} }

// Int returns a bigint key part holding i.
func Int(i int64) KeyPart { return KeyPart{Kind: KindBigInt, Int: big.NewInt(i)} }

// BigInt returns a bigint key part. The value is copied.
func BigInt(i *big.Int) KeyPart {
	return KeyPart{Kind: KindBigInt, Int: new(big.Int).Set(bigOrZero(i))}
}

// Number returns a floating point key part.
func Number(f float64) KeyPart { return KeyPart{Kind: KindNumber, Num: f} }

// Bool returns a boolean key part.
func Bool(b bool) KeyPart { return KeyPart{Kind: KindBool, Bool: b} }

// Bytes returns a binary key part. The slice is copied.
func Bytes(b []byte) KeyPart { return KeyPart{Kind: KindBytes, Bytes: bytes.Clone(b)} }

// Compare orders two key parts. Numbers compare by their packed form, which
// sorts -0 before +0 and NaN after +Inf.
func (p KeyPart) Compare(o KeyPart) int {
	if p.Kind != o.Kind {
		return cmp.Compare(p.Kind, o.Kind)
	}
	switch p.Kind {
	case KindBytes:
		return bytes.Compare(p.Bytes, o.Bytes)
	case KindString:
		return strings.Compare(p.Str, o.Str)
	case KindBigInt:
		return bigOrZero(p.Int).Cmp(bigOrZero(o.Int))
	case KindNumber:
		return bytes.Compare(packFloat(nil, p.Num), packFloat(nil, o.Num))
	case KindBool:
		switch {
		case p.Bool == o.Bool:
			return 0
		case !p.Bool:
			return -1
		default:
			return 1
		}
	}
	return 0
}

// Equal reports whether p and o are the same part.
func (p KeyPart) Equal(o KeyPart) bool { return p.Compare(o) == 0 }

func (p KeyPart) String() string {
	switch p.Kind {
	case KindBytes:
		return fmt.Sprintf("%x", p.Bytes)
	case KindString:
		return fmt.Sprintf("%q", p.Str)
	case KindBigInt:
		return bigOrZero(p.Int).String() + "n"
	case KindNumber:
		return formatNumber(p.Num)
	case KindBool:
		if p.Bool {
			return "true"
		}
		return "false"
	}
	return "<invalid>"
}

type wirePart struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

// MarshalJSON encodes the part as {"type": tag, "value": payload}.
func (p KeyPart) MarshalJSON() ([]byte, error) {
	var payload any
	switch p.Kind {
	case KindBytes:
		payload = base64.RawURLEncoding.EncodeToString(p.Bytes)
	case KindString:
		payload = p.Str
	case KindBigInt:
		payload = bigOrZero(p.Int).String()
	case KindNumber:
		payload = numberPayload(p.Num)
	case KindBool:
		payload = p.Bool
	default:
		return nil, fmt.Errorf("%w: key part kind %d", ErrUnknownType, p.Kind)
	}
	raw, err := marshalJSON(payload)
	if err != nil {
		return nil, err
	}
	return marshalJSON(wirePart{Type: p.Kind.String(), Value: raw})
}

// UnmarshalJSON decodes the {"type": tag, "value": payload} form.
func (p *KeyPart) UnmarshalJSON(data []byte) error {
	var w wirePart
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if len(w.Value) == 0 || isNullPayload(w.Value) {
		return fmt.Errorf("%w: key part %q has no value", ErrMalformedPayload, w.Type)
	}
	switch w.Type {
	case "Uint8Array":
		b, err := decodeBytesPayload(w.Value)
		if err != nil {
			return err
		}
		*p = KeyPart{Kind: KindBytes, Bytes: b}
	case "string":
		var s string
		if err := json.Unmarshal(w.Value, &s); err != nil {
			return fmt.Errorf("%w: string key part: %v", ErrMalformedPayload, err)
		}
		*p = String(s)
	case "bigint":
		i, err := decodeBigIntPayload(w.Value)
		if err != nil {
			return err
		}
		*p = KeyPart{Kind: KindBigInt, Int: i}
		if err := p.validate(); err != nil {
			return err
		}
	case "number":
		f, err := decodeNumberPayload(w.Value)
		if err != nil {
			return err
		}
		*p = Number(f)
	case "boolean":
		var b bool
		if err := json.Unmarshal(w.Value, &b); err != nil {
			return fmt.Errorf("%w: boolean key part: %v", ErrMalformedPayload, err)
		}
		*p = Bool(b)
	default:
		return fmt.Errorf("%w: key part %q", ErrUnknownType, w.Type)
	}
	return nil
}

// Key is a composite store key.
type Key []KeyPart

// Compare orders keys part by part; a proper prefix sorts first.
func (k Key) Compare(o Key) int {
	for i := 0; i < len(k) && i < len(o); i++ {
		if c := k[i].Compare(o[i]); c != 0 {
			return c
		}
	}
	return cmp.Compare(len(k), len(o))
}

// Equal reports whether both keys have the same parts.
func (k Key) Equal(o Key) bool { return len(k) == len(o) && k.Compare(o) == 0 }

// HasPrefix reports whether prefix is a leading subsequence of k.
func (k Key) HasPrefix(prefix Key) bool {
	return len(prefix) <= len(k) && k[:len(prefix)].Equal(prefix)
}

// WithPrefix returns a new key made of prefix followed by the parts of k.
func (k Key) WithPrefix(prefix Key) Key {
	out := make(Key, 0, len(prefix)+len(k))
	out = append(out, prefix...)
	return append(out, k...)
}

func (k Key) String() string {
	parts := make([]string, len(k))
	for i, p := range k {
		parts[i] = p.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// MarshalJSON always emits an array, even for a nil key.
func (k Key) MarshalJSON() ([]byte, error) {
	if k == nil {
		return []byte("[]"), nil
	}
	return marshalJSON([]KeyPart(k))
}

// ParseKey decodes a key from its JSON wire form.
func ParseKey(data []byte) (Key, error) {
	var k Key
	if err := json.Unmarshal(data, &k); err != nil {
		return nil, &DecodeError{Err: err}
	}
	return k, nil
}

func bigOrZero(i *big.Int) *big.Int {
	if i == nil {
		return new(big.Int)
	}
	return i
}

func formatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return fmt.Sprint(f)
}
