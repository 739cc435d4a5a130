package kv

import (
	"bytes"
	"math"
	"math/big"
	"time"
)

// ValueType is the wire tag of a value.
type ValueType string

const (
	TypeNull      ValueType = "null"
	TypeUndefined ValueType = "undefined"
	TypeBoolean   ValueType = "boolean"
	TypeNumber    ValueType = "number"
	TypeBigInt    ValueType = "bigint"
	TypeString    ValueType = "string"
	TypeBytes     ValueType = "Uint8Array"
	TypeArray     ValueType = "Array"
	TypeObject    ValueType = "object"
	TypeMap       ValueType = "Map"
	TypeSet       ValueType = "Set"
	TypeDate      ValueType = "Date"
	TypeRegExp    ValueType = "RegExp"
	TypeError     ValueType = "Error"
	TypeU64       ValueType = "KvU64"
)

// errorNames are the error constructors preserved as their own wire tag.
var errorNames = map[string]bool{
	"Error":          true,
	"EvalError":      true,
	"RangeError":     true,
	"ReferenceError": true,
	"SyntaxError":    true,
	"TypeError":      true,
	"URIError":       true,
}

// Value is a typed store value. Type selects which fields are meaningful:
//
//	boolean            Bool
//	number             Num
//	bigint             Int
//	KvU64              U64
//	string             Str
//	Uint8Array         Bytes
//	Array, Set         Items
//	object             Fields
//	Map                Entries
//	Date               Time
//	RegExp             Str (source) and Flags
//	Error              Err
type Value struct {
	Type    ValueType
	Bool    bool
	Num     float64
	Int     *big.Int
	U64     uint64
	Str     string
	Flags   string
	Bytes   []byte
	Items   []Value
	Fields  map[string]Value
	Entries []MapEntry
	Time    time.Time
	Err     *ErrorDetail
}

// MapEntry is one key/value pair of a Map value. Keys are full values.
type MapEntry struct {
	Key   Value
	Value Value
}

// ErrorDetail carries the fields of a serialized error.
type ErrorDetail struct {
	Name    string
	Message string
	Stack   string
	Cause   *Value
}

func NullValue() Value { return Value{Type: TypeNull} }
func UndefinedValue() Value { return Value{Type: TypeUndefined} }
func BoolValue(b bool) Value { return Value{Type: TypeBoolean, Bool: b} }
func NumberValue(f float64) Value { return Value{Type: TypeNumber, Num: f} }
func StringValue(s string) Value { return Value{Type: TypeString, Str: s} }
func BytesValue(b []byte) Value { return Value{Type: TypeBytes, Bytes: bytes.Clone(b)} }
func U64Value(u uint64) Value { return Value{Type: TypeU64, U64: u} }
func DateValue(t time.Time) Value { return Value{Type: TypeDate, Time: t} }
func ArrayValue(items ...Value) Value { return Value{Type: TypeArray, Items: items} }
func SetValue(items ...Value) Value { return Value{Type: TypeSet, Items: items} }

// BigIntValue returns a bigint value. The argument is copied.
func BigIntValue(i *big.Int) Value {
	return Value{Type: TypeBigInt, Int: new(big.Int).Set(bigOrZero(i))}
}

// ObjectValue returns a plain object value.
func ObjectValue(fields map[string]Value) Value {
	if fields == nil {
		fields = map[string]Value{}
	}
	return Value{Type: TypeObject, Fields: fields}
}

// MapValue returns a Map value with entries in insertion order.
func MapValue(entries ...MapEntry) Value { return Value{Type: TypeMap, Entries: entries} }

// RegExpValue returns a regular expression value.
func RegExpValue(source, flags string) Value {
	return Value{Type: TypeRegExp, Str: source, Flags: flags}
}

// ErrorValue returns an error value. An empty name means "Error".
func ErrorValue(name, message string) Value {
	if name == "" {
		name = "Error"
	}
	return Value{Type: TypeError, Err: &ErrorDetail{Name: name, Message: message}}
}

// Equal reports deep equality. NaN equals NaN so decoded values compare
// equal to their source.
func (v Value) Equal(o Value) bool {
	if v.Type != o.Type {
		return false
	}
	switch v.Type {
	case TypeNull, TypeUndefined:
		return true
	case TypeBoolean:
		return v.Bool == o.Bool
	case TypeNumber:
		return v.Num == o.Num || (math.IsNaN(v.Num) && math.IsNaN(o.Num))
	case TypeBigInt:
		return bigOrZero(v.Int).Cmp(bigOrZero(o.Int)) == 0
	case TypeU64:
		return v.U64 == o.U64
	case TypeString:
		return v.Str == o.Str
	case TypeBytes:
		return bytes.Equal(v.Bytes, o.Bytes)
	case TypeArray, TypeSet:
		return equalValues(v.Items, o.Items)
	case TypeObject:
		if len(v.Fields) != len(o.Fields) {
			return false
		}
		for name, fv := range v.Fields {
			ov, ok := o.Fields[name]
			if !ok || !fv.Equal(ov) {
				return false
			}
		}
		return true
	case TypeMap:
		if len(v.Entries) != len(o.Entries) {
			return false
		}
		for i := range v.Entries {
			if !v.Entries[i].Key.Equal(o.Entries[i].Key) || !v.Entries[i].Value.Equal(o.Entries[i].Value) {
				return false
			}
		}
		return true
	case TypeDate:
		return v.Time.Equal(o.Time)
	case TypeRegExp:
		return v.Str == o.Str && v.Flags == o.Flags
	case TypeError:
		return v.Err.equal(o.Err)
	}
	return false
}

func (d *ErrorDetail) equal(o *ErrorDetail) bool {
	if d == nil || o == nil {
		return d == o
	}
	if d.Name != o.Name || d.Message != o.Message || d.Stack != o.Stack {
		return false
	}
	if d.Cause == nil || o.Cause == nil {
		return d.Cause == o.Cause
	}
	return d.Cause.Equal(*o.Cause)
}

func equalValues(a, b []Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}
