package kv

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrUnknownType is returned for a type tag the codec does not know.
	ErrUnknownType = errors.New("unknown type tag")

	// ErrMalformedPayload is returned when a payload does not fit its tag.
	ErrMalformedPayload = errors.New("malformed payload")

	// ErrMalformedKey is returned by Unpack for bytes not produced by Pack.
	ErrMalformedKey = errors.New("malformed packed key")

	// ErrKeyTooLarge is returned for a key part Pack cannot encode.
	ErrKeyTooLarge = errors.New("key too large")
)

// DecodeError reports a line that could not be turned into an Entry.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return "decode entry: " + e.Err.Error() }

func (e *DecodeError) Unwrap() error { return e.Err }

// dateLayout matches the ISO form JavaScript's Date.prototype.toJSON emits.
const dateLayout = "2006-01-02T15:04:05.000Z07:00"

type wireValue struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value,omitempty"`
}

type wireError struct {
	Name    string     `json:"name,omitempty"`
	Message string     `json:"message"`
	Stack   string     `json:"stack,omitempty"`
	Cause   *wireValue `json:"cause,omitempty"`
}

// MarshalJSON encodes the value as {"type": tag, "value": payload}.
func (v Value) MarshalJSON() ([]byte, error) {
	w, err := v.wire()
	if err != nil {
		return nil, err
	}
	return marshalJSON(w)
}

// marshalJSON encodes v without escaping HTML characters. Every layer of a
// nested encoding has to use it, or the outer layer re-escapes the inner one.
func marshalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func (v Value) wire() (wireValue, error) {
	var payload any
	tag := string(v.Type)
	switch v.Type {
	case TypeNull, TypeUndefined:
		return wireValue{Type: tag}, nil
	case TypeBoolean:
		payload = v.Bool
	case TypeNumber:
		payload = numberPayload(v.Num)
	case TypeBigInt:
		payload = bigOrZero(v.Int).String()
	case TypeU64:
		payload = strconv.FormatUint(v.U64, 10)
	case TypeString:
		payload = v.Str
	case TypeBytes:
		payload = base64.RawURLEncoding.EncodeToString(v.Bytes)
	case TypeArray, TypeSet:
		items := v.Items
		if items == nil {
			items = []Value{}
		}
		payload = items
	case TypeObject:
		fields := v.Fields
		if fields == nil {
			fields = map[string]Value{}
		}
		payload = fields
	case TypeMap:
		pairs := make([][2]Value, len(v.Entries))
		for i, e := range v.Entries {
			pairs[i] = [2]Value{e.Key, e.Value}
		}
		payload = pairs
	case TypeDate:
		payload = v.Time.UTC().Format(dateLayout)
	case TypeRegExp:
		payload = "/" + v.Str + "/" + v.Flags
	case TypeError:
		if v.Err == nil {
			return wireValue{}, fmt.Errorf("%w: error value without detail", ErrMalformedPayload)
		}
		we := wireError{Message: v.Err.Message, Stack: v.Err.Stack}
		if errorNames[v.Err.Name] {
			tag = v.Err.Name
		} else {
			tag = string(TypeError)
			we.Name = v.Err.Name
		}
		if v.Err.Cause != nil {
			cause, err := v.Err.Cause.wire()
			if err != nil {
				return wireValue{}, err
			}
			we.Cause = &cause
		}
		payload = we
	default:
		return wireValue{}, fmt.Errorf("%w: %q", ErrUnknownType, v.Type)
	}
	raw, err := marshalJSON(payload)
	if err != nil {
		return wireValue{}, err
	}
	return wireValue{Type: tag, Value: raw}, nil
}

// UnmarshalJSON decodes the {"type": tag, "value": payload} form.
func (v *Value) UnmarshalJSON(data []byte) error {
	var w wireValue
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	out, err := w.value()
	if err != nil {
		return err
	}
	*v = out
	return nil
}

func (w wireValue) value() (Value, error) {
	if w.Type == "" {
		return Value{}, fmt.Errorf("%w: missing type", ErrMalformedPayload)
	}
	switch ValueType(w.Type) {
	case TypeNull:
		return NullValue(), nil
	case TypeUndefined:
		return UndefinedValue(), nil
	}
	if len(w.Value) == 0 || isNullPayload(w.Value) {
		return Value{}, fmt.Errorf("%w: %s has no value", ErrMalformedPayload, w.Type)
	}
	if errorNames[w.Type] {
		return decodeErrorPayload(w.Type, w.Value)
	}
	switch ValueType(w.Type) {
	case TypeBoolean:
		var b bool
		if err := json.Unmarshal(w.Value, &b); err != nil {
			return Value{}, fmt.Errorf("%w: boolean: %v", ErrMalformedPayload, err)
		}
		return BoolValue(b), nil
	case TypeNumber:
		f, err := decodeNumberPayload(w.Value)
		if err != nil {
			return Value{}, err
		}
		return NumberValue(f), nil
	case TypeBigInt:
		i, err := decodeBigIntPayload(w.Value)
		if err != nil {
			return Value{}, err
		}
		return Value{Type: TypeBigInt, Int: i}, nil
	case TypeU64:
		var s string
		if err := json.Unmarshal(w.Value, &s); err != nil {
			return Value{}, fmt.Errorf("%w: KvU64: %v", ErrMalformedPayload, err)
		}
		u, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("%w: KvU64 %q out of range", ErrMalformedPayload, s)
		}
		return U64Value(u), nil
	case TypeString:
		var s string
		if err := json.Unmarshal(w.Value, &s); err != nil {
			return Value{}, fmt.Errorf("%w: string: %v", ErrMalformedPayload, err)
		}
		return StringValue(s), nil
	case TypeBytes:
		b, err := decodeBytesPayload(w.Value)
		if err != nil {
			return Value{}, err
		}
		return Value{Type: TypeBytes, Bytes: b}, nil
	case TypeArray, TypeSet:
		var items []Value
		if err := json.Unmarshal(w.Value, &items); err != nil {
			return Value{}, err
		}
		if items == nil {
			items = []Value{}
		}
		return Value{Type: ValueType(w.Type), Items: items}, nil
	case TypeObject:
		var fields map[string]Value
		if err := json.Unmarshal(w.Value, &fields); err != nil {
			return Value{}, err
		}
		if fields == nil {
			return Value{}, fmt.Errorf("%w: object payload is null", ErrMalformedPayload)
		}
		return ObjectValue(fields), nil
	case TypeMap:
		var pairs [][]Value
		if err := json.Unmarshal(w.Value, &pairs); err != nil {
			return Value{}, err
		}
		entries := make([]MapEntry, len(pairs))
		for i, pair := range pairs {
			if len(pair) != 2 {
				return Value{}, fmt.Errorf("%w: Map entry %d has %d elements", ErrMalformedPayload, i, len(pair))
			}
			entries[i] = MapEntry{Key: pair[0], Value: pair[1]}
		}
		return MapValue(entries...), nil
	case TypeDate:
		var s string
		if err := json.Unmarshal(w.Value, &s); err != nil {
			return Value{}, fmt.Errorf("%w: Date: %v", ErrMalformedPayload, err)
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return Value{}, fmt.Errorf("%w: Date %q", ErrMalformedPayload, s)
		}
		return DateValue(t), nil
	case TypeRegExp:
		var s string
		if err := json.Unmarshal(w.Value, &s); err != nil {
			return Value{}, fmt.Errorf("%w: RegExp: %v", ErrMalformedPayload, err)
		}
		end := strings.LastIndexByte(s, '/')
		if !strings.HasPrefix(s, "/") || end < 1 {
			return Value{}, fmt.Errorf("%w: RegExp %q", ErrMalformedPayload, s)
		}
		return RegExpValue(s[1:end], s[end+1:]), nil
	}
	return Value{}, fmt.Errorf("%w: %q", ErrUnknownType, w.Type)
}

func decodeErrorPayload(tag string, raw json.RawMessage) (Value, error) {
	var we wireError
	if err := json.Unmarshal(raw, &we); err != nil {
		return Value{}, fmt.Errorf("%w: %s: %v", ErrMalformedPayload, tag, err)
	}
	name := tag
	if tag == string(TypeError) && we.Name != "" {
		name = we.Name
	}
	detail := &ErrorDetail{Name: name, Message: we.Message, Stack: we.Stack}
	if we.Cause != nil {
		cause, err := we.Cause.value()
		if err != nil {
			return Value{}, err
		}
		detail.Cause = &cause
	}
	return Value{Type: TypeError, Err: detail}, nil
}

// numberPayload returns the JSON payload for f. JSON has no NaN or
// infinities, so those travel as strings.
func numberPayload(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return formatNumber(f)
	}
	return f
}

func decodeNumberPayload(raw json.RawMessage) (float64, error) {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("%w: number %s", ErrMalformedPayload, raw)
	}
	switch s {
	case "NaN":
		return math.NaN(), nil
	case "Infinity":
		return math.Inf(1), nil
	case "-Infinity":
		return math.Inf(-1), nil
	}
	return 0, fmt.Errorf("%w: number %q", ErrMalformedPayload, s)
}

func decodeBigIntPayload(raw json.RawMessage) (*big.Int, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("%w: bigint must be a decimal string", ErrMalformedPayload)
	}
	i, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("%w: bigint %q", ErrMalformedPayload, s)
	}
	return i, nil
}

// isNullPayload reports a literal JSON null, which json.Unmarshal would
// silently decode as a zero value.
func isNullPayload(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// decodeBytesPayload accepts base64url with or without padding.
func decodeBytesPayload(raw json.RawMessage) ([]byte, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("%w: Uint8Array must be a base64url string", ErrMalformedPayload)
	}
	b, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
	if err != nil {
		return nil, fmt.Errorf("%w: Uint8Array: %v", ErrMalformedPayload, err)
	}
	return b, nil
}

// Entry is one stored record.
type Entry struct {
	Key          Key
	Value        Value
	Versionstamp string
}

// Exists reports whether the entry was read from a key that holds a value.
func (e Entry) Exists() bool { return e.Versionstamp != "" }

type wireEntry struct {
	Key          Key    `json:"key"`
	Value        Value  `json:"value"`
	Versionstamp string `json:"versionstamp,omitempty"`
}

type wireEntryIn struct {
	Key          *Key   `json:"key"`
	Value        *Value `json:"value"`
	Versionstamp string `json:"versionstamp"`
}

// EncodeEntry returns the single-line JSON form of e, without a trailing
// newline.
func EncodeEntry(e Entry) ([]byte, error) {
	out, err := marshalJSON(wireEntry{Key: e.Key, Value: e.Value, Versionstamp: e.Versionstamp})
	if err != nil {
		return nil, fmt.Errorf("encode entry %s: %w", e.Key, err)
	}
	return out, nil
}

// DecodeEntry parses one JSON entry. All failures are *DecodeError.
func DecodeEntry(data []byte) (Entry, error) {
	var w wireEntryIn
	if err := json.Unmarshal(data, &w); err != nil {
		return Entry{}, &DecodeError{Err: err}
	}
	if w.Key == nil {
		return Entry{}, &DecodeError{Err: fmt.Errorf("%w: missing key", ErrMalformedPayload)}
	}
	if w.Value == nil {
		return Entry{}, &DecodeError{Err: fmt.Errorf("%w: missing value", ErrMalformedPayload)}
	}
	return Entry{Key: *w.Key, Value: *w.Value, Versionstamp: w.Versionstamp}, nil
}
