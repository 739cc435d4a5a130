package kv

import (
	"errors"
	"math"
	"math/big"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestDecodeEntry_BigInt(t *testing.T) {
	line := `{"key":[{"type":"string","value":"a"}],"value":{"type":"bigint","value":"100"},"versionstamp":"00000000000000060000"}`

	entry, err := DecodeEntry([]byte(line))
	if err != nil {
		t.Fatalf("DecodeEntry() error = %v", err)
	}

	want := Entry{
		Key:          Key{String("a")},
		Value:        BigIntValue(big.NewInt(100)),
		Versionstamp: "00000000000000060000",
	}
	if diff := cmp.Diff(want, entry); diff != "" {
		t.Errorf("DecodeEntry() mismatch (-want +got):\n%s", diff)
	}

	out, err := EncodeEntry(entry)
	if err != nil {
		t.Fatalf("EncodeEntry() error = %v", err)
	}
	if string(out) != line {
		t.Errorf("EncodeEntry() = %s\nwant %s", out, line)
	}
}

func TestValue_JSON(t *testing.T) {
	date := time.Date(2024, 3, 1, 12, 30, 0, 250*int(time.Millisecond), time.UTC)
	cause := StringValue("disk full")
	wrapped := ErrorValue("RangeError", "out of range")
	wrapped.Err.Cause = &cause

	tests := []struct {
		name  string
		value Value
		json  string
	}{
		{"null", NullValue(), `{"type":"null"}`},
		{"undefined", UndefinedValue(), `{"type":"undefined"}`},
		{"false", BoolValue(false), `{"type":"boolean","value":false}`},
		{"number", NumberValue(42.5), `{"type":"number","value":42.5}`},
		{"nan", NumberValue(math.NaN()), `{"type":"number","value":"NaN"}`},
		{"negative infinity", NumberValue(math.Inf(-1)), `{"type":"number","value":"-Infinity"}`},
		{"bigint", BigIntValue(big.NewInt(-9)), `{"type":"bigint","value":"-9"}`},
		{"u64", U64Value(math.MaxUint64), `{"type":"KvU64","value":"18446744073709551615"}`},
		{"string", StringValue("<hi>"), `{"type":"string","value":"<hi>"}`},
		{"bytes", BytesValue([]byte("hello")), `{"type":"Uint8Array","value":"aGVsbG8"}`},
		{"empty array", ArrayValue(), `{"type":"Array","value":[]}`},
		{"array", ArrayValue(NumberValue(1), StringValue("x")),
			`{"type":"Array","value":[{"type":"number","value":1},{"type":"string","value":"x"}]}`},
		{"set", SetValue(BoolValue(true)), `{"type":"Set","value":[{"type":"boolean","value":true}]}`},
		{"object", ObjectValue(map[string]Value{"a": NullValue(), "b": NumberValue(2)}),
			`{"type":"object","value":{"a":{"type":"null"},"b":{"type":"number","value":2}}}`},
		{"map", MapValue(MapEntry{Key: NumberValue(1), Value: StringValue("one")}),
			`{"type":"Map","value":[[{"type":"number","value":1},{"type":"string","value":"one"}]]}`},
		{"date", DateValue(date), `{"type":"Date","value":"2024-03-01T12:30:00.250Z"}`},
		{"regexp", RegExpValue("a/b+", "gi"), `{"type":"RegExp","value":"/a/b+/gi"}`},
		{"error", ErrorValue("", "boom"), `{"type":"Error","value":{"message":"boom"}}`},
		{"custom error", ErrorValue("HttpError", "teapot"), `{"type":"Error","value":{"name":"HttpError","message":"teapot"}}`},
		{"error with cause", wrapped,
			`{"type":"RangeError","value":{"message":"out of range","cause":{"type":"string","value":"disk full"}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.value.MarshalJSON()
			if err != nil {
				t.Fatalf("MarshalJSON() error = %v", err)
			}
			if string(got) != tt.json {
				t.Errorf("MarshalJSON() = %s\nwant %s", got, tt.json)
			}

			var back Value
			if err := back.UnmarshalJSON([]byte(tt.json)); err != nil {
				t.Fatalf("UnmarshalJSON() error = %v", err)
			}
			if !back.Equal(tt.value) {
				t.Errorf("UnmarshalJSON(%s) = %+v, want %+v", tt.json, back, tt.value)
			}
		})
	}
}

func TestDecodeEntry_Errors(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		wantErr error
	}{
		{"not json", `{"key":`, nil},
		{"not an object", `[1,2]`, nil},
		{"missing key", `{"value":{"type":"null"}}`, ErrMalformedPayload},
		{"missing value", `{"key":[]}`, ErrMalformedPayload},
		{"unknown value tag", `{"key":[],"value":{"type":"Symbol","value":"x"}}`, ErrUnknownType},
		{"unknown key tag", `{"key":[{"type":"Date","value":"x"}],"value":{"type":"null"}}`, ErrUnknownType},
		{"bad bigint", `{"key":[],"value":{"type":"bigint","value":"12x"}}`, ErrMalformedPayload},
		{"bigint as number", `{"key":[],"value":{"type":"bigint","value":12}}`, ErrMalformedPayload},
		{"bad base64", `{"key":[],"value":{"type":"Uint8Array","value":"***"}}`, ErrMalformedPayload},
		{"bad date", `{"key":[],"value":{"type":"Date","value":"yesterday"}}`, ErrMalformedPayload},
		{"bad regexp", `{"key":[],"value":{"type":"RegExp","value":"abc"}}`, ErrMalformedPayload},
		{"short map entry", `{"key":[],"value":{"type":"Map","value":[[{"type":"null"}]]}}`, ErrMalformedPayload},
		{"u64 overflow", `{"key":[],"value":{"type":"KvU64","value":"18446744073709551616"}}`, ErrMalformedPayload},
		{"payload missing", `{"key":[],"value":{"type":"string"}}`, ErrMalformedPayload},
		{"null string", `{"key":[],"value":{"type":"string","value":null}}`, ErrMalformedPayload},
		{"null boolean", `{"key":[],"value":{"type":"boolean","value":null}}`, ErrMalformedPayload},
		{"null number", `{"key":[],"value":{"type":"number","value":null}}`, ErrMalformedPayload},
		{"null bigint", `{"key":[],"value":{"type":"bigint","value":null}}`, ErrMalformedPayload},
		{"null u64", `{"key":[],"value":{"type":"KvU64","value":null}}`, ErrMalformedPayload},
		{"null date", `{"key":[],"value":{"type":"Date","value":null}}`, ErrMalformedPayload},
		{"null regexp", `{"key":[],"value":{"type":"RegExp","value":null}}`, ErrMalformedPayload},
		{"null array", `{"key":[],"value":{"type":"Array","value":null}}`, ErrMalformedPayload},
		{"null error", `{"key":[],"value":{"type":"TypeError","value":null}}`, ErrMalformedPayload},
		{"null nested value", `{"key":[],"value":{"type":"Array","value":[{"type":"string","value":null}]}}`, ErrMalformedPayload},
		{"null key part", `{"key":[{"type":"string","value":null}],"value":{"type":"null"}}`, ErrMalformedPayload},
		{"null bool key part", `{"key":[{"type":"boolean","value":null}],"value":{"type":"null"}}`, ErrMalformedPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeEntry([]byte(tt.line))
			if err == nil {
				t.Fatal("DecodeEntry() succeeded, want error")
			}
			var decErr *DecodeError
			if !errors.As(err, &decErr) {
				t.Fatalf("DecodeEntry() error = %T, want *DecodeError", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("DecodeEntry() error = %v, want wrapping %v", err, tt.wantErr)
			}
		})
	}
}

func TestEncodeEntry_NoVersionstamp(t *testing.T) {
	out, err := EncodeEntry(Entry{Key: nil, Value: StringValue("a&b")})
	if err != nil {
		t.Fatalf("EncodeEntry() error = %v", err)
	}
	want := `{"key":[],"value":{"type":"string","value":"a&b"}}`
	if string(out) != want {
		t.Errorf("EncodeEntry() = %s, want %s", out, want)
	}
}

func TestEncodeEntry_InvalidValue(t *testing.T) {
	if _, err := EncodeEntry(Entry{Key: Key{String("a")}}); err == nil {
		t.Error("EncodeEntry() with zero Value succeeded, want error")
	}
}
