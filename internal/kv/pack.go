package kv

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"math/big"
)

// Type codes of the packed key encoding. Integers use a variable-width
// code centred on intZero so that byte order follows numeric order.
const (
	codeBytes      = 0x01
	codeString     = 0x02
	codeNegBigInt  = 0x0b
	codeIntZero    = 0x14
	codePosBigInt  = 0x1d
	codeNumber     = 0x21
	codeFalse      = 0x26
	codeTrue       = 0x27
	maxSmallIntLen = 8
)

// MaxBigIntBytes is the largest bigint magnitude, in bytes, a key part may
// hold. The packed form stores the length in one byte.
const MaxBigIntBytes = 255

// Validate reports an error for keys Pack cannot encode faithfully.
func (k Key) Validate() error {
	for i, p := range k {
		if err := p.validate(); err != nil {
			return fmt.Errorf("key part %d: %w", i, err)
		}
	}
	return nil
}

func (p KeyPart) validate() error {
	if p.Kind == KindBigInt {
		if n := len(bigOrZero(p.Int).Bytes()); n > MaxBigIntBytes {
			return fmt.Errorf("%w: bigint of %d bytes exceeds %d", ErrKeyTooLarge, n, MaxBigIntBytes)
		}
	}
	return nil
}

// Pack encodes the key so that bytes.Compare on packed keys agrees with
// Key.Compare. The key must pass Validate.
func (k Key) Pack() []byte {
	out := make([]byte, 0, 16)
	for _, p := range k {
		out = p.pack(out)
	}
	return out
}

func (p KeyPart) pack(out []byte) []byte {
	switch p.Kind {
	case KindBytes:
		out = append(out, codeBytes)
		out = packEscaped(out, p.Bytes)
	case KindString:
		out = append(out, codeString)
		out = packEscaped(out, []byte(p.Str))
	case KindBigInt:
		out = packBigInt(out, bigOrZero(p.Int))
	case KindNumber:
		out = append(out, codeNumber)
		out = packFloat(out, p.Num)
	case KindBool:
		if p.Bool {
			out = append(out, codeTrue)
		} else {
			out = append(out, codeFalse)
		}
	}
	return out
}

// packEscaped writes b with every 0x00 doubled as 0x00 0xff, then a 0x00
// terminator.
func packEscaped(out, b []byte) []byte {
	for _, c := range b {
		out = append(out, c)
		if c == 0x00 {
			out = append(out, 0xff)
		}
	}
	return append(out, 0x00)
}

func packBigInt(out []byte, i *big.Int) []byte {
	if i.Sign() == 0 {
		return append(out, codeIntZero)
	}
	mag := new(big.Int).Abs(i).Bytes()
	n := len(mag)
	if i.Sign() > 0 {
		if n <= maxSmallIntLen {
			out = append(out, byte(codeIntZero+n))
		} else {
			out = append(out, codePosBigInt, byte(n))
		}
		return append(out, mag...)
	}
	if n <= maxSmallIntLen {
		out = append(out, byte(codeIntZero-n))
	} else {
		out = append(out, codeNegBigInt, byte(n)^0xff)
	}
	for _, c := range mag {
		out = append(out, ^c)
	}
	return out
}

func packFloat(out []byte, f float64) []byte {
	if math.IsNaN(f) {
		f = math.NaN()
	}
	bits := math.Float64bits(f)
	if bits&(1<<63) != 0 {
		bits = ^bits
	} else {
		bits |= 1 << 63
	}
	return binary.BigEndian.AppendUint64(out, bits)
}

// Unpack decodes a key produced by Pack.
func Unpack(b []byte) (Key, error) {
	var key Key
	for i := 0; i < len(b); {
		code := b[i]
		i++
		switch {
		case code == codeBytes || code == codeString:
			raw, next, err := unpackEscaped(b, i)
			if err != nil {
				return nil, err
			}
			i = next
			if code == codeBytes {
				key = append(key, KeyPart{Kind: KindBytes, Bytes: raw})
			} else {
				key = append(key, String(string(raw)))
			}
		case code >= codeNegBigInt && code <= codePosBigInt:
			v, next, err := unpackBigInt(b, i, code)
			if err != nil {
				return nil, err
			}
			i = next
			key = append(key, KeyPart{Kind: KindBigInt, Int: v})
		case code == codeNumber:
			if i+8 > len(b) {
				return nil, fmt.Errorf("%w: truncated number at offset %d", ErrMalformedKey, i)
			}
			bits := binary.BigEndian.Uint64(b[i : i+8])
			if bits&(1<<63) != 0 {
				bits &^= 1 << 63
			} else {
				bits = ^bits
			}
			key = append(key, Number(math.Float64frombits(bits)))
			i += 8
		case code == codeFalse:
			key = append(key, Bool(false))
		case code == codeTrue:
			key = append(key, Bool(true))
		default:
			return nil, fmt.Errorf("%w: unknown type code 0x%02x at offset %d", ErrMalformedKey, code, i-1)
		}
	}
	return key, nil
}

func unpackEscaped(b []byte, i int) ([]byte, int, error) {
	var raw []byte
	for i < len(b) {
		c := b[i]
		if c != 0x00 {
			raw = append(raw, c)
			i++
			continue
		}
		if i+1 < len(b) && b[i+1] == 0xff {
			raw = append(raw, 0x00)
			i += 2
			continue
		}
		if raw == nil {
			raw = []byte{}
		}
		return raw, i + 1, nil
	}
	return nil, 0, fmt.Errorf("%w: unterminated string", ErrMalformedKey)
}

func unpackBigInt(b []byte, i int, code byte) (*big.Int, int, error) {
	if code == codeIntZero {
		return new(big.Int), i, nil
	}
	var n int
	neg := false
	switch {
	case code == codePosBigInt || code == codeNegBigInt:
		if i >= len(b) {
			return nil, 0, fmt.Errorf("%w: truncated bigint length", ErrMalformedKey)
		}
		n = int(b[i])
		if code == codeNegBigInt {
			n = int(b[i] ^ 0xff)
			neg = true
		}
		i++
	case code > codeIntZero:
		n = int(code - codeIntZero)
	default:
		n = int(codeIntZero - code)
		neg = true
	}
	if i+n > len(b) {
		return nil, 0, fmt.Errorf("%w: truncated bigint", ErrMalformedKey)
	}
	mag := bytes.Clone(b[i : i+n])
	if neg {
		for j := range mag {
			mag[j] = ^mag[j]
		}
	}
	v := new(big.Int).SetBytes(mag)
	if neg {
		v.Neg(v)
	}
	return v, i + n, nil
}
