package domain

import (
	"bytes"
	"strings"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// FieldSize is the number of payload bytes carried by one field value.
// 2^248 is below the BN254 scalar modulus, so every 31-byte buffer is a
// canonical element.
const FieldSize = 31

// FieldValue is an element of the BN254 scalar field, the ledger's atomic
// storage unit.
type FieldValue struct {
	e fr.Element
}

// EncodeText packs text into a field value: the UTF-8 bytes are truncated to
// FieldSize, right-padded with zeros and read as a big-endian integer.
//
// Truncation is silent. Callers that must not lose data check
// len(text) <= FieldSize first.
func EncodeText(text string) FieldValue {
	var buf [FieldSize]byte
	copy(buf[:], text)
	var f FieldValue
	f.e.SetBytes(buf[:])
	return f
}

// DecodeText reverses EncodeText: the value is serialized to its 31-byte
// canonical form and trailing zero bytes are stripped.
//
// Known limitation: the payload model cannot represent trailing NUL bytes,
// so text ending in "\x00" does not survive a round trip. Interior NULs are
// returned as-is. Bytes are not required to be valid UTF-8; a truncated
// multi-byte rune comes back exactly as it was cut.
func DecodeText(f FieldValue) (string, error) {
	full := f.e.Bytes()
	if full[0] != 0 {
		return "", NewError(KindDecode, "field value does not fit a 31-byte payload")
	}
	payload := bytes.TrimRight(full[1:], "\x00")
	return string(payload), nil
}

// ParseFieldHex parses a 0x-prefixed big-endian hex field value as sent by
// the node. Values at or above the field modulus are rejected.
func ParseFieldHex(raw string) (FieldValue, error) {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "0x") && !strings.HasPrefix(raw, "0X") {
		raw = "0x" + raw
	}
	if len(raw)%2 == 1 {
		raw = "0x0" + raw[2:]
	}
	decoded, err := hexutil.Decode(raw)
	if err != nil {
		return FieldValue{}, WrapError(KindDecode, "invalid field hex", err)
	}
	if len(decoded) > fr.Bytes {
		return FieldValue{}, NewError(KindDecode, "field value longer than 32 bytes")
	}
	var buf [fr.Bytes]byte
	copy(buf[fr.Bytes-len(decoded):], decoded)
	var f FieldValue
	if err := f.e.SetBytesCanonical(buf[:]); err != nil {
		return FieldValue{}, WrapError(KindDecode, "field value out of range", err)
	}
	return f, nil
}

// Bytes returns the 32-byte big-endian representation.
func (f FieldValue) Bytes() [fr.Bytes]byte {
	return f.e.Bytes()
}

// Hex returns the value as 0x followed by 64 hex digits.
func (f FieldValue) Hex() string {
	b := f.e.Bytes()
	return hexutil.Encode(b[:])
}

func (f FieldValue) String() string {
	return f.Hex()
}

func (f FieldValue) Equal(other FieldValue) bool {
	return f.e.Equal(&other.e)
}

func (f FieldValue) IsZero() bool {
	return f.e.IsZero()
}

func (f FieldValue) MarshalText() ([]byte, error) {
	return []byte(f.Hex()), nil
}

func (f *FieldValue) UnmarshalText(text []byte) error {
	parsed, err := ParseFieldHex(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}
