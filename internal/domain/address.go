package domain

import (
	"strings"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// AddressLength is the byte length of an account or contract address.
const AddressLength = fr.Bytes

// Address identifies an account or contract. It is a field element written
// as 0x followed by 64 hex digits; it is validated here and never
// interpreted further.
type Address [AddressLength]byte

// ParseAddress validates the textual form of an address. The 0x prefix is
// optional; exactly 64 hex digits are required and the value must be below
// the field modulus.
func ParseAddress(raw string) (Address, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Address{}, NewError(KindValidation, "address is empty")
	}
	if !strings.HasPrefix(raw, "0x") && !strings.HasPrefix(raw, "0X") {
		raw = "0x" + raw
	}
	if len(raw) != 2+2*AddressLength {
		return Address{}, NewError(KindValidation, "address must be 64 hex digits")
	}
	decoded, err := hexutil.Decode("0x" + raw[2:])
	if err != nil {
		return Address{}, WrapError(KindValidation, "address is not hex", err)
	}
	var e fr.Element
	if err := e.SetBytesCanonical(decoded); err != nil {
		return Address{}, WrapError(KindValidation, "address out of field range", err)
	}
	var addr Address
	copy(addr[:], decoded)
	return addr, nil
}

// IsValidAddress reports whether raw parses as an Address.
func IsValidAddress(raw string) bool {
	_, err := ParseAddress(raw)
	return err == nil
}

func (a Address) Hex() string {
	return hexutil.Encode(a[:])
}

func (a Address) String() string {
	return a.Hex()
}

func (a Address) IsZero() bool {
	return a == Address{}
}

func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.Hex()), nil
}

func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
