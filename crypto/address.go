package crypto

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
)

// AddressPrefix is the human-readable part used when rendering addresses.
const AddressPrefix = "rmt"

// AddressLength is the byte length of every protocol address.
const AddressLength = 20

// Address identifies a lender, borrower, operator or protocol component.
type Address [AddressLength]byte

// ZeroAddress is the unset address.
var ZeroAddress Address

// BytesToAddress copies b into an address, keeping the rightmost bytes when b
// is longer than an address.
func BytesToAddress(b []byte) Address {
	var a Address
	if len(b) > AddressLength {
		b = b[len(b)-AddressLength:]
	}
	copy(a[AddressLength-len(b):], b)
	return a
}

// IsZero reports whether the address is unset.
func (a Address) IsZero() bool { return a == ZeroAddress }

// Bytes returns a copy of the raw address bytes.
func (a Address) Bytes() []byte { return append([]byte(nil), a[:]...) }

// Hex renders the address as lowercase hex without a 0x prefix.
func (a Address) Hex() string { return hex.EncodeToString(a[:]) }

// Equal reports whether both addresses carry the same bytes.
func (a Address) Equal(other Address) bool { return bytes.Equal(a[:], other[:]) }

func (a Address) String() string {
	conv, err := bech32.ConvertBits(a[:], 8, 5, true)
	if err != nil {
		return a.Hex()
	}
	encoded, err := bech32.Encode(AddressPrefix, conv)
	if err != nil {
		return a.Hex()
	}
	return encoded
}

// MarshalText encodes the address in bech32 form.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText accepts bech32 or hex encoded addresses.
func (a *Address) UnmarshalText(text []byte) error {
	decoded, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = decoded
	return nil
}

// DecodeAddress parses a bech32 address carrying the protocol prefix.
func DecodeAddress(addrStr string) (Address, error) {
	prefix, decoded, err := bech32.Decode(addrStr)
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	if prefix != AddressPrefix {
		return Address{}, fmt.Errorf("unexpected address prefix %q", prefix)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("error converting bits: %w", err)
	}
	if len(conv) != AddressLength {
		return Address{}, fmt.Errorf("address must be %d bytes long", AddressLength)
	}
	return BytesToAddress(conv), nil
}

// ParseAddress accepts either the bech32 form or a 40 character hex string
// (optionally 0x prefixed).
func ParseAddress(raw string) (Address, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Address{}, fmt.Errorf("address required")
	}
	if strings.HasPrefix(strings.ToLower(trimmed), AddressPrefix+"1") {
		return DecodeAddress(strings.ToLower(trimmed))
	}
	hexStr := strings.TrimPrefix(strings.TrimPrefix(trimmed, "0x"), "0X")
	if len(hexStr) != AddressLength*2 {
		return Address{}, fmt.Errorf("invalid address %q", raw)
	}
	decoded, err := hex.DecodeString(hexStr)
	if err != nil {
		return Address{}, fmt.Errorf("invalid hex address: %w", err)
	}
	return BytesToAddress(decoded), nil
}

// MustParseAddress is ParseAddress for constants and tests.
func MustParseAddress(raw string) Address {
	addr, err := ParseAddress(raw)
	if err != nil {
		panic(err)
	}
	return addr
}

// ModuleAddress derives the custody address of a protocol component from its
// name so every deployment agrees on it without configuration.
func ModuleAddress(name string) Address {
	return BytesToAddress(Keccak256([]byte("remitlend/module/" + strings.ToLower(strings.TrimSpace(name)))))
}
