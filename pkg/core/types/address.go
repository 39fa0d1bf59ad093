package types

import (
	"crypto/ed25519"
	"encoding/json"
	"errors"

	"github.com/btcsuite/btcd/btcutil/bech32"
)

// ErrInvalidAddress is returned when a string does not decode to an address
// of the active network.
var ErrInvalidAddress = errors.New("invalid address")

// Address is a bech32-encoded Ed25519 public key. The human-readable prefix
// is the network tag; the payload is the 32-byte key. Two addresses are equal
// iff their string forms are equal.
type Address struct {
	addr    string
	network Network
}

// ParseAddress validates s against the given network and returns the address.
// The prefix must match the network and the payload must decode to exactly
// 32 bytes.
func ParseAddress(s string, network Network) (Address, error) {
	hrp, data, err := bech32.Decode(s)
	if err != nil {
		return Address{}, ErrInvalidAddress
	}
	if hrp != network.Prefix() {
		return Address{}, ErrInvalidAddress
	}
	payload, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return Address{}, ErrInvalidAddress
	}
	if len(payload) != ed25519.PublicKeySize {
		return Address{}, ErrInvalidAddress
	}
	return Address{addr: s, network: network}, nil
}

// AddressFromPublicKey encodes a public key as an address of the given network.
func AddressFromPublicKey(pub ed25519.PublicKey, network Network) (Address, error) {
	if len(pub) != ed25519.PublicKeySize {
		return Address{}, ErrInvalidAddress
	}
	data, err := bech32.ConvertBits(pub, 8, 5, true)
	if err != nil {
		return Address{}, ErrInvalidAddress
	}
	s, err := bech32.Encode(network.Prefix(), data)
	if err != nil {
		return Address{}, ErrInvalidAddress
	}
	return Address{addr: s, network: network}, nil
}

// PublicKey returns the Ed25519 public key embedded in the address.
func (a Address) PublicKey() (ed25519.PublicKey, error) {
	hrp, data, err := bech32.Decode(a.addr)
	if err != nil {
		return nil, ErrInvalidAddress
	}
	if hrp != a.network.Prefix() {
		return nil, ErrInvalidAddress
	}
	payload, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return nil, ErrInvalidAddress
	}
	if len(payload) != ed25519.PublicKeySize {
		return nil, ErrInvalidAddress
	}
	return ed25519.PublicKey(payload), nil
}

// String returns the canonical bech32 form.
func (a Address) String() string {
	return a.addr
}

// Network returns the network the address was validated against.
func (a Address) Network() Network {
	return a.network
}

// IsZero reports whether the address is the uninitialized zero value.
func (a Address) IsZero() bool {
	return a.addr == ""
}

// MarshalJSON encodes the address as its string form.
func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.addr)
}
