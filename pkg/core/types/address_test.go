package types

import (
	"bytes"
	"crypto/ed25519"
	"strings"
	"testing"
)

func TestAddressRoundTrip(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}

	addr, err := AddressFromPublicKey(pub, NetworkMain)
	if err != nil {
		t.Fatalf("AddressFromPublicKey failed: %v", err)
	}
	if !strings.HasPrefix(addr.String(), "kcn1") {
		t.Errorf("main address = %q, want kcn1 prefix", addr.String())
	}

	parsed, err := ParseAddress(addr.String(), NetworkMain)
	if err != nil {
		t.Fatalf("ParseAddress failed: %v", err)
	}
	if parsed != addr {
		t.Error("parsed address should equal the encoded one")
	}

	got, err := parsed.PublicKey()
	if err != nil {
		t.Fatalf("PublicKey failed: %v", err)
	}
	if !bytes.Equal(got, pub) {
		t.Error("recovered public key does not match")
	}
}

func TestAddressRegtestPrefix(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}

	addr, err := AddressFromPublicKey(pub, NetworkRegtest)
	if err != nil {
		t.Fatalf("AddressFromPublicKey failed: %v", err)
	}
	if !strings.HasPrefix(addr.String(), "ktest1") {
		t.Errorf("regtest address = %q, want ktest1 prefix", addr.String())
	}

	// A regtest address is rejected on main.
	if _, err := ParseAddress(addr.String(), NetworkMain); err != ErrInvalidAddress {
		t.Errorf("cross-network parse error = %v, want ErrInvalidAddress", err)
	}
}

func TestParseAddressRejectsGarbage(t *testing.T) {
	inputs := []string{
		"",
		"kcn1",
		"not an address",
		"kcn1qqqqqqqqqq",       // payload too short
		"bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4", // wrong prefix
	}
	for _, in := range inputs {
		if _, err := ParseAddress(in, NetworkMain); err != ErrInvalidAddress {
			t.Errorf("ParseAddress(%q) error = %v, want ErrInvalidAddress", in, err)
		}
	}
}

func TestAddressJSON(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	addr, err := AddressFromPublicKey(pub, NetworkMain)
	if err != nil {
		t.Fatalf("AddressFromPublicKey failed: %v", err)
	}

	data, err := addr.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON failed: %v", err)
	}
	want := `"` + addr.String() + `"`
	if string(data) != want {
		t.Errorf("MarshalJSON = %s, want %s", data, want)
	}
}
