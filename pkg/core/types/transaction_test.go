package types

import (
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func testKey(t *testing.T, network Network) (ed25519.PrivateKey, Address) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	addr, err := AddressFromPublicKey(pub, network)
	if err != nil {
		t.Fatalf("AddressFromPublicKey failed: %v", err)
	}
	return priv, addr
}

func TestCanonicalJSON(t *testing.T) {
	_, from := testKey(t, NetworkMain)
	_, to := testKey(t, NetworkMain)

	tx := Transaction{
		Amount: 5,
		Coin:   "KCN",
		Fee:    1,
		From:   from,
		Memo:   "hi",
		Nonce:  7,
		To:     to,
	}
	data, err := json.Marshal(&tx)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	want := fmt.Sprintf(`{"amount":5,"coin":"KCN","fee":1,"from":"%s","memo":"hi","nonce":7,"to":"%s"}`, from, to)
	if string(data) != want {
		t.Errorf("canonical JSON = %s, want %s", data, want)
	}
}

func TestSignatureDigestStable(t *testing.T) {
	_, from := testKey(t, NetworkMain)
	_, to := testKey(t, NetworkMain)
	tx := Transaction{Amount: 1, Coin: "KCN", Fee: 0, From: from, Nonce: 0, To: to}

	d1, err := tx.SignatureDigest()
	if err != nil {
		t.Fatalf("SignatureDigest failed: %v", err)
	}
	d2, err := tx.SignatureDigest()
	if err != nil {
		t.Fatalf("SignatureDigest failed: %v", err)
	}
	if d1 != d2 {
		t.Error("digest is not deterministic")
	}

	tx.Fee = 1
	d3, err := tx.SignatureDigest()
	if err != nil {
		t.Fatalf("SignatureDigest failed: %v", err)
	}
	if d1 == d3 {
		t.Error("digest should change with the fee")
	}
}

// signedParams builds a valid tx_send params object, then lets the caller
// mutate it before encoding.
func signedParams(t *testing.T, mutate func(top map[string]any, tx map[string]any)) []byte {
	t.Helper()
	priv, from := testKey(t, NetworkMain)
	_, to := testKey(t, NetworkMain)

	tx := Transaction{
		Amount: 5,
		Coin:   "KCN",
		Fee:    1,
		From:   from,
		Memo:   "",
		Nonce:  0,
		To:     to,
	}
	digest, err := tx.SignatureDigest()
	if err != nil {
		t.Fatalf("SignatureDigest failed: %v", err)
	}
	sig := ed25519.Sign(priv, digest[:])

	txMap := map[string]any{
		"amount": tx.Amount,
		"coin":   tx.Coin,
		"fee":    tx.Fee,
		"from":   from.String(),
		"memo":   tx.Memo,
		"nonce":  tx.Nonce,
		"to":     to.String(),
	}
	top := map[string]any{
		"hash":      hex.EncodeToString(digest[:]),
		"signature": hex.EncodeToString(sig),
		"tx":        txMap,
	}
	if mutate != nil {
		mutate(top, txMap)
	}
	data, err := json.Marshal(top)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	return data
}

func TestEnvelopeFromJSON(t *testing.T) {
	params := signedParams(t, nil)
	env, err := EnvelopeFromJSON(params, NetworkMain, 42)
	if err != nil {
		t.Fatalf("EnvelopeFromJSON failed: %v", err)
	}
	if env.Seen != 42 {
		t.Errorf("seen = %d, want 42", env.Seen)
	}
	if env.Tx.Amount != 5 || env.Tx.Nonce != 0 {
		t.Error("transaction fields not carried over")
	}
	if !env.Verify() {
		t.Error("parsed envelope should verify")
	}
}

func TestEnvelopeFromJSONValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(top map[string]any, tx map[string]any)
		field   string
		missing bool
	}{
		{"missing hash", func(top, tx map[string]any) { delete(top, "hash") }, "hash", true},
		{"missing signature", func(top, tx map[string]any) { delete(top, "signature") }, "signature", true},
		{"missing tx", func(top, tx map[string]any) { delete(top, "tx") }, "tx", true},
		{"missing memo", func(top, tx map[string]any) { delete(tx, "memo") }, "memo", true},
		{"zero amount", func(top, tx map[string]any) { tx["amount"] = 0 }, "amount", false},
		{"negative amount", func(top, tx map[string]any) { tx["amount"] = -5 }, "amount", false},
		{"amount overflow", func(top, tx map[string]any) { tx["amount"] = uint64(1) << 63 }, "amount", false},
		{"coin too short", func(top, tx map[string]any) { tx["coin"] = "KC" }, "coin", false},
		{"coin too long", func(top, tx map[string]any) { tx["coin"] = "ABCDE" }, "coin", false},
		{"coin lowercase", func(top, tx map[string]any) { tx["coin"] = "abc" }, "coin", false},
		{"memo too long", func(top, tx map[string]any) { tx["memo"] = strings.Repeat("a", 65) }, "memo", false},
		{"memo not printable", func(top, tx map[string]any) { tx["memo"] = "a\tb" }, "memo", false},
		{"bad from", func(top, tx map[string]any) { tx["from"] = "nonsense" }, "from", false},
		{"tampered signature", func(top, tx map[string]any) { top["signature"] = strings.Repeat("00", 64) }, "signature", false},
		{"tampered amount", func(top, tx map[string]any) { tx["amount"] = 6 }, "signature", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := signedParams(t, tt.mutate)
			_, err := EnvelopeFromJSON(params, NetworkMain, 0)
			if err == nil {
				t.Fatal("expected an error")
			}
			if tt.missing {
				var missing *MissingFieldError
				if !errors.As(err, &missing) || missing.Field != tt.field {
					t.Errorf("error = %v, want missing field %s", err, tt.field)
				}
			} else {
				var invalid *InvalidFieldError
				if !errors.As(err, &invalid) || invalid.Field != tt.field {
					t.Errorf("error = %v, want invalid field %s", err, tt.field)
				}
			}
		})
	}
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	otherPriv, _ := testKey(t, NetworkMain)
	_, from := testKey(t, NetworkMain)
	_, to := testKey(t, NetworkMain)

	tx := Transaction{Amount: 1, Coin: "KCN", Fee: 0, From: from, Nonce: 0, To: to}
	digest, err := tx.SignatureDigest()
	if err != nil {
		t.Fatalf("SignatureDigest failed: %v", err)
	}
	sig := ed25519.Sign(otherPriv, digest[:])

	env := Envelope{
		Hash:      hex.EncodeToString(digest[:]),
		Signature: hex.EncodeToString(sig),
		Tx:        tx,
	}
	if env.Verify() {
		t.Error("signature from the wrong key should not verify")
	}
}

func TestVerifyRejectsMalformedSignature(t *testing.T) {
	_, from := testKey(t, NetworkMain)
	_, to := testKey(t, NetworkMain)
	tx := Transaction{Amount: 1, Coin: "KCN", Fee: 0, From: from, Nonce: 0, To: to}

	for _, sig := range []string{"", "zz", "00", strings.Repeat("00", 63)} {
		env := Envelope{Hash: "00", Signature: sig, Tx: tx}
		if env.Verify() {
			t.Errorf("signature %q should not verify", sig)
		}
	}
}
