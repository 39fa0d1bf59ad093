package wallet

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/trapp/kcoin/pkg/core/types"
)

func TestKeyFileRoundTrip(t *testing.T) {
	_, priv, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair failed: %v", err)
	}

	file := filepath.Join(t.TempDir(), "wallet.key")
	if err := SaveKey(file, priv); err != nil {
		t.Fatalf("SaveKey failed: %v", err)
	}

	loaded, err := LoadKey(file)
	if err != nil {
		t.Fatalf("LoadKey failed: %v", err)
	}
	if !loaded.Equal(priv) {
		t.Error("loaded key does not match the saved one")
	}
}

func TestLoadKeyRejectsBadFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "wallet.key")
	if err := os.WriteFile(file, []byte("zz not hex"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadKey(file); err == nil {
		t.Error("LoadKey should reject a non-hex file")
	}
}

func TestBuildEnvelopeVerifies(t *testing.T) {
	_, priv, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair failed: %v", err)
	}
	from, err := Address(priv, types.NetworkRegtest)
	if err != nil {
		t.Fatalf("Address failed: %v", err)
	}
	_, toPriv, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair failed: %v", err)
	}
	to, err := Address(toPriv, types.NetworkRegtest)
	if err != nil {
		t.Fatalf("Address failed: %v", err)
	}

	tx := &types.Transaction{
		Amount: 5,
		Coin:   types.CoinKCN,
		Fee:    1,
		From:   from,
		Memo:   "test",
		Nonce:  0,
		To:     to,
	}
	env, err := BuildEnvelope(tx, priv)
	if err != nil {
		t.Fatalf("BuildEnvelope failed: %v", err)
	}
	if env.Hash == "" {
		t.Error("envelope hash should be set")
	}
	if !env.Verify() {
		t.Error("built envelope should verify")
	}

	// Any field change invalidates the signature.
	env.Tx.Amount = 6
	if env.Verify() {
		t.Error("modified envelope should not verify")
	}
}
