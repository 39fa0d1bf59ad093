package wallet

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"os"
	"strings"

	"github.com/trapp/kcoin/pkg/core/types"
)

// GenerateKeyPair generates a new Ed25519 keypair.
func GenerateKeyPair() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	return ed25519.GenerateKey(nil)
}

// SaveKey saves the private key to a file in hex format.
func SaveKey(filename string, privKey ed25519.PrivateKey) error {
	hexKey := hex.EncodeToString(privKey)
	return os.WriteFile(filename, []byte(hexKey), 0600)
}

// LoadKey loads a private key from a file (hex format).
func LoadKey(filename string) (ed25519.PrivateKey, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	raw, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, err
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, errors.New("invalid private key length")
	}
	return ed25519.PrivateKey(raw), nil
}

// Address returns the bech32 address for the public half of the key.
func Address(privKey ed25519.PrivateKey, network types.Network) (types.Address, error) {
	if len(privKey) != ed25519.PrivateKeySize {
		return types.Address{}, errors.New("invalid private key length")
	}
	pub := ed25519.PublicKey(privKey[ed25519.PrivateKeySize-ed25519.PublicKeySize:])
	return types.AddressFromPublicKey(pub, network)
}

// SignTransaction signs the canonical digest of the transaction and returns
// the hex signature. The From address must match the key.
func SignTransaction(tx *types.Transaction, privKey ed25519.PrivateKey) (string, error) {
	if len(privKey) != ed25519.PrivateKeySize {
		return "", errors.New("invalid private key length")
	}
	digest, err := tx.SignatureDigest()
	if err != nil {
		return "", err
	}
	sig := ed25519.Sign(privKey, digest[:])
	return hex.EncodeToString(sig), nil
}

// BuildEnvelope signs the transaction and wraps it for tx_send. The envelope
// hash is the hex of the signature digest; the node treats it as an opaque
// identity.
func BuildEnvelope(tx *types.Transaction, privKey ed25519.PrivateKey) (*types.Envelope, error) {
	sig, err := SignTransaction(tx, privKey)
	if err != nil {
		return nil, err
	}
	digest, err := tx.SignatureDigest()
	if err != nil {
		return nil, err
	}
	return &types.Envelope{
		Hash:      hex.EncodeToString(digest[:]),
		Signature: sig,
		Tx:        *tx,
	}, nil
}
