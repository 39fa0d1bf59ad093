package types

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"regexp"
)

// CoinKCN is the native coin. Fees are always paid in KCN.
const CoinKCN = "KCN"

// NewCoinFee is the minimum fee (in KCN base units) for a transaction that
// brings a previously unknown coin into existence.
const NewCoinFee Amount = 1_000_000_000

// MaxMemoLen bounds the memo field, in bytes.
const MaxMemoLen = 64

var (
	coinRe = regexp.MustCompile(`^[A-Z]{3,4}$`)
	memoRe = regexp.MustCompile(`^[ -~]*$`)
)

// InvalidFieldError reports a field that is present but out of range or of
// the wrong type.
type InvalidFieldError struct {
	Field string
}

func (e *InvalidFieldError) Error() string {
	return "invalid field " + e.Field
}

// MissingFieldError reports a required field that is absent.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return "missing field " + e.Field
}

// ErrInvalidSignature is returned when an envelope fails signature
// verification during parsing.
var ErrInvalidSignature = &InvalidFieldError{Field: "signature"}

// Transaction is the signed payload of an envelope. Field order matters: the
// canonical JSON used for the signature digest is the struct-order encoding,
// which keeps the keys lexicographic.
type Transaction struct {
	Amount Amount  `json:"amount"`
	Coin   string  `json:"coin"`
	Fee    Amount  `json:"fee"`
	From   Address `json:"from"`
	Memo   string  `json:"memo"`
	Nonce  uint64  `json:"nonce"`
	To     Address `json:"to"`
}

// SignatureDigest returns the SHA-256 of the canonical JSON encoding of the
// transaction. This is the message signed by the sender.
func (tx *Transaction) SignatureDigest() ([32]byte, error) {
	data, err := json.Marshal(tx)
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(data), nil
}

// Envelope is a transaction plus its client-supplied identity hash, its
// signature, and the server receipt time.
type Envelope struct {
	Hash      string      `json:"hash"`
	Signature string      `json:"signature"`
	Seen      int64       `json:"seen"`
	Tx        Transaction `json:"tx"`
}

// MinedTx is an envelope committed to a block.
type MinedTx struct {
	Block    uint32   `json:"block"`
	Index    uint32   `json:"index"`
	Envelope Envelope `json:"tx_envelope"`
}

// EnvelopeFromJSON parses and validates a tx_send parameter object. All
// range checks from the transaction model are enforced here; the signature
// is verified last. seen is the server receipt time in epoch seconds.
func EnvelopeFromJSON(data []byte, network Network, seen int64) (*Envelope, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, &InvalidFieldError{Field: "params"}
	}

	hash, err := fieldString(top, "hash")
	if err != nil {
		return nil, err
	}
	signature, err := fieldString(top, "signature")
	if err != nil {
		return nil, err
	}
	txObj, err := fieldObject(top, "tx")
	if err != nil {
		return nil, err
	}

	amount, err := fieldUint(txObj, "amount")
	if err != nil {
		return nil, err
	}
	if amount == 0 || amount > MaxValue {
		return nil, &InvalidFieldError{Field: "amount"}
	}
	coin, err := fieldString(txObj, "coin")
	if err != nil {
		return nil, err
	}
	if !coinRe.MatchString(coin) {
		return nil, &InvalidFieldError{Field: "coin"}
	}
	fee, err := fieldUint(txObj, "fee")
	if err != nil {
		return nil, err
	}
	if fee > MaxValue {
		return nil, &InvalidFieldError{Field: "fee"}
	}
	from, err := fieldAddress(txObj, "from", network)
	if err != nil {
		return nil, err
	}
	memo, err := fieldString(txObj, "memo")
	if err != nil {
		return nil, err
	}
	if len(memo) > MaxMemoLen || !memoRe.MatchString(memo) {
		return nil, &InvalidFieldError{Field: "memo"}
	}
	nonce, err := fieldUint(txObj, "nonce")
	if err != nil {
		return nil, err
	}
	if nonce > MaxValue {
		return nil, &InvalidFieldError{Field: "nonce"}
	}
	to, err := fieldAddress(txObj, "to", network)
	if err != nil {
		return nil, err
	}

	env := &Envelope{
		Hash:      hash,
		Signature: signature,
		Seen:      seen,
		Tx: Transaction{
			Amount: Amount(amount),
			Coin:   coin,
			Fee:    Amount(fee),
			From:   from,
			Memo:   memo,
			Nonce:  nonce,
			To:     to,
		},
	}

	if !env.Verify() {
		return nil, ErrInvalidSignature
	}
	return env, nil
}

// Verify checks the Ed25519 signature over the transaction digest using the
// sender's embedded public key. Any decoding failure returns false.
func (e *Envelope) Verify() bool {
	pub, err := e.Tx.From.PublicKey()
	if err != nil {
		return false
	}
	sig, err := hex.DecodeString(e.Signature)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}
	digest, err := e.Tx.SignatureDigest()
	if err != nil {
		return false
	}
	return ed25519.Verify(pub, digest[:], sig)
}

func fieldString(m map[string]json.RawMessage, field string) (string, error) {
	raw, ok := m[field]
	if !ok {
		return "", &MissingFieldError{Field: field}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", &InvalidFieldError{Field: field}
	}
	return s, nil
}

func fieldObject(m map[string]json.RawMessage, field string) (map[string]json.RawMessage, error) {
	raw, ok := m[field]
	if !ok {
		return nil, &MissingFieldError{Field: field}
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, &InvalidFieldError{Field: field}
	}
	return obj, nil
}

func fieldUint(m map[string]json.RawMessage, field string) (uint64, error) {
	raw, ok := m[field]
	if !ok {
		return 0, &MissingFieldError{Field: field}
	}
	var v uint64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, &InvalidFieldError{Field: field}
	}
	return v, nil
}

func fieldAddress(m map[string]json.RawMessage, field string, network Network) (Address, error) {
	s, err := fieldString(m, field)
	if err != nil {
		return Address{}, err
	}
	addr, err := ParseAddress(s, network)
	if err != nil {
		return Address{}, &InvalidFieldError{Field: field}
	}
	return addr, nil
}
