package mempool

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/trapp/kcoin/pkg/core/store"
	"github.com/trapp/kcoin/pkg/core/types"
)

var (
	ErrTxKnown             = errors.New("transaction already known")
	ErrNonceGap            = errors.New("nonce gap")
	ErrNonceUsed           = errors.New("nonce already used")
	ErrFeeTooLowToReplace  = errors.New("fee too low to replace")
	ErrMempoolFull         = errors.New("mempool full")
	ErrMempoolFullOwnTxs   = errors.New("mempool full of own transactions")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrFeeTooLow           = errors.New("fee too low")
)

// Pool decides which envelopes enter the mempool. The mempool rows themselves
// live in the store; Pool owns the admission policy: per-sender nonce
// discipline, replace-by-fee, balance reservation and fee-ranked eviction
// under capacity pressure.
type Pool struct {
	store    *store.Store
	capacity uint64
}

// New creates a pool admitting at most capacity envelopes.
func New(s *store.Store, capacity uint64) *Pool {
	return &Pool{store: s, capacity: capacity}
}

// Submit runs the admission decision for one parsed, signature-verified
// envelope. The whole decision runs inside a single store transaction so a
// concurrent submission for the same (sender, nonce) serializes on the
// store's unique index.
func (p *Pool) Submit(env *types.Envelope) error {
	tx, err := p.store.Begin()
	if err != nil {
		return err
	}
	if err := submit(tx, env, p.capacity); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func submit(tx *store.Tx, env *types.Envelope, capacity uint64) error {
	from := env.Tx.From.String()

	known, err := tx.MempoolExists(env.Hash)
	if err != nil {
		return err
	}
	if known {
		return ErrTxKnown
	}

	// A transaction bringing a new coin into existence pays a minimum fee.
	// The existence flag also scopes the balance check below: there is no
	// coin balance to cover when the transaction itself creates the coin.
	coinExists := true
	if env.Tx.Coin != types.CoinKCN {
		coinExists, err = tx.CoinExists(env.Tx.Coin)
		if err != nil {
			return err
		}
		if !coinExists && env.Tx.Fee < types.NewCoinFee {
			return ErrFeeTooLow
		}
	}

	nChain, haveChain, err := tx.MinedNonceMax(from)
	if err != nil {
		return err
	}
	nMem, haveMem, err := tx.MempoolNonceMax(from)
	if err != nil {
		return err
	}

	var next, memMin uint64
	switch {
	case haveMem:
		next = nMem + 1
	case haveChain:
		next = nChain + 1
	}
	if haveChain {
		memMin = nChain + 1
	}

	if env.Tx.Nonce > next {
		return ErrNonceGap
	}
	if haveChain && env.Tx.Nonce <= nChain {
		return ErrNonceUsed
	}

	if env.Tx.Nonce >= memMin && env.Tx.Nonce < next {
		return replace(tx, env, from, coinExists)
	}

	// Fresh nonce. Make room if the mempool is at capacity: the cheapest
	// other sender group is evicted when the newcomer outbids its fee sum.
	count, err := tx.MempoolCount()
	if err != nil {
		return err
	}
	if count >= capacity {
		group, err := tx.MempoolLowestFeeSum(from)
		if errors.Is(err, store.ErrNotFound) {
			return ErrMempoolFullOwnTxs
		}
		if err != nil {
			return err
		}
		if uint64(env.Tx.Fee) <= group.TotalFee {
			return ErrMempoolFull
		}
		logrus.Debugf("mempool: evicting %d txs of %s (fee sum %d) for %s",
			group.Count, group.Address, group.TotalFee, env.Hash)
		if err := tx.MempoolEvict(group.Address); err != nil {
			return err
		}
	}

	if err := checkBalance(tx, env, 0, 0, coinExists); err != nil {
		return err
	}
	return tx.MempoolAdd(env)
}

// replace handles the replace-by-fee branch: the incoming envelope takes over
// an occupied (sender, nonce) slot if it pays strictly more fee and the
// sender's balances still cover the reservation after the swap.
func replace(tx *store.Tx, env *types.Envelope, from string, coinExists bool) error {
	current, err := tx.MempoolByNonce(from, env.Tx.Nonce)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("mempool row for nonce %d vanished", env.Tx.Nonce)
	}
	if err != nil {
		return err
	}
	if current.Tx.Fee >= env.Tx.Fee {
		return ErrFeeTooLowToReplace
	}
	if err := checkBalance(tx, env, current.Tx.Amount, current.Tx.Fee, coinExists); err != nil {
		return err
	}
	if err := tx.MempoolRemove(current.Hash); err != nil {
		return err
	}
	return tx.MempoolAdd(env)
}

// checkBalance verifies the sender can cover the reservation after admitting
// env. freedAmount/freedFee are the displaced envelope's values on the
// replacement path, zero otherwise. KCN transfers need one inequality; other
// coins need the amount covered in the coin (only when the coin already
// exists — a creating transaction mints it) and the fee covered in KCN.
func checkBalance(tx *store.Tx, env *types.Envelope, freedAmount, freedFee types.Amount, coinExists bool) error {
	from := env.Tx.From.String()

	kcnBalance, err := tx.Balance(from, types.CoinKCN)
	if err != nil {
		return err
	}
	kcnReserved, err := tx.Reserved(from, types.CoinKCN)
	if err != nil {
		return err
	}

	if env.Tx.Coin == types.CoinKCN {
		need := int64(kcnReserved) - int64(freedFee) - int64(freedAmount) + int64(env.Tx.Fee) + int64(env.Tx.Amount)
		if int64(kcnBalance) < need {
			return ErrInsufficientBalance
		}
		return nil
	}

	if coinExists {
		coinBalance, err := tx.Balance(from, env.Tx.Coin)
		if err != nil {
			return err
		}
		coinReserved, err := tx.Reserved(from, env.Tx.Coin)
		if err != nil {
			return err
		}
		if int64(coinBalance) < int64(coinReserved)-int64(freedAmount)+int64(env.Tx.Amount) {
			return ErrInsufficientBalance
		}
	}
	if int64(kcnBalance) < int64(kcnReserved)-int64(freedFee)+int64(env.Tx.Fee) {
		return ErrInsufficientBalance
	}
	return nil
}
