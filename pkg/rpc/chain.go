package rpc

import (
	"encoding/json"
	"errors"

	"github.com/trapp/kcoin/pkg/core/store"
	"github.com/trapp/kcoin/pkg/core/types"
)

func (s *Server) chainGetHeight(params json.RawMessage) (any, error) {
	height, err := s.store.BlockHeight()
	if err != nil {
		return nil, err
	}
	return map[string]any{"height": height}, nil
}

func (s *Server) chainGetBlockByHeight(params json.RawMessage) (any, error) {
	m, err := paramsObject(params)
	if err != nil {
		return nil, err
	}
	height, err := getUint32(m, "height")
	if err != nil {
		return nil, err
	}

	block, err := s.store.BlockByHeight(height)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errNoBlockFound()
	}
	if err != nil {
		return nil, err
	}

	txs, err := s.store.ChainTransactions(store.TxFilter{Height: &height, Limit: uint32(s.blockSize)})
	if err != nil {
		return nil, err
	}
	if txs == nil {
		txs = []*types.MinedTx{}
	}
	return map[string]any{
		"height": block.Height,
		"hash":   block.Hash,
		"time":   block.Time,
		"txs":    txs,
	}, nil
}

func (s *Server) chainGetTransactions(params json.RawMessage) (any, error) {
	m, err := paramsObject(params)
	if err != nil {
		return nil, err
	}

	var f store.TxFilter
	if f.Height, err = optUint32(m, "height"); err != nil {
		return nil, err
	}
	if f.AfterHeight, err = optUint32(m, "after_height"); err != nil {
		return nil, err
	}
	if f.From, err = optAddress(m, "from", s.network); err != nil {
		return nil, err
	}
	if f.To, err = optAddress(m, "to", s.network); err != nil {
		return nil, err
	}
	if f.Limit, err = limit(m, "limit"); err != nil {
		return nil, err
	}

	txs, err := s.store.ChainTransactions(f)
	if err != nil {
		return nil, err
	}
	if txs == nil {
		txs = []*types.MinedTx{}
	}
	return txs, nil
}

func (s *Server) chainGetTransactionByHash(params json.RawMessage) (any, error) {
	m, err := paramsObject(params)
	if err != nil {
		return nil, err
	}
	hash, err := getString(m, "hash")
	if err != nil {
		return nil, err
	}

	tx, err := s.store.ChainTxByHash(hash)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errNotFound()
	}
	if err != nil {
		return nil, err
	}
	return tx, nil
}

func (s *Server) chainAddressInfo(params json.RawMessage) (any, error) {
	m, err := paramsObject(params)
	if err != nil {
		return nil, err
	}
	addr, err := getAddress(m, "address", s.network)
	if err != nil {
		return nil, err
	}

	minedNonce, haveMined, err := s.store.MinedNonceMax(addr.String())
	if err != nil {
		return nil, err
	}
	memNonce, haveMem, err := s.store.MempoolNonceMax(addr.String())
	if err != nil {
		return nil, err
	}
	var nextNonce uint64
	switch {
	case haveMem:
		nextNonce = memNonce + 1
	case haveMined:
		nextNonce = minedNonce + 1
	}

	balances, err := s.store.Balances(addr.String())
	if err != nil {
		return nil, err
	}
	reserved, err := s.store.ReservedBalances(addr.String())
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"next_nonce":        nextNonce,
		"balances":          balanceMap(balances),
		"reserved_balances": balanceMap(reserved),
	}, nil
}

func balanceMap(rows []store.CoinBalance) map[string]types.Amount {
	out := make(map[string]types.Amount, len(rows))
	for _, row := range rows {
		out[row.Coin] = row.Balance
	}
	return out
}
