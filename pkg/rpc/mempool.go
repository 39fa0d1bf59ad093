package rpc

import (
	"encoding/json"
	"errors"

	"github.com/trapp/kcoin/pkg/core/store"
	"github.com/trapp/kcoin/pkg/core/types"
)

func (s *Server) mempoolGetTransactions(params json.RawMessage) (any, error) {
	m, err := paramsObject(params)
	if err != nil {
		return nil, err
	}

	var f store.TxFilter
	if f.AfterSeen, err = optInt64(m, "after_seen"); err != nil {
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

	txs, err := s.store.MempoolTransactions(f)
	if err != nil {
		return nil, err
	}
	if txs == nil {
		txs = []*types.Envelope{}
	}
	return txs, nil
}

func (s *Server) mempoolGetTransactionByHash(params json.RawMessage) (any, error) {
	m, err := paramsObject(params)
	if err != nil {
		return nil, err
	}
	hash, err := getString(m, "hash")
	if err != nil {
		return nil, err
	}

	env, err := s.store.MempoolByHash(hash)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errNotFound()
	}
	if err != nil {
		return nil, err
	}
	return env, nil
}

func (s *Server) mempoolGetStats(params json.RawMessage) (any, error) {
	stats, err := s.store.Stats()
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"count":   stats.Count,
		"min_fee": stats.MinFee,
		"max_fee": stats.MaxFee,
		"avg_fee": stats.AvgFee,
	}, nil
}
