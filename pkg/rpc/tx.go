package rpc

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/trapp/kcoin/pkg/core/mempool"
	"github.com/trapp/kcoin/pkg/core/types"
)

func (s *Server) txSend(params json.RawMessage) (any, error) {
	env, err := types.EnvelopeFromJSON(params, s.network, time.Now().Unix())
	if err != nil {
		var invalid *types.InvalidFieldError
		var missing *types.MissingFieldError
		if errors.As(err, &invalid) || errors.As(err, &missing) {
			return nil, errInvalidParams(err.Error())
		}
		return nil, err
	}

	if err := s.pool.Submit(env); err != nil {
		return nil, admissionError(err)
	}
	logrus.Debugf("accepted tx %s from %s", env.Hash, env.Tx.From)
	return map[string]any{}, nil
}

func admissionError(err error) error {
	switch {
	case errors.Is(err, mempool.ErrTxKnown):
		return errTxKnown()
	case errors.Is(err, mempool.ErrNonceGap):
		return errNonceGap()
	case errors.Is(err, mempool.ErrNonceUsed):
		return errNonceUsed()
	case errors.Is(err, mempool.ErrFeeTooLowToReplace):
		return errFeeTooLowToReplace()
	case errors.Is(err, mempool.ErrMempoolFull):
		return errMempoolFull()
	case errors.Is(err, mempool.ErrMempoolFullOwnTxs):
		return errMempoolFullOwnTxs()
	case errors.Is(err, mempool.ErrInsufficientBalance):
		return errInsufficientBalance()
	case errors.Is(err, mempool.ErrFeeTooLow):
		return errFeeTooLow()
	}
	return err
}
