package rpc

import (
	"bytes"
	"crypto/ed25519"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/trapp/kcoin/pkg/core/blockchain"
	"github.com/trapp/kcoin/pkg/core/mempool"
	"github.com/trapp/kcoin/pkg/core/store"
	"github.com/trapp/kcoin/pkg/core/types"
	"github.com/trapp/kcoin/pkg/wallet"
)

type testNode struct {
	url        string
	genesis    types.Address
	genesisKey ed25519.PrivateKey
}

func newTestNode(t *testing.T) *testNode {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	genesis, err := wallet.Address(priv, types.NetworkRegtest)
	require.NoError(t, err)

	st, err := store.Open(t.TempDir(), types.NetworkRegtest, genesis, 100_000_000)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	pool := mempool.New(st, 100)
	asm := blockchain.New(st, 100, time.Minute)
	srv := NewServer(st, pool, asm, types.NetworkRegtest, 100, true)

	httpSrv := httptest.NewServer(srv.Handler())
	t.Cleanup(httpSrv.Close)

	return &testNode{url: httpSrv.URL, genesis: genesis, genesisKey: priv}
}

type rpcResult struct {
	Result json.RawMessage `json:"result"`
	Error  *Error          `json:"error"`
}

func (n *testNode) call(t *testing.T, method string, params any) rpcResult {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"method":  method,
		"params":  params,
		"id":      1,
	})
	require.NoError(t, err)

	resp, err := http.Post(n.url, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out rpcResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func (n *testNode) envelope(t *testing.T, to types.Address, coin string, amount, fee types.Amount, nonce uint64) *types.Envelope {
	t.Helper()
	tx := &types.Transaction{
		Amount: amount,
		Coin:   coin,
		Fee:    fee,
		From:   n.genesis,
		Memo:   "",
		Nonce:  nonce,
		To:     to,
	}
	env, err := wallet.BuildEnvelope(tx, n.genesisKey)
	require.NoError(t, err)
	return env
}

func newTestAddress(t *testing.T) types.Address {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	addr, err := types.AddressFromPublicKey(pub, types.NetworkRegtest)
	require.NoError(t, err)
	return addr
}

func TestMethodNotFound(t *testing.T) {
	n := newTestNode(t)
	out := n.call(t, "chain_doesNotExist", nil)
	require.NotNil(t, out.Error)
	require.Equal(t, -32601, out.Error.Code)
}

func TestParamsMustBeObject(t *testing.T) {
	n := newTestNode(t)
	out := n.call(t, "chain_getBlockByHeight", []int{1})
	require.NotNil(t, out.Error)
	require.Equal(t, -32602, out.Error.Code)
}

func TestChainGetHeightEmpty(t *testing.T) {
	n := newTestNode(t)
	out := n.call(t, "chain_getHeight", nil)
	require.Nil(t, out.Error)
	require.JSONEq(t, `{"height":0}`, string(out.Result))
}

func TestTxSendAndGenerate(t *testing.T) {
	n := newTestNode(t)
	to := newTestAddress(t)

	env := n.envelope(t, to, types.CoinKCN, 5, 1, 0)
	out := n.call(t, "tx_send", env)
	require.Nil(t, out.Error)

	// Duplicate submission is reported as known.
	out = n.call(t, "tx_send", env)
	require.NotNil(t, out.Error)
	require.Equal(t, -33008, out.Error.Code)

	stats := n.call(t, "mempool_getStats", nil)
	require.Nil(t, stats.Error)
	var statsObj struct {
		Count  uint64 `json:"count"`
		MinFee uint64 `json:"min_fee"`
	}
	require.NoError(t, json.Unmarshal(stats.Result, &statsObj))
	require.Equal(t, uint64(1), statsObj.Count)
	require.Equal(t, uint64(1), statsObj.MinFee)

	out = n.call(t, "regtest_generate", nil)
	require.Nil(t, out.Error)

	out = n.call(t, "chain_getHeight", nil)
	require.Nil(t, out.Error)
	require.JSONEq(t, `{"height":1}`, string(out.Result))

	block := n.call(t, "chain_getBlockByHeight", map[string]any{"height": 1})
	require.Nil(t, block.Error)
	var blockObj struct {
		Height uint32 `json:"height"`
		Hash   string `json:"hash"`
		Txs    []struct {
			Block    uint32 `json:"block"`
			Index    uint32 `json:"index"`
			Envelope struct {
				Hash string `json:"hash"`
			} `json:"tx_envelope"`
		} `json:"txs"`
	}
	require.NoError(t, json.Unmarshal(block.Result, &blockObj))
	require.Equal(t, uint32(1), blockObj.Height)
	require.Len(t, blockObj.Txs, 1)
	require.Equal(t, env.Hash, blockObj.Txs[0].Envelope.Hash)

	mined := n.call(t, "chain_getTransactionByHash", map[string]any{"hash": env.Hash})
	require.Nil(t, mined.Error)
}

func TestTxSendErrorCodes(t *testing.T) {
	n := newTestNode(t)
	to := newTestAddress(t)

	// Nonce gap.
	out := n.call(t, "tx_send", n.envelope(t, to, types.CoinKCN, 1, 1, 5))
	require.NotNil(t, out.Error)
	require.Equal(t, -33006, out.Error.Code)

	// New coin below the minimum fee.
	out = n.call(t, "tx_send", n.envelope(t, to, "XYZ", 1, types.NewCoinFee-1, 0))
	require.NotNil(t, out.Error)
	require.Equal(t, -33013, out.Error.Code)

	// Tampered signature is malformed input.
	env := n.envelope(t, to, types.CoinKCN, 1, 1, 0)
	env.Signature = "00"
	out = n.call(t, "tx_send", env)
	require.NotNil(t, out.Error)
	require.Equal(t, -32602, out.Error.Code)
}

func TestAddressInfo(t *testing.T) {
	n := newTestNode(t)
	to := newTestAddress(t)

	require.Nil(t, n.call(t, "tx_send", n.envelope(t, to, types.CoinKCN, 5, 0, 0)).Error)
	require.Nil(t, n.call(t, "regtest_generate", nil).Error)
	require.Nil(t, n.call(t, "tx_send", n.envelope(t, to, types.CoinKCN, 7, 2, 1)).Error)

	out := n.call(t, "chain_addressInfo", map[string]any{"address": n.genesis.String()})
	require.Nil(t, out.Error)
	var info struct {
		NextNonce uint64            `json:"next_nonce"`
		Balances  map[string]uint64 `json:"balances"`
		Reserved  map[string]uint64 `json:"reserved_balances"`
	}
	require.NoError(t, json.Unmarshal(out.Result, &info))
	require.Equal(t, uint64(2), info.NextNonce)
	require.Equal(t, types.NewAmountFromKCN(100_000_000)-5, types.Amount(info.Balances[types.CoinKCN]))
	require.Equal(t, uint64(9), info.Reserved[types.CoinKCN])
}

func TestMempoolLookupNotFound(t *testing.T) {
	n := newTestNode(t)
	out := n.call(t, "mempool_getTransactionByHash", map[string]any{"hash": "ab"})
	require.NotNil(t, out.Error)
	require.Equal(t, -33001, out.Error.Code)

	out = n.call(t, "chain_getBlockByHeight", map[string]any{"height": 9})
	require.NotNil(t, out.Error)
	require.Equal(t, -33005, out.Error.Code)
}

func TestMempoolGetTransactions(t *testing.T) {
	n := newTestNode(t)
	to := newTestAddress(t)

	require.Nil(t, n.call(t, "tx_send", n.envelope(t, to, types.CoinKCN, 1, 1, 0)).Error)
	require.Nil(t, n.call(t, "tx_send", n.envelope(t, to, types.CoinKCN, 2, 1, 1)).Error)

	out := n.call(t, "mempool_getTransactions", map[string]any{"from": n.genesis.String()})
	require.Nil(t, out.Error)
	var txs []struct {
		Hash string `json:"hash"`
	}
	require.NoError(t, json.Unmarshal(out.Result, &txs))
	require.Len(t, txs, 2)
}
