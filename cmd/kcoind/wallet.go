package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/trapp/kcoin/pkg/core/types"
	"github.com/trapp/kcoin/pkg/wallet"
)

func walletCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "wallet", Short: "key management"}

	var file string
	var regtest bool
	newCmd := &cobra.Command{
		Use:   "new",
		Short: "generate a new keypair",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, priv, err := wallet.GenerateKeyPair()
			if err != nil {
				return err
			}
			if err := wallet.SaveKey(file, priv); err != nil {
				return err
			}
			addr, err := wallet.Address(priv, networkFor(regtest))
			if err != nil {
				return err
			}
			fmt.Printf("private key saved to: %s\n", file)
			fmt.Printf("address: %s\n", addr)
			return nil
		},
	}
	newCmd.Flags().StringVar(&file, "file", "wallet.key", "file to save the key to")
	newCmd.Flags().BoolVar(&regtest, "regtest", false, "derive a regtest address")
	cmd.AddCommand(newCmd)
	return cmd
}

func sendCmd() *cobra.Command {
	var (
		to      string
		amount  uint64
		coin    string
		fee     uint64
		memo    string
		nonce   int64
		keyFile string
		rpcURL  string
		regtest bool
	)
	cmd := &cobra.Command{
		Use:   "send",
		Short: "sign and submit a transaction",
		RunE: func(cmd *cobra.Command, args []string) error {
			network := networkFor(regtest)

			priv, err := wallet.LoadKey(keyFile)
			if err != nil {
				return err
			}
			from, err := wallet.Address(priv, network)
			if err != nil {
				return err
			}
			toAddr, err := types.ParseAddress(to, network)
			if err != nil {
				return fmt.Errorf("invalid argument to: %w", err)
			}

			txNonce := uint64(nonce)
			if nonce < 0 {
				txNonce, err = nextNonce(rpcURL, from)
				if err != nil {
					return err
				}
			}

			tx := &types.Transaction{
				Amount: types.Amount(amount),
				Coin:   coin,
				Fee:    types.Amount(fee),
				From:   from,
				Memo:   memo,
				Nonce:  txNonce,
				To:     toAddr,
			}
			env, err := wallet.BuildEnvelope(tx, priv)
			if err != nil {
				return err
			}

			if _, err := rpcCall(rpcURL, "tx_send", env); err != nil {
				return err
			}
			fmt.Printf("submitted: %s\n", env.Hash)
			return nil
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "recipient address")
	cmd.Flags().Uint64Var(&amount, "amount", 0, "amount in base units")
	cmd.Flags().StringVar(&coin, "coin", types.CoinKCN, "coin to transfer")
	cmd.Flags().Uint64Var(&fee, "fee", 0, "fee in KCN base units")
	cmd.Flags().StringVar(&memo, "memo", "", "memo (printable ascii, max 64 bytes)")
	cmd.Flags().Int64Var(&nonce, "nonce", -1, "nonce (fetched from the node when unset)")
	cmd.Flags().StringVar(&keyFile, "key", "wallet.key", "private key file")
	cmd.Flags().StringVar(&rpcURL, "rpc", "http://127.0.0.1:3030", "rpc server url")
	cmd.Flags().BoolVar(&regtest, "regtest", false, "use regtest addresses")
	cmd.MarkFlagRequired("to")
	cmd.MarkFlagRequired("amount")
	return cmd
}

func networkFor(regtest bool) types.Network {
	if regtest {
		return types.NetworkRegtest
	}
	return types.NetworkMain
}

func nextNonce(rpcURL string, addr types.Address) (uint64, error) {
	result, err := rpcCall(rpcURL, "chain_addressInfo", map[string]string{"address": addr.String()})
	if err != nil {
		return 0, err
	}
	var info struct {
		NextNonce uint64 `json:"next_nonce"`
	}
	if err := json.Unmarshal(result, &info); err != nil {
		return 0, err
	}
	return info.NextNonce, nil
}

// rpcCall posts one JSON-RPC 2.0 request and returns the raw result.
func rpcCall(url, method string, params any) (json.RawMessage, error) {
	body, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"method":  method,
		"params":  params,
		"id":      1,
	})
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var rpcResp struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, err
	}
	if rpcResp.Error != nil {
		return nil, fmt.Errorf("rpc error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}
	return rpcResp.Result, nil
}
