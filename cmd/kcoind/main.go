package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/trapp/kcoin/pkg/config"
	"github.com/trapp/kcoin/pkg/core/blockchain"
	"github.com/trapp/kcoin/pkg/core/mempool"
	"github.com/trapp/kcoin/pkg/core/store"
	"github.com/trapp/kcoin/pkg/core/types"
	"github.com/trapp/kcoin/pkg/rpc"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		rpcHost     string
		rpcPort     int
		datadir     string
		kcnAddress  string
		kcnSupply   uint64
		blockTime   uint64
		mempoolSize uint64
		blockSize   int
		regtest     bool
	)

	cmd := &cobra.Command{
		Use:           "kcoind",
		Short:         "kcoin node",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			initLogging()

			cfg := &config.Config{
				RPCHost:     rpcHost,
				RPCPort:     rpcPort,
				DataDir:     datadir,
				Supply:      kcnSupply,
				BlockTime:   time.Duration(blockTime) * time.Second,
				MempoolSize: mempoolSize,
				BlockSize:   blockSize,
				Regtest:     regtest,
			}
			if cfg.DataDir == "" {
				home, err := os.UserHomeDir()
				if err != nil {
					return fmt.Errorf("unable to determine home directory: %w", err)
				}
				cfg.DataDir = filepath.Join(home, config.DefaultDataDirName)
			}

			genesis, err := types.ParseAddress(kcnAddress, cfg.Network())
			if err != nil {
				return fmt.Errorf("invalid argument kcn-address: %w", err)
			}
			cfg.GenesisAddress = genesis

			return runNode(cfg)
		},
	}

	cmd.Flags().StringVar(&rpcHost, "rpc-host", config.DefaultRPCHost, "hostname or IP address the rpc server will listen on")
	cmd.Flags().IntVar(&rpcPort, "rpc-port", config.DefaultRPCPort, "port the rpc server will listen on")
	cmd.Flags().StringVar(&datadir, "datadir", "", "directory kcoind will use to store its data (default ~/.kcoin)")
	cmd.Flags().StringVar(&kcnAddress, "kcn-address", "", "owner of the initial KCN supply")
	cmd.Flags().Uint64Var(&kcnSupply, "kcn-supply", config.DefaultSupply, "how many KCNs get created initially")
	cmd.Flags().Uint64Var(&blockTime, "block-time", uint64(config.DefaultBlockTime/time.Second), "after how many seconds a new block should get crafted")
	cmd.Flags().Uint64Var(&mempoolSize, "mempool-size", config.DefaultMempoolSize, "how many transactions the mempool can fit")
	cmd.Flags().IntVar(&blockSize, "block-size", config.DefaultBlockSize, "how many transactions each block can fit")
	cmd.Flags().BoolVar(&regtest, "regtest", false, "regtest mode: disables automatic block generation, blocks are produced on demand via the regtest_generate rpc call")
	cmd.MarkFlagRequired("kcn-address")

	cmd.AddCommand(walletCmd(), sendCmd())
	return cmd
}

func initLogging() {
	logrus.SetOutput(os.Stdout)
	if lvl := os.Getenv("KCOIN_LOG"); lvl != "" {
		parsed, err := logrus.ParseLevel(lvl)
		if err == nil {
			logrus.SetLevel(parsed)
			return
		}
	}
	logrus.SetLevel(logrus.InfoLevel)
}

func runNode(cfg *config.Config) error {
	logrus.Infof("starting kcoind (%s)", cfg.Network())

	st, err := store.Open(cfg.DataDir, cfg.Network(), cfg.GenesisAddress, cfg.Supply)
	if err != nil {
		return err
	}
	defer st.Close()

	pool := mempool.New(st, cfg.MempoolSize)
	assembler := blockchain.New(st, cfg.BlockSize, cfg.BlockTime)

	if cfg.Regtest {
		logrus.Info("regtest mode enabled, automated block production has been disabled")
	} else {
		assembler.Start()
		defer assembler.Stop()
	}

	server := rpc.NewServer(st, pool, assembler, cfg.Network(), cfg.BlockSize, cfg.Regtest)
	addr := fmt.Sprintf("%s:%d", cfg.RPCHost, cfg.RPCPort)
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(addr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		logrus.Info("shutting down...")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}
