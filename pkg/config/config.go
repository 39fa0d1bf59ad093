package config

import (
	"time"

	"github.com/trapp/kcoin/pkg/core/types"
)

// Defaults for the CLI surface.
const (
	DefaultRPCHost     = "127.0.0.1"
	DefaultRPCPort     = 3030
	DefaultSupply      = 100_000_000
	DefaultBlockTime   = 60 * time.Second
	DefaultMempoolSize = 5000
	DefaultBlockSize   = 100
	DefaultDataDirName = ".kcoin"
)

// Config holds the node-wide parameters.
type Config struct {
	RPCHost string
	RPCPort int
	DataDir string

	// GenesisAddress owns the initial KCN supply and receives all fees.
	GenesisAddress types.Address
	// Supply is the initial KCN supply in whole coins; the store credits
	// Supply * 10^8 base units at first start.
	Supply uint64

	BlockTime   time.Duration
	MempoolSize uint64
	BlockSize   int

	Regtest bool
}

// Network returns the address network implied by the regtest flag.
func (c *Config) Network() types.Network {
	if c.Regtest {
		return types.NetworkRegtest
	}
	return types.NetworkMain
}
