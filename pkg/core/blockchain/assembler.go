package blockchain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/trapp/kcoin/pkg/core/store"
	"github.com/trapp/kcoin/pkg/core/types"
)

// Assembler turns mempool candidates into blocks. One Assembler runs per
// node; Generate is also called directly by the regtest_generate RPC.
type Assembler struct {
	store     *store.Store
	blockSize int
	interval  time.Duration

	quit chan struct{}
	wg   sync.WaitGroup
}

// New creates an assembler producing blocks of at most blockSize transactions
// every interval.
func New(s *store.Store, blockSize int, interval time.Duration) *Assembler {
	return &Assembler{
		store:     s,
		blockSize: blockSize,
		interval:  interval,
		quit:      make(chan struct{}),
	}
}

// Start launches the periodic assembly worker.
func (a *Assembler) Start() {
	logrus.Infof("block assembler started, interval %s", a.interval)
	a.wg.Add(1)
	go a.loop()
}

// Stop stops the worker. An assembly in progress finishes first; the store
// transaction is the unit of atomicity.
func (a *Assembler) Stop() {
	close(a.quit)
	a.wg.Wait()
	logrus.Info("block assembler stopped")
}

func (a *Assembler) loop() {
	defer a.wg.Done()
	for {
		select {
		case <-a.quit:
			return
		case <-time.After(a.interval):
			if err := a.Generate(); err != nil {
				logrus.WithError(err).Error("block production failed")
			}
		}
	}
}

// Generate assembles one block from the current mempool candidates. The
// whole pass runs in a single store transaction: mined rows, balance
// updates, mempool deletes and the block row commit together or not at all.
// An empty mempool is a no-op.
func (a *Assembler) Generate() error {
	tx, err := a.store.Begin()
	if err != nil {
		return err
	}

	if err := generate(tx, a.blockSize); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func generate(tx *store.Tx, blockSize int) error {
	candidates, err := tx.BlockCandidates(blockSize)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		return nil
	}

	tip, err := tx.BlockHeight()
	if err != nil {
		return err
	}
	height := tip + 1
	logrus.Infof("assembling block %d from %d pending transactions", height, len(candidates))

	hashes := make([]string, len(candidates))
	for i, env := range candidates {
		if err := tx.TransactionInsert(height, uint32(i), env); err != nil {
			return err
		}
		if err := tx.MempoolRemove(env.Hash); err != nil {
			return err
		}
		hashes[i] = env.Hash
	}

	if err := tx.BalanceSanityCheck(); err != nil {
		return err
	}

	now := time.Now().Unix()
	hash, err := BlockHash(height, now, hashes)
	if err != nil {
		return err
	}
	block := &types.Block{Height: height, Hash: hash, Time: now}
	if err := tx.BlockAdd(block); err != nil {
		return err
	}
	logrus.Infof("block %d committed, hash %s", height, hash)
	return nil
}

// blockHeader is the trailing input of the block hash: canonical JSON with
// keys in lexicographic order, no whitespace.
type blockHeader struct {
	Height uint32 `json:"height"`
	Time   int64  `json:"time"`
}

// BlockHash folds SHA-256 over the transaction hashes in index order, then
// over the hashed header. Rebuilding a block from the same ordered
// transactions and the same (height, time) reproduces the same hash.
func BlockHash(height uint32, blockTime int64, txHashes []string) (string, error) {
	var acc []byte
	for _, h := range txHashes {
		raw, err := hex.DecodeString(h)
		if err != nil {
			return "", err
		}
		sum := sha256.Sum256(append(acc, raw...))
		acc = sum[:]
	}

	header, err := json.Marshal(blockHeader{Height: height, Time: blockTime})
	if err != nil {
		return "", err
	}
	headerSum := sha256.Sum256(header)
	final := sha256.Sum256(append(acc, headerSum[:]...))
	return hex.EncodeToString(final[:]), nil
}
