package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/trapp/kcoin/pkg/core/types"
)

// ErrNotFound is returned by lookups that match no row. Call-sites interpret
// it semantically; every other store error is a backend fault.
var ErrNotFound = errors.New("not found")

// schema is applied idempotently at every start.
var schema = []string{
	"CREATE TABLE IF NOT EXISTS block (height INTEGER, hash TEXT, time INTEGER)",
	"CREATE UNIQUE INDEX IF NOT EXISTS block_height ON block(height)",
	"CREATE UNIQUE INDEX IF NOT EXISTS block_hash ON block(hash)",
	"CREATE INDEX IF NOT EXISTS block_time ON block(time)",

	`CREATE TABLE IF NOT EXISTS tx (hash TEXT, signature TEXT, block INTEGER, "index" INTEGER, seen INTEGER, "from" TEXT, "to" TEXT, coin TEXT, amount BIGINT, nonce BIGINT, fee BIGINT, memo TEXT)`,
	"CREATE UNIQUE INDEX IF NOT EXISTS tx_hash ON tx(hash)",
	"CREATE INDEX IF NOT EXISTS tx_block ON tx(block)",
	`CREATE INDEX IF NOT EXISTS tx_index ON tx("index")`,
	`CREATE INDEX IF NOT EXISTS tx_from ON tx("from")`,
	`CREATE INDEX IF NOT EXISTS tx_to ON tx("to")`,
	"CREATE INDEX IF NOT EXISTS tx_coin ON tx(coin)",
	`CREATE UNIQUE INDEX IF NOT EXISTS tx_from_nonce ON tx("from", nonce)`,
	"CREATE INDEX IF NOT EXISTS tx_fee ON tx(fee)",

	`CREATE TABLE IF NOT EXISTS mempool (hash TEXT, signature TEXT, seen INTEGER, "from" TEXT, "to" TEXT, coin TEXT, amount BIGINT, nonce BIGINT, fee BIGINT, memo TEXT)`,
	"CREATE UNIQUE INDEX IF NOT EXISTS mempool_hash ON mempool(hash)",
	`CREATE INDEX IF NOT EXISTS mempool_from ON mempool("from")`,
	`CREATE INDEX IF NOT EXISTS mempool_to ON mempool("to")`,
	"CREATE INDEX IF NOT EXISTS mempool_coin ON mempool(coin)",
	"CREATE INDEX IF NOT EXISTS mempool_seen ON mempool(seen)",
	`CREATE UNIQUE INDEX IF NOT EXISTS mempool_from_nonce ON mempool("from", nonce)`,
	"CREATE INDEX IF NOT EXISTS mempool_fee ON mempool(fee)",

	"CREATE TABLE IF NOT EXISTS address_balance (address TEXT, coin TEXT, balance BIGINT)",
	"CREATE UNIQUE INDEX IF NOT EXISTS address_balance_address_coin ON address_balance(address, coin)",
}

// querier is satisfied by both *sql.DB and *sql.Tx so every query below can
// run inside or outside a store transaction.
type querier interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

type runner struct {
	q       querier
	genesis types.Address
	network types.Network
}

// Store is the persistent state of the node: blocks, mined transactions,
// the mempool and per-(address, coin) balances, all in one SQLite database
// so that a single transaction can span them.
type Store struct {
	runner
	db *sql.DB
}

// Tx is a store transaction. All multi-step operations during admission and
// block assembly run inside one Tx with rollback on any failure.
type Tx struct {
	runner
	tx *sql.Tx
}

// Open opens (creating if needed) the database under dir, applies the schema
// and credits the initial KCN supply to the genesis address on first start.
// Regtest uses a separate database file.
func Open(dir string, network types.Network, genesis types.Address, supply uint64) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("datadir not writeable: %w", err)
	}
	name := "db.sqlite3"
	if network == types.NetworkRegtest {
		name = "db-regtest.sqlite3"
	}
	dsn := filepath.Join(dir, name) + "?_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("cannot open db: %w", err)
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("cannot create db schema: %w", err)
		}
	}

	s := &Store{
		runner: runner{q: db, genesis: genesis, network: network},
		db:     db,
	}

	var count int
	if err := db.QueryRow("SELECT count(*) FROM address_balance WHERE coin = 'KCN'").Scan(&count); err != nil {
		db.Close()
		return nil, fmt.Errorf("genesis check: %w", err)
	}
	if count == 0 {
		_, err := db.Exec(
			"INSERT INTO address_balance (address, coin, balance) VALUES (?, ?, ?)",
			genesis.String(), types.CoinKCN, int64(supply*types.BaseUnitsPerKCN),
		)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("genesis credit: %w", err)
		}
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// GenesisAddress returns the configured owner of the initial supply and of
// all transaction fees.
func (s *Store) GenesisAddress() types.Address {
	return s.genesis
}

// Begin opens a store transaction.
func (s *Store) Begin() (*Tx, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("cannot start transaction: %w", err)
	}
	return &Tx{
		runner: runner{q: tx, genesis: s.genesis, network: s.network},
		tx:     tx,
	}, nil
}

// Commit commits the store transaction.
func (t *Tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("cannot commit transaction: %w", err)
	}
	return nil
}

// Rollback aborts the store transaction. Safe to call after Commit.
func (t *Tx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("cannot rollback transaction: %w", err)
	}
	return nil
}

// BlockHeight returns the height of the newest block, 0 when no blocks exist.
func (r *runner) BlockHeight() (uint32, error) {
	var height uint32
	err := r.q.QueryRow("SELECT height FROM block ORDER BY height DESC LIMIT 1").Scan(&height)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("block height: %w", err)
	}
	return height, nil
}

// BlockByHeight returns the block header at the given height.
func (r *runner) BlockByHeight(height uint32) (*types.Block, error) {
	var b types.Block
	err := r.q.QueryRow("SELECT height, hash, time FROM block WHERE height = ? LIMIT 1", height).
		Scan(&b.Height, &b.Hash, &b.Time)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("block by height: %w", err)
	}
	return &b, nil
}

// BlockAdd inserts a block header row.
func (r *runner) BlockAdd(b *types.Block) error {
	if _, err := r.q.Exec("INSERT INTO block (height, hash, time) VALUES (?, ?, ?)", b.Height, b.Hash, b.Time); err != nil {
		return fmt.Errorf("insert block: %w", err)
	}
	return nil
}

// MempoolExists reports whether an envelope with the given hash is pending.
func (r *runner) MempoolExists(hash string) (bool, error) {
	var count int
	if err := r.q.QueryRow("SELECT count(*) FROM mempool WHERE hash = ? LIMIT 1", hash).Scan(&count); err != nil {
		return false, fmt.Errorf("mempool exists: %w", err)
	}
	return count == 1, nil
}

// MempoolAdd inserts a pending envelope.
func (r *runner) MempoolAdd(env *types.Envelope) error {
	_, err := r.q.Exec(
		`INSERT INTO mempool (amount, coin, fee, "from", hash, nonce, memo, seen, signature, "to")
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		int64(env.Tx.Amount), env.Tx.Coin, int64(env.Tx.Fee), env.Tx.From.String(),
		env.Hash, int64(env.Tx.Nonce), env.Tx.Memo, env.Seen, env.Signature, env.Tx.To.String(),
	)
	if err != nil {
		return fmt.Errorf("mempool insert: %w", err)
	}
	return nil
}

// MempoolRemove deletes a pending envelope by hash.
func (r *runner) MempoolRemove(hash string) error {
	if _, err := r.q.Exec("DELETE FROM mempool WHERE hash = ?", hash); err != nil {
		return fmt.Errorf("mempool delete: %w", err)
	}
	return nil
}

// MempoolEvict deletes every pending envelope of one sender.
func (r *runner) MempoolEvict(address string) error {
	if _, err := r.q.Exec(`DELETE FROM mempool WHERE "from" = ?`, address); err != nil {
		return fmt.Errorf("mempool evict: %w", err)
	}
	return nil
}

// MempoolCount returns the number of pending envelopes.
func (r *runner) MempoolCount() (uint64, error) {
	var count int64
	if err := r.q.QueryRow("SELECT count(*) FROM mempool").Scan(&count); err != nil {
		return 0, fmt.Errorf("mempool count: %w", err)
	}
	return i64ToU64(count)
}

// SenderGroup is one sender's pending envelopes, aggregated.
type SenderGroup struct {
	TotalFee uint64
	Count    uint64
	Address  string
}

// MempoolLowestFeeSum groups the mempool by sender, excluding the given one,
// and returns the group with the smallest fee sum (ties broken by address).
// ErrNotFound means the mempool is wholly owned by the excluded sender.
func (r *runner) MempoolLowestFeeSum(exclude string) (*SenderGroup, error) {
	var g SenderGroup
	var fee, count int64
	err := r.q.QueryRow(
		`SELECT sum(fee) AS total_fee, count(*) AS total_count, "from"
		 FROM mempool
		 WHERE "from" <> ?
		 GROUP BY "from"
		 ORDER BY total_fee ASC, "from" ASC LIMIT 1`,
		exclude,
	).Scan(&fee, &count, &g.Address)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mempool lowest fee sum: %w", err)
	}
	if g.TotalFee, err = i64ToU64(fee); err != nil {
		return nil, err
	}
	if g.Count, err = i64ToU64(count); err != nil {
		return nil, err
	}
	return &g, nil
}

const envelopeColumns = `amount, coin, fee, "from", hash, memo, nonce, seen, signature, "to"`

// MempoolByNonce returns the pending envelope of one (sender, nonce) slot.
func (r *runner) MempoolByNonce(from string, nonce uint64) (*types.Envelope, error) {
	row := r.q.QueryRow(
		"SELECT "+envelopeColumns+` FROM mempool WHERE "from" = ? AND nonce = ? LIMIT 1`,
		from, int64(nonce),
	)
	return r.scanEnvelope(row)
}

// MempoolByHash returns the pending envelope with the given hash.
func (r *runner) MempoolByHash(hash string) (*types.Envelope, error) {
	row := r.q.QueryRow("SELECT "+envelopeColumns+" FROM mempool WHERE hash = ?", hash)
	return r.scanEnvelope(row)
}

// ChainTxByHash returns the mined transaction with the given hash.
func (r *runner) ChainTxByHash(hash string) (*types.MinedTx, error) {
	row := r.q.QueryRow("SELECT "+envelopeColumns+`, block, "index" FROM tx WHERE hash = ?`, hash)
	var m types.MinedTx
	env, err := r.scanEnvelope(row, &m.Block, &m.Index)
	if err != nil {
		return nil, err
	}
	m.Envelope = *env
	return &m, nil
}

// MinedNonceMax returns the highest mined nonce of a sender. ok is false when
// the sender has no mined transactions.
func (r *runner) MinedNonceMax(from string) (nonce uint64, ok bool, err error) {
	return r.nonceMax("tx", from)
}

// MempoolNonceMax returns the highest pending nonce of a sender. ok is false
// when the sender has no pending envelopes.
func (r *runner) MempoolNonceMax(from string) (nonce uint64, ok bool, err error) {
	return r.nonceMax("mempool", from)
}

func (r *runner) nonceMax(table, from string) (uint64, bool, error) {
	var v int64
	err := r.q.QueryRow(
		fmt.Sprintf(`SELECT nonce FROM %s WHERE "from" = ? ORDER BY nonce DESC LIMIT 1`, table),
		from,
	).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("nonce max: %w", err)
	}
	nonce, err := i64ToU64(v)
	return nonce, err == nil, err
}

// Balance returns the stored balance of (address, coin), zero when no row
// exists.
func (r *runner) Balance(address, coin string) (types.Amount, error) {
	v, ok, err := r.balanceRow(address, coin)
	if err != nil || !ok {
		return 0, err
	}
	return v, nil
}

func (r *runner) balanceRow(address, coin string) (types.Amount, bool, error) {
	var v int64
	err := r.q.QueryRow("SELECT balance FROM address_balance WHERE address = ? AND coin = ?", address, coin).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("balance: %w", err)
	}
	u, err := i64ToU64(v)
	return types.Amount(u), err == nil, err
}

// CoinBalance is one (coin, balance) row of an address.
type CoinBalance struct {
	Coin    string
	Balance types.Amount
}

// Balances returns all balance rows of an address.
func (r *runner) Balances(address string) ([]CoinBalance, error) {
	rows, err := r.q.Query("SELECT coin, balance FROM address_balance WHERE address = ?", address)
	if err != nil {
		return nil, fmt.Errorf("balances: %w", err)
	}
	defer rows.Close()

	var out []CoinBalance
	for rows.Next() {
		var b CoinBalance
		var v int64
		if err := rows.Scan(&b.Coin, &v); err != nil {
			return nil, fmt.Errorf("balances: %w", err)
		}
		u, err := i64ToU64(v)
		if err != nil {
			return nil, err
		}
		b.Balance = types.Amount(u)
		out = append(out, b)
	}
	return out, rows.Err()
}

// Reserved returns the funds an address has committed to pending envelopes in
// one coin: the sum of amount+fee over its mempool rows in that coin.
func (r *runner) Reserved(address, coin string) (types.Amount, error) {
	var v int64
	err := r.q.QueryRow(
		`SELECT SUM(amount) + SUM(fee) AS reserved FROM mempool WHERE "from" = ? AND coin = ? GROUP BY "from", coin LIMIT 1`,
		address, coin,
	).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reserved: %w", err)
	}
	u, err := i64ToU64(v)
	return types.Amount(u), err
}

// ReservedBalances returns the reserved sums of an address per coin.
func (r *runner) ReservedBalances(address string) ([]CoinBalance, error) {
	rows, err := r.q.Query(
		`SELECT coin, SUM(amount) + SUM(fee) AS reserved FROM mempool WHERE "from" = ? GROUP BY coin`,
		address,
	)
	if err != nil {
		return nil, fmt.Errorf("reserved balances: %w", err)
	}
	defer rows.Close()

	var out []CoinBalance
	for rows.Next() {
		var b CoinBalance
		var v int64
		if err := rows.Scan(&b.Coin, &v); err != nil {
			return nil, fmt.Errorf("reserved balances: %w", err)
		}
		u, err := i64ToU64(v)
		if err != nil {
			return nil, err
		}
		b.Balance = types.Amount(u)
		out = append(out, b)
	}
	return out, rows.Err()
}

// CoinExists reports whether a coin exists in chain or in the mempool.
func (r *runner) CoinExists(coin string) (bool, error) {
	inChain, err := r.CoinExistsInChain(coin)
	if err != nil || inChain {
		return inChain, err
	}
	return r.CoinExistsInMempool(coin)
}

// CoinExistsInChain reports whether any balance row for the coin exists.
func (r *runner) CoinExistsInChain(coin string) (bool, error) {
	var v int64
	err := r.q.QueryRow("SELECT balance FROM address_balance WHERE coin = ? LIMIT 1", coin).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("coin exists in chain: %w", err)
	}
	return true, nil
}

// CoinExistsInMempool reports whether any pending envelope moves the coin.
func (r *runner) CoinExistsInMempool(coin string) (bool, error) {
	var v int64
	err := r.q.QueryRow("SELECT amount FROM mempool WHERE coin = ? LIMIT 1", coin).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("coin exists in mempool: %w", err)
	}
	return true, nil
}

// BlockCandidates returns up to limit envelopes ordered for block inclusion:
// ascending nonce distance from the sender's highest mined nonce first, so
// each sender's lowest still-valid nonce comes first, then descending fee.
func (r *runner) BlockCandidates(limit int) ([]*types.Envelope, error) {
	rows, err := r.q.Query(
		"SELECT "+envelopeColumns+` FROM mempool m
		 ORDER BY (nonce - IFNULL((SELECT nonce FROM tx t WHERE m."from" = t."from" ORDER BY nonce DESC LIMIT 1), 0)) ASC, fee DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("block candidates: %w", err)
	}
	return r.collectEnvelopes(rows)
}

// TxFilter narrows transaction listings. Nil fields are ignored.
type TxFilter struct {
	Height      *uint32
	AfterHeight *uint32
	From        *types.Address
	To          *types.Address
	AfterSeen   *int64
	Limit       uint32
}

// ChainTransactions lists mined transactions matching the filter, in block
// index order.
func (r *runner) ChainTransactions(f TxFilter) ([]*types.MinedTx, error) {
	var conds []string
	var args []any
	if f.Height != nil {
		conds = append(conds, "block = ?")
		args = append(args, *f.Height)
	}
	if f.From != nil {
		conds = append(conds, `"from" = ?`)
		args = append(args, f.From.String())
	}
	if f.To != nil {
		conds = append(conds, `"to" = ?`)
		args = append(args, f.To.String())
	}
	if f.AfterHeight != nil {
		conds = append(conds, "block > ?")
		args = append(args, *f.AfterHeight)
	}
	if len(conds) == 0 {
		conds = append(conds, "1")
	}
	args = append(args, f.Limit)

	query := "SELECT " + envelopeColumns + `, block, "index" FROM tx WHERE ` +
		strings.Join(conds, " AND ") + ` ORDER BY "index" ASC LIMIT ?`
	rows, err := r.q.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("chain transactions: %w", err)
	}
	defer rows.Close()

	var out []*types.MinedTx
	for rows.Next() {
		var m types.MinedTx
		env, err := r.scanEnvelope(rows, &m.Block, &m.Index)
		if err != nil {
			return nil, err
		}
		m.Envelope = *env
		out = append(out, &m)
	}
	return out, rows.Err()
}

// MempoolTransactions lists pending envelopes matching the filter, oldest
// first.
func (r *runner) MempoolTransactions(f TxFilter) ([]*types.Envelope, error) {
	var conds []string
	var args []any
	if f.From != nil {
		conds = append(conds, `"from" = ?`)
		args = append(args, f.From.String())
	}
	if f.To != nil {
		conds = append(conds, `"to" = ?`)
		args = append(args, f.To.String())
	}
	if f.AfterSeen != nil {
		conds = append(conds, "seen > ?")
		args = append(args, *f.AfterSeen)
	}
	if len(conds) == 0 {
		conds = append(conds, "1")
	}
	args = append(args, f.Limit)

	query := "SELECT " + envelopeColumns + " FROM mempool WHERE " +
		strings.Join(conds, " AND ") + " ORDER BY seen ASC LIMIT ?"
	rows, err := r.q.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("mempool transactions: %w", err)
	}
	return r.collectEnvelopes(rows)
}

// MempoolStats aggregates the fee distribution of the mempool.
type MempoolStats struct {
	Count  uint64
	MinFee uint64
	MaxFee uint64
	AvgFee float64
}

// Stats returns the mempool fee statistics, zeroes when empty.
func (r *runner) Stats() (*MempoolStats, error) {
	var s MempoolStats
	var count, min, max int64
	err := r.q.QueryRow("SELECT COUNT(*), IFNULL(MIN(fee), 0), IFNULL(MAX(fee), 0), IFNULL(AVG(fee), 0) FROM mempool").
		Scan(&count, &min, &max, &s.AvgFee)
	if err != nil {
		return nil, fmt.Errorf("mempool stats: %w", err)
	}
	if s.Count, err = i64ToU64(count); err != nil {
		return nil, err
	}
	if s.MinFee, err = i64ToU64(min); err != nil {
		return nil, err
	}
	if s.MaxFee, err = i64ToU64(max); err != nil {
		return nil, err
	}
	return &s, nil
}

// TransactionInsert commits one envelope into a block as one step: it inserts
// the mined row, deducts the fee from the sender's KCN balance, deducts the
// amount from the sender's coin balance (a missing sender row is only an
// error when the coin already exists in chain — otherwise this transaction
// creates the coin), credits the recipient, and credits the fee to the
// genesis address.
func (r *runner) TransactionInsert(block, index uint32, env *types.Envelope) error {
	res, err := r.q.Exec(
		`INSERT INTO tx (hash, signature, block, "index", seen, "from", "to", coin, amount, nonce, fee, memo)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		env.Hash, env.Signature, block, index, env.Seen,
		env.Tx.From.String(), env.Tx.To.String(), env.Tx.Coin,
		int64(env.Tx.Amount), int64(env.Tx.Nonce), int64(env.Tx.Fee), env.Tx.Memo,
	)
	if err != nil {
		return fmt.Errorf("insert mined tx: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil || n == 0 {
		return errors.New("unable to insert mined tx")
	}

	res, err = r.q.Exec(
		"UPDATE address_balance SET balance = balance - ? WHERE address = ? AND coin = 'KCN'",
		int64(env.Tx.Fee), env.Tx.From.String(),
	)
	if err != nil {
		return fmt.Errorf("deduct fee: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil || n == 0 {
		return errors.New("unable to deduct fee from sender balance")
	}

	res, err = r.q.Exec(
		"UPDATE address_balance SET balance = balance - ? WHERE address = ? AND coin = ?",
		int64(env.Tx.Amount), env.Tx.From.String(), env.Tx.Coin,
	)
	if err != nil {
		return fmt.Errorf("deduct amount: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		inChain, err := r.CoinExistsInChain(env.Tx.Coin)
		if err != nil {
			return err
		}
		if inChain {
			return errors.New("sender has not enough balance")
		}
	}

	_, haveRow, err := r.balanceRow(env.Tx.To.String(), env.Tx.Coin)
	if err != nil {
		return err
	}
	if haveRow {
		res, err = r.q.Exec(
			"UPDATE address_balance SET balance = balance + ? WHERE address = ? AND coin = ?",
			int64(env.Tx.Amount), env.Tx.To.String(), env.Tx.Coin,
		)
	} else {
		res, err = r.q.Exec(
			"INSERT INTO address_balance (address, coin, balance) VALUES (?, ?, ?)",
			env.Tx.To.String(), env.Tx.Coin, int64(env.Tx.Amount),
		)
	}
	if err != nil {
		return fmt.Errorf("credit recipient: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil || n == 0 {
		return errors.New("unable to credit recipient balance")
	}

	res, err = r.q.Exec(
		"UPDATE address_balance SET balance = balance + ? WHERE address = ? AND coin = 'KCN'",
		int64(env.Tx.Fee), r.genesis.String(),
	)
	if err != nil {
		return fmt.Errorf("credit fee: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil || n == 0 {
		return errors.New("unable to credit genesis balance")
	}
	return nil
}

// BalanceSanityCheck fails when any balance row is negative. Run before
// committing a block.
func (r *runner) BalanceSanityCheck() error {
	var count int
	if err := r.q.QueryRow("SELECT count(*) FROM address_balance WHERE balance < 0 LIMIT 1").Scan(&count); err != nil {
		return fmt.Errorf("balance sanity check: %w", err)
	}
	if count > 0 {
		return errors.New("negative balance after block")
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanEnvelope reads the envelope column set, plus any extra destinations
// appended to the select list.
func (r *runner) scanEnvelope(row rowScanner, extra ...any) (*types.Envelope, error) {
	var env types.Envelope
	var amount, fee, nonce int64
	var from, to string
	dest := []any{&amount, &env.Tx.Coin, &fee, &from, &env.Hash, &env.Tx.Memo, &nonce, &env.Seen, &env.Signature, &to}
	dest = append(dest, extra...)
	err := row.Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan envelope: %w", err)
	}
	a, err := i64ToU64(amount)
	if err != nil {
		return nil, err
	}
	f, err := i64ToU64(fee)
	if err != nil {
		return nil, err
	}
	n, err := i64ToU64(nonce)
	if err != nil {
		return nil, err
	}
	env.Tx.Amount = types.Amount(a)
	env.Tx.Fee = types.Amount(f)
	env.Tx.Nonce = n
	if env.Tx.From, err = types.ParseAddress(from, r.network); err != nil {
		return nil, fmt.Errorf("stored sender address: %w", err)
	}
	if env.Tx.To, err = types.ParseAddress(to, r.network); err != nil {
		return nil, fmt.Errorf("stored recipient address: %w", err)
	}
	return &env, nil
}

func (r *runner) collectEnvelopes(rows *sql.Rows) ([]*types.Envelope, error) {
	defer rows.Close()
	var out []*types.Envelope
	for rows.Next() {
		env, err := r.scanEnvelope(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, env)
	}
	return out, rows.Err()
}

func i64ToU64(v int64) (uint64, error) {
	if v < 0 {
		return 0, errors.New("invalid number found")
	}
	return uint64(v), nil
}
