package store

import (
	"context"
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/atmx/hyperdrive-engine/internal/fixedpoint"
	"github.com/atmx/hyperdrive-engine/internal/model"
	"github.com/atmx/hyperdrive-engine/internal/wallet"
)

// Schema creates the tables PostgresStore uses. Scalar amounts are NUMERIC
// for exact decimal precision; the reserve state and wallets are JSONB
// documents of decimal strings.
const Schema = `
CREATE TABLE IF NOT EXISTS pools (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL UNIQUE,
	pricing_model TEXT NOT NULL,
	fee_percent   NUMERIC NOT NULL,
	term_days     NUMERIC NOT NULL,
	time_stretch  NUMERIC NOT NULL,
	clock         BIGINT NOT NULL,
	state         JSONB NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS ledger_entries (
	id         TEXT PRIMARY KEY,
	sequence   BIGINT NOT NULL,
	pool_id    TEXT NOT NULL REFERENCES pools(id),
	wallet     TEXT NOT NULL,
	action     TEXT NOT NULL,
	amount     NUMERIC NOT NULL,
	mint_time  BIGINT NOT NULL,
	d_base     NUMERIC NOT NULL,
	d_bonds    NUMERIC NOT NULL,
	fee        NUMERIC NOT NULL,
	spot_price NUMERIC NOT NULL,
	timestamp  TIMESTAMPTZ NOT NULL,
	UNIQUE (pool_id, sequence)
);
CREATE INDEX IF NOT EXISTS ledger_entries_wallet_idx ON ledger_entries (wallet);

CREATE TABLE IF NOT EXISTS wallets (
	pool_id TEXT NOT NULL REFERENCES pools(id),
	address TEXT NOT NULL,
	data    JSONB NOT NULL,
	PRIMARY KEY (pool_id, address)
);
`

const uniqueViolation = "23505"

// PostgresStore implements Store using PostgreSQL as the source of truth.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate applies Schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, Schema)
	return errors.Wrap(err, "migrate")
}

func (s *PostgresStore) CreatePool(ctx context.Context, p *model.Pool) error {
	state, err := json.Marshal(p.State)
	if err != nil {
		return errors.Wrap(err, "encode pool state")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO pools (id, name, pricing_model, fee_percent, term_days, time_stretch, clock, state, created_at, updated_at)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC, $6::NUMERIC, $7, $8, $9, $10)`,
		p.ID, p.Name, p.PricingModel,
		p.FeePercent.String(), p.PositionDuration.Days.String(), p.PositionDuration.TimeStretch.String(),
		p.Clock, state, p.CreatedAt, p.UpdatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return errors.Wrapf(ErrConflict, "pool %s", p.ID)
	}
	return errors.Wrapf(err, "create pool %s", p.ID)
}

const poolColumns = `id, name, pricing_model, fee_percent::TEXT, term_days::TEXT, time_stretch::TEXT, clock, state, created_at, updated_at`

func (s *PostgresStore) GetPool(ctx context.Context, id string) (*model.Pool, error) {
	p, err := scanPool(s.pool.QueryRow(ctx, `SELECT `+poolColumns+` FROM pools WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrapf(ErrNotFound, "pool %s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get pool %s", id)
	}
	return p, nil
}

func (s *PostgresStore) ListPools(ctx context.Context) ([]model.Pool, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+poolColumns+` FROM pools ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, errors.Wrap(err, "list pools")
	}
	defer rows.Close()

	var pools []model.Pool
	for rows.Next() {
		p, err := scanPool(rows)
		if err != nil {
			return nil, err
		}
		pools = append(pools, *p)
	}
	return pools, rows.Err()
}

func (s *PostgresStore) UpdatePool(ctx context.Context, p *model.Pool) error {
	return updatePool(ctx, s.pool, p)
}

func (s *PostgresStore) InsertLedgerEntry(ctx context.Context, e *model.LedgerEntry) error {
	return insertLedgerEntry(ctx, s.pool, e)
}

// CommitTrade writes the pool, wallet and ledger entry in one transaction.
func (s *PostgresStore) CommitTrade(ctx context.Context, c TradeCommit) error {
	if err := c.validate(); err != nil {
		return err
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin trade commit")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := updatePool(ctx, tx, c.Pool); err != nil {
		return err
	}
	if err := putWallet(ctx, tx, c.Pool.ID, c.Wallet); err != nil {
		return err
	}
	if err := insertLedgerEntry(ctx, tx, c.Entry); err != nil {
		return err
	}
	return errors.Wrapf(tx.Commit(ctx), "commit trade %s", c.Entry.ID)
}

// execer is satisfied by both *pgxpool.Pool and pgx.Tx.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func updatePool(ctx context.Context, q execer, p *model.Pool) error {
	state, err := json.Marshal(p.State)
	if err != nil {
		return errors.Wrap(err, "encode pool state")
	}
	tag, err := q.Exec(ctx,
		`UPDATE pools SET clock = $2, state = $3, updated_at = $4 WHERE id = $1`,
		p.ID, p.Clock, state, p.UpdatedAt,
	)
	if err != nil {
		return errors.Wrapf(err, "update pool %s", p.ID)
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(ErrNotFound, "pool %s", p.ID)
	}
	return nil
}

func insertLedgerEntry(ctx context.Context, q execer, e *model.LedgerEntry) error {
	_, err := q.Exec(ctx,
		`INSERT INTO ledger_entries (id, sequence, pool_id, wallet, action, amount, mint_time, d_base, d_bonds, fee, spot_price, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7, $8::NUMERIC, $9::NUMERIC, $10::NUMERIC, $11::NUMERIC, $12)`,
		e.ID, int64(e.Sequence), e.PoolID, e.Wallet, string(e.Action),
		e.Amount.String(), e.MintTime,
		e.DBase.String(), e.DBonds.String(), e.Fee.String(), e.SpotPrice.String(),
		e.Timestamp,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return errors.Wrapf(ErrConflict, "ledger entry %s", e.ID)
	}
	return errors.Wrapf(err, "insert ledger entry %s", e.ID)
}

const ledgerColumns = `id, sequence, pool_id, wallet, action, amount::TEXT, mint_time, d_base::TEXT, d_bonds::TEXT, fee::TEXT, spot_price::TEXT, timestamp`

func (s *PostgresStore) GetLedgerEntriesByPool(ctx context.Context, poolID string) ([]model.LedgerEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+ledgerColumns+` FROM ledger_entries WHERE pool_id = $1 ORDER BY sequence`, poolID)
	if err != nil {
		return nil, errors.Wrapf(err, "ledger for pool %s", poolID)
	}
	defer rows.Close()

	return scanLedgerEntries(rows)
}

func (s *PostgresStore) GetLedgerEntriesByWallet(ctx context.Context, addr common.Address) ([]model.LedgerEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+ledgerColumns+` FROM ledger_entries WHERE wallet = $1 ORDER BY timestamp, sequence`, addr.Hex())
	if err != nil {
		return nil, errors.Wrapf(err, "ledger for wallet %s", addr.Hex())
	}
	defer rows.Close()

	return scanLedgerEntries(rows)
}

func (s *PostgresStore) GetWallet(ctx context.Context, poolID string, addr common.Address) (*wallet.Wallet, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM wallets WHERE pool_id = $1 AND address = $2`, poolID, addr.Hex()).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrapf(ErrNotFound, "wallet %s in pool %s", addr.Hex(), poolID)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get wallet %s", addr.Hex())
	}
	var w wallet.Wallet
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, errors.Wrapf(err, "decode wallet %s", addr.Hex())
	}
	return &w, nil
}

func (s *PostgresStore) PutWallet(ctx context.Context, poolID string, w *wallet.Wallet) error {
	return putWallet(ctx, s.pool, poolID, w)
}

func putWallet(ctx context.Context, q execer, poolID string, w *wallet.Wallet) error {
	data, err := json.Marshal(w)
	if err != nil {
		return errors.Wrap(err, "encode wallet")
	}
	_, err = q.Exec(ctx,
		`INSERT INTO wallets (pool_id, address, data) VALUES ($1, $2, $3)
		 ON CONFLICT (pool_id, address) DO UPDATE SET data = EXCLUDED.data`,
		poolID, w.Address.Hex(), data,
	)
	return errors.Wrapf(err, "put wallet %s", w.Address.Hex())
}

// --- Row scanning ---

func scanPool(row pgx.Row) (*model.Pool, error) {
	var (
		p                  model.Pool
		fee, days, stretch string
		state              []byte
	)
	if err := row.Scan(&p.ID, &p.Name, &p.PricingModel, &fee, &days, &stretch, &p.Clock, &state, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	var err error
	if p.FeePercent, err = fixedpoint.Parse(fee); err != nil {
		return nil, errors.Wrapf(err, "pool %s fee_percent", p.ID)
	}
	if p.PositionDuration.Days, err = fixedpoint.Parse(days); err != nil {
		return nil, errors.Wrapf(err, "pool %s term_days", p.ID)
	}
	if p.PositionDuration.TimeStretch, err = fixedpoint.Parse(stretch); err != nil {
		return nil, errors.Wrapf(err, "pool %s time_stretch", p.ID)
	}
	if err := json.Unmarshal(state, &p.State); err != nil {
		return nil, errors.Wrapf(err, "pool %s state", p.ID)
	}
	return &p, nil
}

func scanLedgerEntries(rows pgx.Rows) ([]model.LedgerEntry, error) {
	var entries []model.LedgerEntry
	for rows.Next() {
		var (
			e                                model.LedgerEntry
			seq                              int64
			action                           string
			amount, dBase, dBonds, fee, spot string
		)
		if err := rows.Scan(&e.ID, &seq, &e.PoolID, &e.Wallet, &action,
			&amount, &e.MintTime, &dBase, &dBonds, &fee, &spot, &e.Timestamp); err != nil {
			return nil, err
		}
		e.Sequence = uint64(seq)
		e.Action = model.ActionType(action)
		for _, f := range []struct {
			dst *fixedpoint.FixedPoint
			src string
		}{{&e.Amount, amount}, {&e.DBase, dBase}, {&e.DBonds, dBonds}, {&e.Fee, fee}, {&e.SpotPrice, spot}} {
			v, err := fixedpoint.Parse(f.src)
			if err != nil {
				return nil, errors.Wrapf(err, "ledger entry %s", e.ID)
			}
			*f.dst = v
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
