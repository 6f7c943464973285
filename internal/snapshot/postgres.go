package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/ledger-replay/internal/engine"
	"github.com/congo-pay/ledger-replay/internal/ledger"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS replay_snapshot_meta (
	id SMALLINT PRIMARY KEY CHECK (id = 1),
	run_id TEXT NOT NULL,
	line BIGINT NOT NULL,
	taken_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS replay_snapshot_accounts (
	client INTEGER PRIMARY KEY,
	available NUMERIC NOT NULL,
	held NUMERIC NOT NULL,
	total NUMERIC NOT NULL,
	locked BOOLEAN NOT NULL
);

CREATE TABLE IF NOT EXISTS replay_snapshot_records (
	tx BIGINT PRIMARY KEY,
	kind TEXT NOT NULL,
	client INTEGER NOT NULL,
	amount NUMERIC NOT NULL,
	state TEXT NOT NULL
);
`

// PostgresStore keeps the snapshot in PostgreSQL, replacing all rows in one
// transaction per save.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed snapshot store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the snapshot tables if they do not exist.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("migrate snapshot tables: %w", err)
	}
	return nil
}

func (p *PostgresStore) Save(ctx context.Context, snap Snapshot) error {
	tx, err := p.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if _, err := tx.Exec(ctx, `TRUNCATE replay_snapshot_meta, replay_snapshot_accounts, replay_snapshot_records`); err != nil {
		return fmt.Errorf("truncate snapshot tables: %w", err)
	}

	if _, err := tx.Exec(ctx, `INSERT INTO replay_snapshot_meta (id, run_id, line, taken_at) VALUES (1, $1, $2, $3)`,
		snap.RunID, int64(snap.Line), snap.TakenAt.UTC()); err != nil {
		return fmt.Errorf("insert snapshot meta: %w", err)
	}

	accountRows := make([][]any, 0, len(snap.Accounts))
	for _, a := range snap.Accounts {
		accountRows = append(accountRows, []any{int32(a.Client), numeric(a.Available), numeric(a.Held), numeric(a.Total), a.Locked})
	}
	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"replay_snapshot_accounts"},
		[]string{"client", "available", "held", "total", "locked"},
		pgx.CopyFromRows(accountRows),
	); err != nil {
		return fmt.Errorf("copy accounts: %w", err)
	}

	recordRows := make([][]any, 0, len(snap.Records))
	for _, r := range snap.Records {
		recordRows = append(recordRows, []any{int64(r.Tx), string(r.Kind), int32(r.Client), numeric(r.Amount), string(r.State)})
	}
	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"replay_snapshot_records"},
		[]string{"tx", "kind", "client", "amount", "state"},
		pgx.CopyFromRows(recordRows),
	); err != nil {
		return fmt.Errorf("copy records: %w", err)
	}

	return tx.Commit(ctx)
}

func (p *PostgresStore) Load(ctx context.Context) (Snapshot, bool, error) {
	var (
		snap    Snapshot
		line    int64
		takenAt time.Time
	)
	err := p.db.QueryRow(ctx, `SELECT run_id, line, taken_at FROM replay_snapshot_meta WHERE id = 1`).
		Scan(&snap.RunID, &line, &takenAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("query snapshot meta: %w", err)
	}
	snap.Line = uint64(line)
	snap.TakenAt = takenAt.UTC()

	rows, err := p.db.Query(ctx, `SELECT client, available::text, held::text, total::text, locked
		FROM replay_snapshot_accounts ORDER BY client`)
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("query accounts: %w", err)
	}
	snap.Accounts, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (ledger.Account, error) {
		var (
			client                 int32
			available, held, total string
			locked                 bool
		)
		if err := row.Scan(&client, &available, &held, &total, &locked); err != nil {
			return ledger.Account{}, err
		}
		return decodeAccount(int64(client), available, held, total, locked)
	})
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("collect accounts: %w", err)
	}

	rows, err = p.db.Query(ctx, `SELECT tx, kind, client, amount::text, state
		FROM replay_snapshot_records ORDER BY tx`)
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("query records: %w", err)
	}
	snap.Records, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (engine.Record, error) {
		var (
			tx                  int64
			client              int32
			kind, amount, state string
		)
		if err := row.Scan(&tx, &kind, &client, &amount, &state); err != nil {
			return engine.Record{}, err
		}
		return decodeRecord(tx, kind, int64(client), amount, state)
	})
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("collect records: %w", err)
	}

	return snap, true, nil
}

func (p *PostgresStore) Clear(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, `TRUNCATE replay_snapshot_meta, replay_snapshot_accounts, replay_snapshot_records`); err != nil {
		return fmt.Errorf("truncate snapshot tables: %w", err)
	}
	return nil
}

// numeric converts an amount for binary COPY, which cannot take text values.
func numeric(d decimal.Decimal) pgtype.Numeric {
	return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
}
