package snapshot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/ledger-replay/internal/engine"
	"github.com/congo-pay/ledger-replay/internal/ledger"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS snapshot_meta (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	run_id TEXT NOT NULL,
	line INTEGER NOT NULL,
	taken_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS snapshot_accounts (
	client INTEGER PRIMARY KEY,
	available TEXT NOT NULL,
	held TEXT NOT NULL,
	total TEXT NOT NULL,
	locked BOOLEAN NOT NULL
);

CREATE TABLE IF NOT EXISTS snapshot_records (
	tx INTEGER PRIMARY KEY,
	kind TEXT NOT NULL,
	client INTEGER NOT NULL,
	amount TEXT NOT NULL,
	state TEXT NOT NULL
);
`

// SQLiteStore keeps the snapshot in three tables of a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps an open database. Call Migrate before first use.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Migrate creates the snapshot tables if they do not exist.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("migrate snapshot tables: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Save(ctx context.Context, snap Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // nolint:errcheck

	if err := clearTables(ctx, tx); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO snapshot_meta (id, run_id, line, taken_at) VALUES (1, ?, ?, ?)`,
		snap.RunID, int64(snap.Line), snap.TakenAt.UTC())
	if err != nil {
		return fmt.Errorf("insert snapshot meta: %w", err)
	}

	accountStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO snapshot_accounts (client, available, held, total, locked) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare account insert: %w", err)
	}
	defer accountStmt.Close()
	for _, a := range snap.Accounts {
		if _, err := accountStmt.ExecContext(ctx, int64(a.Client), a.Available.String(), a.Held.String(), a.Total.String(), a.Locked); err != nil {
			return fmt.Errorf("insert account %d: %w", a.Client, err)
		}
	}

	recordStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO snapshot_records (tx, kind, client, amount, state) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare record insert: %w", err)
	}
	defer recordStmt.Close()
	for _, r := range snap.Records {
		if _, err := recordStmt.ExecContext(ctx, int64(r.Tx), string(r.Kind), int64(r.Client), r.Amount.String(), string(r.State)); err != nil {
			return fmt.Errorf("insert record %d: %w", r.Tx, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context) (Snapshot, bool, error) {
	var (
		snap    Snapshot
		line    int64
		takenAt time.Time
	)
	err := s.db.QueryRowContext(ctx, `SELECT run_id, line, taken_at FROM snapshot_meta WHERE id = 1`).
		Scan(&snap.RunID, &line, &takenAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("query snapshot meta: %w", err)
	}
	snap.Line = uint64(line)
	snap.TakenAt = takenAt.UTC()

	if snap.Accounts, err = s.loadAccounts(ctx); err != nil {
		return Snapshot{}, false, err
	}
	if snap.Records, err = s.loadRecords(ctx); err != nil {
		return Snapshot{}, false, err
	}
	return snap, true, nil
}

func (s *SQLiteStore) loadAccounts(ctx context.Context) ([]ledger.Account, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT client, available, held, total, locked FROM snapshot_accounts ORDER BY client`)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []ledger.Account
	for rows.Next() {
		var (
			client                 int64
			available, held, total string
			locked                 bool
		)
		if err := rows.Scan(&client, &available, &held, &total, &locked); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		acct, err := decodeAccount(client, available, held, total, locked)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, acct)
	}
	return accounts, rows.Err()
}

func (s *SQLiteStore) loadRecords(ctx context.Context) ([]engine.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT tx, kind, client, amount, state FROM snapshot_records ORDER BY tx`)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var records []engine.Record
	for rows.Next() {
		var (
			tx, client          int64
			kind, amount, state string
		)
		if err := rows.Scan(&tx, &kind, &client, &amount, &state); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		rec, err := decodeRecord(tx, kind, client, amount, state)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // nolint:errcheck

	if err := clearTables(ctx, tx); err != nil {
		return err
	}
	return tx.Commit()
}

func clearTables(ctx context.Context, tx *sql.Tx) error {
	for _, table := range []string{"snapshot_meta", "snapshot_accounts", "snapshot_records"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return nil
}

func decodeAccount(client int64, available, held, total string, locked bool) (ledger.Account, error) {
	acct := ledger.Account{Client: ledger.ClientID(client), Locked: locked}
	var err error
	if acct.Available, err = decimal.NewFromString(available); err != nil {
		return ledger.Account{}, fmt.Errorf("account %d available: %w", client, err)
	}
	if acct.Held, err = decimal.NewFromString(held); err != nil {
		return ledger.Account{}, fmt.Errorf("account %d held: %w", client, err)
	}
	if acct.Total, err = decimal.NewFromString(total); err != nil {
		return ledger.Account{}, fmt.Errorf("account %d total: %w", client, err)
	}
	return acct, nil
}

func decodeRecord(tx int64, kind string, client int64, amount, state string) (engine.Record, error) {
	k, err := engine.ParseKind(kind)
	if err != nil {
		return engine.Record{}, fmt.Errorf("record %d: %w", tx, err)
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return engine.Record{}, fmt.Errorf("record %d amount: %w", tx, err)
	}
	return engine.Record{
		Kind:   k,
		Client: ledger.ClientID(client),
		Tx:     engine.TxID(tx),
		Amount: d,
		State:  engine.State(state),
	}, nil
}
