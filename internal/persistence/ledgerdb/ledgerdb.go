// Package ledgerdb is a durable token-ownership ledger backed by SQLite.
package ledgerdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"thecore.gg/internal/ledger"
	"thecore.gg/internal/sim/game/model"
)

// DB applies every mint and transfer in its own transaction, so a returned error means
// nothing was written.
type DB struct {
	db  *sql.DB
	now func() time.Time
}

func Open(path string) (*DB, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &DB{db: db, now: time.Now}, nil
}

func initPragmas(db *sql.DB) error {
	// FULL: this is the system of record for ownership, not a secondary index.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=FULL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tokens (
			generation INTEGER PRIMARY KEY,
			owner TEXT NOT NULL,
			minted_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_tokens_owner ON tokens(owner);`,
		`CREATE TABLE IF NOT EXISTS transfers (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			generation INTEGER NOT NULL REFERENCES tokens(generation),
			from_owner TEXT NOT NULL,
			to_owner TEXT NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_transfers_generation ON transfers(generation, id);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (d *DB) Close() error { return d.db.Close() }

func (d *DB) stamp() string { return d.now().UTC().Format(time.RFC3339Nano) }

func (d *DB) Mint(owner model.ParticipantID, gen model.GenerationID) error {
	if owner.IsZero() {
		return ledger.ErrZeroReceiver
	}
	ctx := context.Background()
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM tokens WHERE generation = ?`, int64(gen)).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("%w: generation %d", ledger.ErrTokenExists, gen)
	}
	stamp := d.stamp()
	if _, err := tx.ExecContext(ctx, `INSERT INTO tokens(generation,owner,minted_at) VALUES(?,?,?)`, int64(gen), string(owner), stamp); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO transfers(generation,from_owner,to_owner,recorded_at) VALUES(?,?,?,?)`, int64(gen), "", string(owner), stamp); err != nil {
		return err
	}
	return tx.Commit()
}

func (d *DB) TransferOwnership(from, to model.ParticipantID, gen model.GenerationID) error {
	if to.IsZero() {
		return ledger.ErrZeroReceiver
	}
	ctx := context.Background()
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var cur string
	err = tx.QueryRowContext(ctx, `SELECT owner FROM tokens WHERE generation = ?`, int64(gen)).Scan(&cur)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: generation %d", ledger.ErrNoToken, gen)
	}
	if err != nil {
		return err
	}
	if cur != string(from) {
		return fmt.Errorf("%w: generation %d owned by %s", ledger.ErrNotOwner, gen, cur)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE tokens SET owner = ? WHERE generation = ?`, string(to), int64(gen)); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO transfers(generation,from_owner,to_owner,recorded_at) VALUES(?,?,?,?)`, int64(gen), string(from), string(to), d.stamp()); err != nil {
		return err
	}
	return tx.Commit()
}

func (d *DB) OwnerOf(gen model.GenerationID) (model.ParticipantID, bool, error) {
	var owner string
	err := d.db.QueryRow(`SELECT owner FROM tokens WHERE generation = ?`, int64(gen)).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return model.NoParticipant, false, nil
	}
	if err != nil {
		return model.NoParticipant, false, err
	}
	return model.ParticipantID(owner), true, nil
}

func (d *DB) Tokens() ([]ledger.Token, error) {
	rows, err := d.db.Query(`SELECT generation, owner FROM tokens ORDER BY generation`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ledger.Token
	for rows.Next() {
		var (
			gen   int64
			owner string
		)
		if err := rows.Scan(&gen, &owner); err != nil {
			return nil, err
		}
		out = append(out, ledger.Token{Generation: model.GenerationID(gen), Owner: model.ParticipantID(owner)})
	}
	return out, rows.Err()
}

type Transfer struct {
	Generation model.GenerationID  `json:"generation"`
	From       model.ParticipantID `json:"from"`
	To         model.ParticipantID `json:"to"`
	RecordedAt string              `json:"recorded_at"`
}

// History lists the ownership changes of gen, oldest first. The mint is recorded as a
// transfer from the zero identity.
func (d *DB) History(gen model.GenerationID) ([]Transfer, error) {
	rows, err := d.db.Query(`SELECT from_owner, to_owner, recorded_at FROM transfers WHERE generation = ? ORDER BY id`, int64(gen))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Transfer
	for rows.Next() {
		t := Transfer{Generation: gen}
		var from, to string
		if err := rows.Scan(&from, &to, &t.RecordedAt); err != nil {
			return nil, err
		}
		t.From, t.To = model.ParticipantID(from), model.ParticipantID(to)
		out = append(out, t)
	}
	return out, rows.Err()
}

// Matches reports whether the stored ownership equals what the engine state implies.
// The server uses it on resume to refuse a ledger that drifted from the snapshot.
func (d *DB) Matches(expected []ledger.Token) error {
	got, err := d.Tokens()
	if err != nil {
		return err
	}
	if len(got) != len(expected) {
		return fmt.Errorf("ledger has %d tokens, state implies %d", len(got), len(expected))
	}
	for i := range got {
		if got[i] != expected[i] {
			return fmt.Errorf("ledger token %d owned by %s, state implies %s", got[i].Generation, got[i].Owner, expected[i].Owner)
		}
	}
	return nil
}
