// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ledger holds the optional MySQL-backed run ledger: a record
// of every acquisition run a crate has started, for audit and replay.
package ledger // import "github.com/go-pixie/crate16/ledger"

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

const (
	host = "localhost"

	queryTimeout = 5 * time.Second
)

var (
	usr     = "username"
	pwd     = "s3cr3t"
	drvName = "mysql"
)

// ModuleRecord is one module's contribution to a completed run: the
// firmware versions bound at boot (keyed by device tag, e.g. "dsp") and
// the final word count its list-mode worker drained.
type ModuleRecord struct {
	Module    int               `json:"module"`
	Firmware  map[string]string `json:"firmware,omitempty"`
	WordCount int64             `json:"word_count"`
}

// RunRecord is one logged acquisition run ledger record.
type RunRecord struct {
	ID        int64
	CrateID   string
	RunType   string
	StartedAt time.Time
	EndedAt   sql.NullTime
	WordCount int64
	Status    string
	Modules   []ModuleRecord
}

// DB exposes the run-ledger queries against the crate's MySQL database.
type DB struct {
	db   *sql.DB
	name string
}

// Open opens a connection to the ledger database dbname.
func Open(dbname string) (*DB, error) {
	db, err := sql.Open(drvName, dsn(dbname))
	if err != nil {
		return nil, fmt.Errorf("ledger: could not open %q db: %w", dbname, err)
	}

	if err := ping(db, dbname); err != nil {
		return nil, err
	}

	return &DB{db: db, name: dbname}, nil
}

func dsn(db string) string {
	return fmt.Sprintf("%s:%s@tcp(%s)/%s", usr, pwd, host, db)
}

func ping(db *sql.DB, dbname string) error {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ledger: could not ping %q db: %w", dbname, err)
	}
	return nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error { return db.db.Close() }

// StartRun inserts a new RunRecord and returns its assigned ID.
func (db *DB) StartRun(ctx context.Context, crateID, runType string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	res, err := db.db.ExecContext(
		ctx,
		"INSERT INTO runs (crate_id, run_type, started_at, status) VALUES (?, ?, ?, ?)",
		crateID, runType, time.Now().UTC(), "active",
	)
	if err != nil {
		return 0, fmt.Errorf("ledger: could not insert run: %w", err)
	}
	return res.LastInsertId()
}

// EndRun marks a run complete with its final word count and the
// per-module firmware/word-count records gathered at run end.
func (db *DB) EndRun(ctx context.Context, id int64, wordCount int64, status string, modules []ModuleRecord) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	blob, err := json.Marshal(modules)
	if err != nil {
		return fmt.Errorf("ledger: could not encode module records for run %d: %w", id, err)
	}

	_, err = db.db.ExecContext(
		ctx,
		"UPDATE runs SET ended_at=?, word_count=?, status=?, modules=? WHERE id=?",
		time.Now().UTC(), wordCount, status, blob, id,
	)
	if err != nil {
		return fmt.Errorf("ledger: could not update run %d: %w", id, err)
	}
	return nil
}

// scanModules decodes a run's modules JSON column, tolerating the NULL
// a row written before this column existed would hold.
func scanModules(raw []byte) ([]ModuleRecord, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var mods []ModuleRecord
	if err := json.Unmarshal(raw, &mods); err != nil {
		return nil, err
	}
	return mods, nil
}

// LastRun returns the most recently started RunRecord for crateID.
func (db *DB) LastRun(ctx context.Context, crateID string) (RunRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var rec RunRecord
	var modulesBlob []byte
	rows, err := db.db.QueryContext(
		ctx,
		"SELECT id, crate_id, run_type, started_at, ended_at, word_count, status, modules FROM runs WHERE crate_id=? ORDER BY started_at DESC LIMIT 1",
		crateID,
	)
	if err != nil {
		return rec, fmt.Errorf("ledger: could not query last run: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		err = rows.Scan(&rec.ID, &rec.CrateID, &rec.RunType, &rec.StartedAt, &rec.EndedAt, &rec.WordCount, &rec.Status, &modulesBlob)
		if err != nil {
			return rec, fmt.Errorf("ledger: could not scan last run: %w", err)
		}
		rec.Modules, err = scanModules(modulesBlob)
		if err != nil {
			return rec, fmt.Errorf("ledger: could not decode module records for last run: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return rec, fmt.Errorf("ledger: could not scan db for last run: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return rec, fmt.Errorf("ledger: context error while retrieving last run: %w", err)
	}
	return rec, nil
}

// Runs returns every logged run for crateID, most recent first.
func (db *DB) Runs(ctx context.Context, crateID string) ([]RunRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var recs []RunRecord
	rows, err := db.db.QueryContext(
		ctx,
		"SELECT id, crate_id, run_type, started_at, ended_at, word_count, status, modules FROM runs WHERE crate_id=? ORDER BY started_at DESC",
		crateID,
	)
	if err != nil {
		return recs, fmt.Errorf("ledger: could not query runs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rec RunRecord
		var modulesBlob []byte
		if err := rows.Scan(&rec.ID, &rec.CrateID, &rec.RunType, &rec.StartedAt, &rec.EndedAt, &rec.WordCount, &rec.Status, &modulesBlob); err != nil {
			return recs, fmt.Errorf("ledger: could not scan run: %w", err)
		}
		rec.Modules, err = scanModules(modulesBlob)
		if err != nil {
			return recs, fmt.Errorf("ledger: could not decode module records for run %d: %w", rec.ID, err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return recs, fmt.Errorf("ledger: could not scan db for runs: %w", err)
	}
	return recs, nil
}
