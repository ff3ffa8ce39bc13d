// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ledger

import (
	"context"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/go-pixie/crate16/internal/fakedb"
)

func init() {
	drvName = "fakedb"
}

func TestOpen(t *testing.T) {
	db, err := Open("fakedb")
	if err != nil {
		t.Fatalf("could not open ledger db: %+v", err)
	}
	defer db.Close()
}

func TestLastRun(t *testing.T) {
	db, err := Open("fakedb")
	if err != nil {
		t.Fatalf("could not open ledger db: %+v", err)
	}
	defer db.Close()

	started := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)
	modulesJSON := []byte(`[{"module":0,"firmware":{"dsp":"R33432"},"word_count":4096}]`)
	_ = fakedb.Run(context.Background(), fakedb.Rows{
		Names: []string{"id", "crate_id", "run_type", "started_at", "ended_at", "word_count", "status", "modules"},
		Values: [][]driver.Value{
			{int64(7), "crate-0", "listmode", started, nil, int64(4096), "complete", modulesJSON},
		},
	}, func(ctx context.Context) error {
		rec, err := db.LastRun(ctx, "crate-0")
		if err != nil {
			t.Fatalf("could not retrieve last run: %+v", err)
		}

		if got, want := rec.ID, int64(7); got != want {
			t.Fatalf("invalid run id: got=%d, want=%d", got, want)
		}
		if got, want := rec.RunType, "listmode"; got != want {
			t.Fatalf("invalid run type: got=%q, want=%q", got, want)
		}
		if got, want := rec.WordCount, int64(4096); got != want {
			t.Fatalf("invalid word count: got=%d, want=%d", got, want)
		}
		if got, want := rec.Status, "complete"; got != want {
			t.Fatalf("invalid status: got=%q, want=%q", got, want)
		}
		if got, want := len(rec.Modules), 1; got != want {
			t.Fatalf("invalid module record count: got=%d, want=%d", got, want)
		}
		if got, want := rec.Modules[0].Firmware["dsp"], "R33432"; got != want {
			t.Fatalf("invalid module firmware: got=%q, want=%q", got, want)
		}
		return nil
	})
}

func TestRuns(t *testing.T) {
	db, err := Open("fakedb")
	if err != nil {
		t.Fatalf("could not open ledger db: %+v", err)
	}
	defer db.Close()

	started := time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC)
	_ = fakedb.Run(context.Background(), fakedb.Rows{
		Names: []string{"id", "crate_id", "run_type", "started_at", "ended_at", "word_count", "status", "modules"},
		Values: [][]driver.Value{
			{int64(5), "crate-0", "histogram", started, nil, int64(0), "active", nil},
			{int64(4), "crate-0", "listmode", started, nil, int64(2048), "complete", nil},
		},
	}, func(ctx context.Context) error {
		recs, err := db.Runs(ctx, "crate-0")
		if err != nil {
			t.Fatalf("could not retrieve runs: %+v", err)
		}
		if got, want := len(recs), 2; got != want {
			t.Fatalf("invalid run count: got=%d, want=%d", got, want)
		}
		if got, want := recs[0].ID, int64(5); got != want {
			t.Fatalf("invalid first run id: got=%d, want=%d", got, want)
		}
		return nil
	})
}
