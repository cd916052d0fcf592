package sqlite

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	"breakout-systemv1/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Reader provides read-only access to SQLite for backfill, replay and
// snapshot restore. Implements model.BarReader.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading.
func NewReader(dbPath string) (*Reader, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	log.Printf("[sqlite-reader] opened %s", dbPath)
	return &Reader{db: db}, nil
}

// ReadBars reads bars for a specific instrument and TF.
// Results are ordered by timestamp ascending for correct replay order.
func (r *Reader) ReadBars(venue, symbol string, tf int, afterTS int64) ([]model.Bar, error) {
	rows, err := r.db.Query(`
		SELECT venue, symbol, tf, ts, open, high, low, close, volume, count
		FROM bars
		WHERE venue = ? AND symbol = ? AND tf = ? AND ts > ?
		ORDER BY ts ASC
	`, venue, symbol, tf, afterTS)
	if err != nil {
		return nil, fmt.Errorf("sqlite query bars: %w", err)
	}
	defer rows.Close()

	return scanBars(rows)
}

// ReadAllBars reads all bars for a given timeframe, ordered by timestamp.
func (r *Reader) ReadAllBars(tf int, afterTS int64) ([]model.Bar, error) {
	rows, err := r.db.Query(`
		SELECT venue, symbol, tf, ts, open, high, low, close, volume, count
		FROM bars
		WHERE tf = ? AND ts > ?
		ORDER BY ts ASC
	`, tf, afterTS)
	if err != nil {
		return nil, fmt.Errorf("sqlite query all bars: %w", err)
	}
	defer rows.Close()

	return scanBars(rows)
}

func scanBars(rows *sql.Rows) ([]model.Bar, error) {
	var bars []model.Bar
	for rows.Next() {
		var b model.Bar
		var tsUnix int64
		if err := rows.Scan(&b.Venue, &b.Symbol, &b.TF, &tsUnix, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &b.Count); err != nil {
			return nil, fmt.Errorf("sqlite scan bars: %w", err)
		}
		b.TS = time.Unix(tsUnix, 0).UTC()
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// ReadLatestSnapshotJSON loads the most recent indicator engine snapshot as raw JSON.
// Returns nil, nil if no snapshot exists.
func (r *Reader) ReadLatestSnapshotJSON() ([]byte, error) {
	var data string
	err := r.db.QueryRow(`
		SELECT data FROM indicator_snapshots
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`).Scan(&data)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("sqlite read snapshot: %w", err)
	}
	return []byte(data), nil
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}
