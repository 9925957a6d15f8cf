package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"florapricing/internal"
)

var ErrRunNotFound = errors.New("run not found")

type DB struct {
	conn *sql.DB
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS runs (
  id TEXT PRIMARY KEY,
  exchangeRate TEXT NOT NULL,
  source TEXT NOT NULL,
  itemCount INTEGER NOT NULL,
  createdAt TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS documents (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  runId TEXT NOT NULL,
  file TEXT NOT NULL,
  supplier TEXT,
  status TEXT NOT NULL,
  items INTEGER NOT NULL,
  stems INTEGER NOT NULL,
  error TEXT,
  FOREIGN KEY(runId) REFERENCES runs(id)
);
CREATE INDEX IF NOT EXISTS idx_documents_runId ON documents(runId);

CREATE TABLE IF NOT EXISTS items (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  runId TEXT NOT NULL,
  seq INTEGER NOT NULL,
  product TEXT NOT NULL,
  stems INTEGER NOT NULL,
  rateUsd TEXT NOT NULL,
  valueUsd TEXT NOT NULL,
  sourceFile TEXT NOT NULL,
  UNIQUE(runId, seq),
  FOREIGN KEY(runId) REFERENCES runs(id)
);

CREATE TABLE IF NOT EXISTS emails (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  provider TEXT NOT NULL,
  messageId TEXT NOT NULL,
  subject TEXT,
  sender TEXT,
  receivedAt TEXT,
  hash TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'fetched',
  rawRef TEXT NOT NULL,
  runId TEXT,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(provider, messageId)
);
`

	_, err := d.conn.Exec(schema)
	return err
}

// InsertRun stores a processing run with its line items (in parser order) and
// per-document outcomes.
func (d *DB) InsertRun(run internal.RunRecord, items []internal.LineItem, docs []internal.DocumentResult) (internal.RunRecord, error) {
	if run.CreatedAt == "" {
		run.CreatedAt = time.Now().UTC().Format(time.RFC3339Nano)
	}
	run.ItemCount = len(items)

	tx, err := d.conn.Begin()
	if err != nil {
		return internal.RunRecord{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT INTO runs (id, exchangeRate, source, itemCount, createdAt) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.ExchangeRate.String(), run.Source, run.ItemCount, run.CreatedAt); err != nil {
		return internal.RunRecord{}, fmt.Errorf("insert run: %w", err)
	}

	itemStmt, err := tx.Prepare(`
INSERT INTO items (runId, seq, product, stems, rateUsd, valueUsd, sourceFile)
VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return internal.RunRecord{}, err
	}
	defer itemStmt.Close()
	for i, it := range items {
		if _, err := itemStmt.Exec(run.ID, i, it.Product, it.Stems, it.RateUSD.String(), it.ValueUSD.String(), it.SourceFile); err != nil {
			return internal.RunRecord{}, fmt.Errorf("insert item %d: %w", i, err)
		}
	}

	docStmt, err := tx.Prepare(`
INSERT INTO documents (runId, file, supplier, status, items, stems, error)
VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return internal.RunRecord{}, err
	}
	defer docStmt.Close()
	for _, doc := range docs {
		var errText *string
		if doc.Err != nil {
			s := doc.Err.Error()
			errText = &s
		}
		if _, err := docStmt.Exec(run.ID, doc.File, doc.Supplier, string(doc.Status), doc.Items, doc.Stems, errText); err != nil {
			return internal.RunRecord{}, fmt.Errorf("insert document %s: %w", doc.File, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return internal.RunRecord{}, err
	}
	return run, nil
}

func (d *DB) GetRun(id string) (internal.RunRecord, error) {
	var run internal.RunRecord
	err := d.conn.QueryRow(`SELECT id, createdAt, exchangeRate, source, itemCount FROM runs WHERE id = ?`, id).
		Scan(&run.ID, &run.CreatedAt, &run.ExchangeRate, &run.Source, &run.ItemCount)
	if errors.Is(err, sql.ErrNoRows) {
		return internal.RunRecord{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return internal.RunRecord{}, err
	}
	return run, nil
}

func (d *DB) ListRuns(limit int) ([]internal.RunRecord, error) {
	rows, err := d.conn.Query(`
SELECT id, createdAt, exchangeRate, source, itemCount
FROM runs ORDER BY createdAt DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.RunRecord
	for rows.Next() {
		var run internal.RunRecord
		if err := rows.Scan(&run.ID, &run.CreatedAt, &run.ExchangeRate, &run.Source, &run.ItemCount); err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func (d *DB) ListRunItems(runID string) ([]internal.LineItem, error) {
	rows, err := d.conn.Query(`
SELECT product, stems, rateUsd, valueUsd, sourceFile
FROM items WHERE runId = ? ORDER BY seq ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []internal.LineItem{}
	for rows.Next() {
		var it internal.LineItem
		if err := rows.Scan(&it.Product, &it.Stems, &it.RateUSD, &it.ValueUSD, &it.SourceFile); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (d *DB) ListRunDocuments(runID string) ([]internal.DocumentResult, error) {
	rows, err := d.conn.Query(`
SELECT file, supplier, status, items, stems, error
FROM documents WHERE runId = ? ORDER BY id ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.DocumentResult
	for rows.Next() {
		var doc internal.DocumentResult
		var supplier, errText sql.NullString
		var status string
		if err := rows.Scan(&doc.File, &supplier, &status, &doc.Items, &doc.Stems, &errText); err != nil {
			return nil, err
		}
		doc.Supplier = supplier.String
		doc.Status = internal.DocumentStatus(status)
		if errText.Valid {
			doc.Err = errors.New(errText.String)
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

func (d *DB) UpsertEmail(provider, messageID, subject, sender, receivedAt, hash, rawRef, status string) (internal.EmailRow, error) {
	_, err := d.conn.Exec(`
INSERT INTO emails (provider, messageId, subject, sender, receivedAt, hash, status, rawRef)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(provider, messageId) DO UPDATE SET
  subject=excluded.subject,
  sender=excluded.sender,
  receivedAt=excluded.receivedAt,
  hash=excluded.hash,
  rawRef=excluded.rawRef,
  updatedAt=CURRENT_TIMESTAMP
`, provider, messageID, subject, sender, receivedAt, hash, status, rawRef)
	if err != nil {
		return internal.EmailRow{}, err
	}

	row, err := d.GetEmailByProviderMessageID(provider, messageID)
	if err != nil {
		return internal.EmailRow{}, err
	}
	if row == nil {
		return internal.EmailRow{}, errors.New("failed to upsert email")
	}
	return *row, nil
}

const emailColumns = `id, provider, messageId, subject, sender, receivedAt, hash, status, rawRef, runId`

type scanner interface {
	Scan(dest ...any) error
}

func scanEmail(s scanner) (internal.EmailRow, error) {
	var row internal.EmailRow
	var subject, sender, receivedAt, runID sql.NullString
	if err := s.Scan(&row.ID, &row.Provider, &row.MessageID, &subject, &sender, &receivedAt, &row.Hash, &row.Status, &row.RawRef, &runID); err != nil {
		return internal.EmailRow{}, err
	}
	row.Subject = subject.String
	row.Sender = sender.String
	row.ReceivedAt = receivedAt.String
	if runID.Valid {
		row.RunID = &runID.String
	}
	return row, nil
}

func (d *DB) GetEmailByProviderMessageID(provider, messageID string) (*internal.EmailRow, error) {
	row, err := scanEmail(d.conn.QueryRow(`SELECT `+emailColumns+` FROM emails WHERE provider = ? AND messageId = ?`, provider, messageID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (d *DB) GetEmailByID(id int) (*internal.EmailRow, error) {
	row, err := scanEmail(d.conn.QueryRow(`SELECT `+emailColumns+` FROM emails WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (d *DB) ListEmailsByStatus(status string, limit int) ([]internal.EmailRow, error) {
	rows, err := d.conn.Query(`SELECT `+emailColumns+` FROM emails WHERE status = ? ORDER BY receivedAt ASC, id ASC LIMIT ?`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.EmailRow
	for rows.Next() {
		row, err := scanEmail(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (d *DB) UpdateEmailStatus(emailID int, status string) error {
	_, err := d.conn.Exec(`UPDATE emails SET status = ?, updatedAt = CURRENT_TIMESTAMP WHERE id = ?`, status, emailID)
	return err
}

func (d *DB) SetEmailRun(emailID int, runID string) error {
	_, err := d.conn.Exec(`UPDATE emails SET runId = ?, updatedAt = CURRENT_TIMESTAMP WHERE id = ?`, runID, emailID)
	return err
}

func (d *DB) MustEmailByProviderMessageID(provider, messageID string) (internal.EmailRow, error) {
	row, err := d.GetEmailByProviderMessageID(provider, messageID)
	if err != nil {
		return internal.EmailRow{}, err
	}
	if row == nil {
		return internal.EmailRow{}, fmt.Errorf("email not found: provider=%s messageId=%s", provider, messageID)
	}
	return *row, nil
}
