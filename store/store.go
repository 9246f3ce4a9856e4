// Package store catalogs extraction results in SQLite so repeated runs over
// the same captures are queryable over time. Captured markup on disk stays
// the source of truth; the catalog is derived data and can be rebuilt by
// re-running the extractor.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"stocksentinel/dbopen"
	"stocksentinel/extract"
)

// Schema creates the catalog tables. Pass to dbopen.WithSchema.
const Schema = `
CREATE TABLE IF NOT EXISTS fund_records (
	id                      INTEGER PRIMARY KEY AUTOINCREMENT,
	source_file             TEXT NOT NULL,
	site                    TEXT,
	name                    TEXT,
	stars                   REAL,
	perf_4_semaines         REAL,
	perf_depuis_1er_janvier REAL,
	perf_1_an               REAL,
	perf_3_ans              REAL,
	error                   TEXT NOT NULL DEFAULT '',
	extracted_at            TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_fund_records_source
	ON fund_records (source_file, extracted_at);
`

// Row is one catalogued extraction. Pointer fields mirror the extractor's
// absent-vs-zero distinction.
type Row struct {
	ID          int64
	SourceFile  string
	Site        *string
	Name        *string
	Stars       *float64
	Perf4Weeks  *float64
	PerfYTD     *float64
	Perf1Year   *float64
	Perf3Years  *float64
	Error       string
	ExtractedAt time.Time
}

// Store wraps the catalog database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New wraps an open database. The schema must already be applied (see
// dbopen.WithSchema).
func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Insert catalogs one extraction result and returns its row id.
func (s *Store) Insert(ctx context.Context, rec extract.Record) (int64, error) {
	var id int64
	err := dbopen.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO fund_records
				(source_file, site, name, stars,
				 perf_4_semaines, perf_depuis_1er_janvier, perf_1_an, perf_3_ans,
				 error, extracted_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.SourceFile, rec.Site, rec.Name, rec.Stars,
			rec.Perf4Weeks, rec.PerfYTD, rec.Perf1Year, rec.Perf3Years,
			rec.Error, s.now().UTC().Format(time.RFC3339))
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("store: insert record: %w", err)
	}
	return id, nil
}

// List returns all catalogued records, newest first.
func (s *Store) List(ctx context.Context) ([]Row, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_file, site, name, stars,
		       perf_4_semaines, perf_depuis_1er_janvier, perf_1_an, perf_3_ans,
		       error, extracted_at
		FROM fund_records
		ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("store: list records: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan record: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list records: %w", err)
	}
	return out, nil
}

// Latest returns the most recent record for a capture file, or nil when the
// file was never catalogued.
func (s *Store) Latest(ctx context.Context, sourceFile string) (*Row, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_file, site, name, stars,
		       perf_4_semaines, perf_depuis_1er_janvier, perf_1_an, perf_3_ans,
		       error, extracted_at
		FROM fund_records
		WHERE source_file = ?
		ORDER BY id DESC
		LIMIT 1`, sourceFile)
	if err != nil {
		return nil, fmt.Errorf("store: latest record: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("store: latest record: %w", err)
		}
		return nil, nil
	}
	r, err := scanRow(rows)
	if err != nil {
		return nil, fmt.Errorf("store: scan record: %w", err)
	}
	return &r, nil
}

func scanRow(rows *sql.Rows) (Row, error) {
	var (
		r           Row
		site, name  sql.NullString
		stars       sql.NullFloat64
		p4w, ytd    sql.NullFloat64
		p1y, p3y    sql.NullFloat64
		extractedAt string
	)
	if err := rows.Scan(&r.ID, &r.SourceFile, &site, &name, &stars,
		&p4w, &ytd, &p1y, &p3y, &r.Error, &extractedAt); err != nil {
		return Row{}, err
	}
	r.Site = strPtr(site)
	r.Name = strPtr(name)
	r.Stars = floatPtr(stars)
	r.Perf4Weeks = floatPtr(p4w)
	r.PerfYTD = floatPtr(ytd)
	r.Perf1Year = floatPtr(p1y)
	r.Perf3Years = floatPtr(p3y)

	ts, err := time.Parse(time.RFC3339, extractedAt)
	if err != nil {
		return Row{}, fmt.Errorf("bad extracted_at %q: %w", extractedAt, err)
	}
	r.ExtractedAt = ts
	return r, nil
}

func strPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return &v.Float64
}
