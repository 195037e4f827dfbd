package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/starford/wellbeing/internal/apperr"
	"github.com/starford/wellbeing/internal/models"
)

const entryColumns = `id, date, phase,
	relational_tone, operational_readiness, boundary_pressure,
	boundary_integrity, agency, clarity,
	created_at, updated_at`

const orderNewestFirst = ` ORDER BY date DESC, id DESC`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(s rowScanner) (models.Entry, error) {
	var (
		e                models.Entry
		phase            string
		scores           [models.MetricCount]sql.NullFloat64
		created, updated string
	)
	err := s.Scan(&e.ID, &e.Date, &phase,
		&scores[0], &scores[1], &scores[2], &scores[3], &scores[4], &scores[5],
		&created, &updated)
	if err != nil {
		return e, err
	}
	e.Phase = models.Phase(phase)
	for i, k := range models.MetricKeys() {
		if scores[i].Valid {
			e.Metrics.Set(k, scores[i].Float64)
		}
	}
	if e.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return e, fmt.Errorf("parse created_at %q: %w", created, err)
	}
	if e.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated); err != nil {
		return e, fmt.Errorf("parse updated_at %q: %w", updated, err)
	}
	return e, nil
}

// scoreArgs returns the six metric columns in schema order; absent scores bind NULL.
func scoreArgs(m models.Metrics) []any {
	out := make([]any, 0, models.MetricCount)
	for _, k := range models.MetricKeys() {
		if v, ok := m.Get(k); ok {
			out = append(out, v)
		} else {
			out = append(out, nil)
		}
	}
	return out
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// classify maps driver errors onto the apperr taxonomy.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var se sqlite3.Error
	if errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique {
		return fmt.Errorf("%s: an entry for that date already exists: %w", op, apperr.ErrConflict)
	}
	return apperr.Storage(op, err)
}

func (db *DB) query(ctx context.Context, op, where string, args ...any) ([]models.Entry, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT `+entryColumns+` FROM entries`+where+orderNewestFirst, args...)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	out := []models.Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, classify(op, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(op, err)
	}
	return out, nil
}

func (db *DB) queryOne(ctx context.Context, op, where string, arg any) (*models.Entry, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM entries `+where, arg)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, classify(op, err)
	}
	return &e, nil
}

// All returns every entry, newest date first. It returns an empty slice when
// the store holds no entries.
func (db *DB) All(ctx context.Context) ([]models.Entry, error) {
	return db.query(ctx, "all", "")
}

// GetByID returns the entry with the given id or apperr.ErrNotFound.
func (db *DB) GetByID(ctx context.Context, id int64) (*models.Entry, error) {
	return db.queryOne(ctx, "get by id", `WHERE id = ?`, id)
}

// GetByDate returns the entry recorded for date or apperr.ErrNotFound.
func (db *DB) GetByDate(ctx context.Context, date string) (*models.Entry, error) {
	return db.queryOne(ctx, "get by date", `WHERE date = ?`, date)
}

// ListByPhase returns every entry recorded against phase.
func (db *DB) ListByPhase(ctx context.Context, phase models.Phase) ([]models.Entry, error) {
	return db.query(ctx, "list by phase", ` WHERE phase = ?`, string(phase))
}

// ListByDateRange returns entries whose date lies in [start, end].
func (db *DB) ListByDateRange(ctx context.Context, start, end string) ([]models.Entry, error) {
	return db.query(ctx, "list by date range", ` WHERE date BETWEEN ? AND ?`, start, end)
}

// Count returns the number of stored entries.
func (db *DB) Count(ctx context.Context) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT count(*) FROM entries`).Scan(&n); err != nil {
		return 0, classify("count", err)
	}
	return n, nil
}

// Insert stores a new entry and returns its assigned id. Any id on e is ignored.
func (db *DB) Insert(ctx context.Context, e models.Entry) (int64, error) {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()
	return insert(ctx, db.conn, e)
}

func insert(ctx context.Context, x DBTX, e models.Entry) (int64, error) {
	args := append([]any{e.Date, string(e.Phase)}, scoreArgs(e.Metrics)...)
	args = append(args, formatTime(e.CreatedAt), formatTime(e.UpdatedAt))
	res, err := x.ExecContext(ctx, `
		INSERT INTO entries (date, phase,
			relational_tone, operational_readiness, boundary_pressure,
			boundary_integrity, agency, clarity,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, args...)
	if err != nil {
		return 0, classify("insert", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, classify("insert", err)
	}
	return id, nil
}

// Update replaces every stored field of the entry with the given id.
// It returns apperr.ErrNotFound when no such entry exists.
func (db *DB) Update(ctx context.Context, id int64, e models.Entry) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	args := append([]any{e.Date, string(e.Phase)}, scoreArgs(e.Metrics)...)
	args = append(args, formatTime(e.CreatedAt), formatTime(e.UpdatedAt), id)
	res, err := db.conn.ExecContext(ctx, `
		UPDATE entries SET
			date = ?, phase = ?,
			relational_tone = ?, operational_readiness = ?, boundary_pressure = ?,
			boundary_integrity = ?, agency = ?, clarity = ?,
			created_at = ?, updated_at = ?
		WHERE id = ?
	`, args...)
	if err != nil {
		return classify("update", err)
	}
	return expectOne(res, "update")
}

// BulkUpsert writes entries in one transaction. An entry whose id already
// exists is overwritten in place; one with no id or an unknown id is inserted
// (keeping the unknown id). Either every entry is written or none is.
func (db *DB) BulkUpsert(ctx context.Context, entries []models.Entry) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	err := WithTx(ctx, db.conn, func(ctx context.Context, tx DBTX) error {
		for _, e := range entries {
			if e.ID == 0 {
				if _, err := insert(ctx, tx, e); err != nil {
					return err
				}
				continue
			}
			args := append([]any{e.ID, e.Date, string(e.Phase)}, scoreArgs(e.Metrics)...)
			args = append(args, formatTime(e.CreatedAt), formatTime(e.UpdatedAt))
			_, err := tx.ExecContext(ctx, `
				INSERT INTO entries (id, date, phase,
					relational_tone, operational_readiness, boundary_pressure,
					boundary_integrity, agency, clarity,
					created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					date                  = excluded.date,
					phase                 = excluded.phase,
					relational_tone       = excluded.relational_tone,
					operational_readiness = excluded.operational_readiness,
					boundary_pressure     = excluded.boundary_pressure,
					boundary_integrity    = excluded.boundary_integrity,
					agency                = excluded.agency,
					clarity               = excluded.clarity,
					created_at            = excluded.created_at,
					updated_at            = excluded.updated_at
			`, args...)
			if err != nil {
				return classify(fmt.Sprintf("bulk upsert id %d", e.ID), err)
			}
		}
		return nil
	})
	if err != nil && !errors.Is(err, apperr.ErrConflict) && !errors.Is(err, apperr.ErrStorage) {
		// begin or commit failed
		return classify("bulk upsert", err)
	}
	return err
}

// DeleteByID removes one entry. It returns apperr.ErrNotFound when no such entry exists.
func (db *DB) DeleteByID(ctx context.Context, id int64) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	res, err := db.conn.ExecContext(ctx, `DELETE FROM entries WHERE id = ?`, id)
	if err != nil {
		return classify("delete", err)
	}
	return expectOne(res, "delete")
}

// DeleteAll removes every entry and reports how many were removed.
// Ids are never reused afterwards.
func (db *DB) DeleteAll(ctx context.Context) (int64, error) {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	res, err := db.conn.ExecContext(ctx, `DELETE FROM entries`)
	if err != nil {
		return 0, classify("delete all", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, classify("delete all", err)
	}
	return n, nil
}

func expectOne(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return classify(op, err)
	}
	if n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}
