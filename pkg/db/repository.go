package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/pokedexos/dexcache/pkg/errors"
	"github.com/pokedexos/dexcache/pkg/record"
	_ "modernc.org/sqlite"
)

// Repository provides database operations for cached records
type Repository struct {
	db *sql.DB
}

// NewRepository opens the database and creates the schema if needed
func NewRepository(dbPath string) (*Repository, error) {
	slog.Info("database_init", "db_path", dbPath)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		slog.Error("database_open_failed", "db_path", dbPath, "error", err)
		return nil, errors.Mark(err, errors.ErrPersistence, "failed to open database")
	}
	// One connection serializes writers and keeps :memory: databases coherent.
	db.SetMaxOpenConns(1)

	slog.Info("database_create_schema", "db_path", dbPath)
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		slog.Error("database_schema_failed", "db_path", dbPath, "error", err)
		return nil, errors.Mark(err, errors.ErrPersistence, "failed to create schema")
	}

	slog.Info("database_ready", "db_path", dbPath)
	return &Repository{db: db}, nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}

// Upsert inserts the record or replaces every column of the row with the same id
func (r *Repository) Upsert(ctx context.Context, rec *record.Record) error {
	slog.Debug("database_upsert_record", "record_id", rec.ID, "name", rec.Name)

	types, err := json.Marshal(rec.Categories)
	if err != nil {
		return errors.Wrap(err, "failed to encode types")
	}

	var spritePath sql.NullString
	if rec.AssetPath != "" {
		spritePath = sql.NullString{String: rec.AssetPath, Valid: true}
	}

	query := `
		INSERT OR REPLACE INTO pokemon
		(id, name, types, height, weight, sprite_path, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query,
		rec.ID, rec.Name, string(types), rec.Height, rec.Weight,
		spritePath, rec.LastUpdated.UTC().Format(time.RFC3339Nano))
	if err != nil {
		slog.Error("database_upsert_failed", "record_id", rec.ID, "error", err)
		return errors.Mark(err, errors.ErrPersistence, "failed to upsert record")
	}

	slog.Info("database_record_upserted", "record_id", rec.ID, "name", rec.Name)
	return nil
}

// GetByID retrieves a record by primary key
func (r *Repository) GetByID(ctx context.Context, id int) (*record.Record, error) {
	query := `
		SELECT id, name, types, height, weight, sprite_path, last_updated
		FROM pokemon WHERE id = ?
	`
	return r.getOne(ctx, query, id)
}

// GetByName retrieves the lowest-id record whose name matches case-insensitively
func (r *Repository) GetByName(ctx context.Context, name string) (*record.Record, error) {
	query := `
		SELECT id, name, types, height, weight, sprite_path, last_updated
		FROM pokemon WHERE lower(name) = lower(?)
		ORDER BY id LIMIT 1
	`
	return r.getOne(ctx, query, name)
}

func (r *Repository) getOne(ctx context.Context, query string, arg any) (*record.Record, error) {
	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, arg))
	if err == sql.ErrNoRows {
		slog.Debug("database_record_not_found", "key", arg)
		return nil, nil // Not found
	}
	if err != nil {
		slog.Error("database_query_failed", "key", arg, "error", err)
		return nil, errors.Wrap(err, "failed to query record")
	}
	return rec, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(s rowScanner) (*record.Record, error) {
	var row Row
	var spritePath, lastUpdated sql.NullString

	if err := s.Scan(&row.ID, &row.Name, &row.Types, &row.Height, &row.Weight, &spritePath, &lastUpdated); err != nil {
		return nil, err
	}
	row.SpritePath = spritePath.String
	row.LastUpdated = lastUpdated.String

	return row.toRecord()
}

func (row *Row) toRecord() (*record.Record, error) {
	rec := &record.Record{
		ID:        row.ID,
		Name:      row.Name,
		Height:    row.Height,
		Weight:    row.Weight,
		AssetPath: row.SpritePath,
	}
	if err := json.Unmarshal([]byte(row.Types), &rec.Categories); err != nil {
		return nil, fmt.Errorf("corrupt types column for id %d: %w", row.ID, err)
	}
	if row.LastUpdated != "" {
		ts, err := parseTimestamp(row.LastUpdated)
		if err != nil {
			return nil, fmt.Errorf("corrupt last_updated for id %d: %w", row.ID, err)
		}
		rec.LastUpdated = ts.UTC()
	}
	return rec, nil
}

// parseTimestamp accepts RFC 3339 as written by Upsert and the naive ISO form
// older databases were written with.
func parseTimestamp(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ts, nil
	}
	return time.ParseInLocation("2006-01-02T15:04:05.999999999", s, time.Local)
}

// List returns (id, name) for every record ordered by id
func (r *Repository) List(ctx context.Context) ([]record.Summary, error) {
	slog.Debug("database_list_records")

	rows, err := r.db.QueryContext(ctx, `SELECT id, name FROM pokemon ORDER BY id`)
	if err != nil {
		slog.Error("database_list_query_failed", "error", err)
		return nil, errors.Wrap(err, "failed to list records")
	}
	defer rows.Close()

	summaries := []record.Summary{}
	for rows.Next() {
		var s record.Summary
		if err := rows.Scan(&s.ID, &s.Name); err != nil {
			slog.Error("database_scan_row_failed", "error", err)
			return nil, errors.Wrap(err, "failed to scan row")
		}
		summaries = append(summaries, s)
	}

	if err := rows.Err(); err != nil {
		slog.Error("database_rows_error", "error", err)
		return nil, errors.Wrap(err, "rows error")
	}

	slog.Debug("database_list_complete", "record_count", len(summaries))
	return summaries, nil
}

// Count returns the number of cached records
func (r *Repository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pokemon`).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "failed to count records")
	}
	return n, nil
}

// Neighbor returns the closest cached id after (next=true) or before the given id.
// It returns 0 when there is none.
func (r *Repository) Neighbor(ctx context.Context, id int, next bool) (int, error) {
	query := `SELECT id FROM pokemon WHERE id < ? ORDER BY id DESC LIMIT 1`
	if next {
		query = `SELECT id FROM pokemon WHERE id > ? ORDER BY id ASC LIMIT 1`
	}

	var out int
	err := r.db.QueryRowContext(ctx, query, id).Scan(&out)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "failed to query neighbor")
	}
	return out, nil
}

// DeleteAll removes every record and description in one transaction
func (r *Repository) DeleteAll(ctx context.Context) error {
	slog.Info("database_delete_all")

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		slog.Error("failed_to_begin_transaction", "error", err)
		return errors.Mark(err, errors.ErrPersistence, "failed to begin transaction")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM pokemon_descriptions`); err != nil {
		slog.Error("database_delete_descriptions_failed", "error", err)
		return errors.Mark(err, errors.ErrPersistence, "failed to delete descriptions")
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM pokemon`); err != nil {
		slog.Error("database_delete_records_failed", "error", err)
		return errors.Mark(err, errors.ErrPersistence, "failed to delete records")
	}

	if err := tx.Commit(); err != nil {
		slog.Error("failed_to_commit_transaction", "error", err)
		return errors.Mark(err, errors.ErrPersistence, "failed to commit transaction")
	}

	slog.Info("database_cleared")
	return nil
}

// PutDescription inserts or replaces the text for a (record, language) pair
func (r *Repository) PutDescription(ctx context.Context, d record.Description) error {
	query := `
		INSERT OR REPLACE INTO pokemon_descriptions (pokemon_id, language, description)
		VALUES (?, ?, ?)
	`
	if _, err := r.db.ExecContext(ctx, query, d.RecordID, d.Language, d.Text); err != nil {
		slog.Error("database_description_upsert_failed", "record_id", d.RecordID, "language", d.Language, "error", err)
		return errors.Mark(err, errors.ErrPersistence, "failed to upsert description")
	}
	return nil
}

// Descriptions returns every description stored for a record ordered by language
func (r *Repository) Descriptions(ctx context.Context, recordID int) ([]record.Description, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT pokemon_id, language, description FROM pokemon_descriptions
		WHERE pokemon_id = ? ORDER BY language
	`, recordID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query descriptions")
	}
	defer rows.Close()

	var out []record.Description
	for rows.Next() {
		var d record.Description
		var text sql.NullString
		if err := rows.Scan(&d.RecordID, &d.Language, &text); err != nil {
			return nil, errors.Wrap(err, "failed to scan description")
		}
		d.Text = text.String
		out = append(out, d)
	}
	return out, errors.Wrap(rows.Err(), "rows error")
}
