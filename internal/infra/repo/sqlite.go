// Package repo provides the SQLite-backed metadata repository.
package repo

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	zlog "github.com/rs/zerolog/log"

	"github.com/ryanh/retrobox/internal/app/library"
	"github.com/ryanh/retrobox/internal/domain/track"
)

// CurrentSchemaVersion is the current database schema version.
const CurrentSchemaVersion = "1"

const schema = `
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS tracks (
	id             TEXT PRIMARY KEY,
	title          TEXT NOT NULL,
	artist         TEXT NOT NULL,
	album          TEXT NOT NULL,
	date_added     TIMESTAMP NOT NULL,
	download_index INTEGER NOT NULL,
	file_path      TEXT NOT NULL,
	artwork_path   TEXT NOT NULL DEFAULT '',
	duration       REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS tags (
	id   INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS track_tags (
	track_id TEXT NOT NULL REFERENCES tracks(id) ON DELETE CASCADE,
	tag_id   INTEGER NOT NULL REFERENCES tags(id),
	PRIMARY KEY (track_id, tag_id)
);

CREATE INDEX IF NOT EXISTS idx_tracks_order ON tracks(download_index, title);
`

// DB is the SQLite metadata repository. It satisfies
// library.Repository; writers are serialized by a single-connection
// pool, matching SQLite's one-writer model.
type DB struct {
	db   *sql.DB
	path string
}

// querier abstracts *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open opens (creating if needed) the database at path and initializes
// the schema.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "create repository directory")
	}

	db, err := sql.Open("sqlite3", path+"?_journal=WAL&_busy_timeout=5000&_fk=on")
	if err != nil {
		return nil, errors.Wrap(err, "open repository database")
	}

	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	d := &DB{db: db, path: path}
	if err := d.initSchema(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "initialize schema")
	}

	zlog.Info().Str("path", path).Msg("repo: metadata database opened")
	return d, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) initSchema() error {
	if _, err := d.db.Exec(schema); err != nil {
		return err
	}
	_, err := d.db.Exec(
		`INSERT INTO meta (key, value) VALUES ('schema_version', ?) ON CONFLICT(key) DO NOTHING`,
		CurrentSchemaVersion,
	)
	return err
}

// RunInTx runs fn against a transactional view, committing on nil.
func (d *DB) RunInTx(ctx context.Context, fn func(library.Repository) error) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}

	view := &txView{q: tx}
	if err := fn(view); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			zlog.Warn().Err(rbErr).Msg("repo: rollback failed")
		}
		return err
	}
	return errors.Wrap(tx.Commit(), "commit transaction")
}

func (d *DB) CountTracks(ctx context.Context) (int, error) {
	return countTracks(ctx, d.db)
}

func (d *DB) ListTracks(ctx context.Context, order library.TrackOrder) ([]track.Track, error) {
	return listTracks(ctx, d.db, order)
}

func (d *DB) GetTrack(ctx context.Context, id uuid.UUID) (track.Track, error) {
	return getTrack(ctx, d.db, id)
}

func (d *DB) InsertTrack(ctx context.Context, t track.Track) error {
	return insertTrack(ctx, d.db, t)
}

func (d *DB) UpdateTrack(ctx context.Context, t track.Track) error {
	return updateTrack(ctx, d.db, t)
}

func (d *DB) DeleteTrack(ctx context.Context, id uuid.UUID) error {
	return deleteTrack(ctx, d.db, id)
}

func (d *DB) FindTagByName(ctx context.Context, name string) (track.Tag, bool, error) {
	return findTagByName(ctx, d.db, name)
}

func (d *DB) InsertTag(ctx context.Context, name string) (track.Tag, error) {
	return insertTag(ctx, d.db, name)
}

func (d *DB) ListTags(ctx context.Context) ([]track.Tag, error) {
	return listTags(ctx, d.db)
}

func (d *DB) TagUsage(ctx context.Context, tagID int64) (int, error) {
	return tagUsage(ctx, d.db, tagID)
}

func (d *DB) DeleteTag(ctx context.Context, tagID int64) error {
	return deleteTag(ctx, d.db, tagID)
}

// txView is the transactional repository view handed to RunInTx
// callbacks. Nested RunInTx calls reuse the same transaction.
type txView struct {
	q *sql.Tx
}

func (v *txView) RunInTx(_ context.Context, fn func(library.Repository) error) error {
	return fn(v)
}

func (v *txView) CountTracks(ctx context.Context) (int, error) {
	return countTracks(ctx, v.q)
}

func (v *txView) ListTracks(ctx context.Context, order library.TrackOrder) ([]track.Track, error) {
	return listTracks(ctx, v.q, order)
}

func (v *txView) GetTrack(ctx context.Context, id uuid.UUID) (track.Track, error) {
	return getTrack(ctx, v.q, id)
}

func (v *txView) InsertTrack(ctx context.Context, t track.Track) error {
	return insertTrack(ctx, v.q, t)
}

func (v *txView) UpdateTrack(ctx context.Context, t track.Track) error {
	return updateTrack(ctx, v.q, t)
}

func (v *txView) DeleteTrack(ctx context.Context, id uuid.UUID) error {
	return deleteTrack(ctx, v.q, id)
}

func (v *txView) FindTagByName(ctx context.Context, name string) (track.Tag, bool, error) {
	return findTagByName(ctx, v.q, name)
}

func (v *txView) InsertTag(ctx context.Context, name string) (track.Tag, error) {
	return insertTag(ctx, v.q, name)
}

func (v *txView) ListTags(ctx context.Context) ([]track.Tag, error) {
	return listTags(ctx, v.q)
}

func (v *txView) TagUsage(ctx context.Context, tagID int64) (int, error) {
	return tagUsage(ctx, v.q, tagID)
}

func (v *txView) DeleteTag(ctx context.Context, tagID int64) error {
	return deleteTag(ctx, v.q, tagID)
}
