package export

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteWriter upserts tracks into a SQLite database
type SQLiteWriter struct {
	db *sql.DB
}

// StoredTrack is a row of the tracks table
type StoredTrack struct {
	ID          string
	Artist      string
	Name        string
	AlbumName   string
	Artists     []string
	DurationMs  int
	Popularity  int
	Explicit    bool
	Raw         string
	CollectedAt int64
}

// OpenSQLite opens or creates the database at path
func OpenSQLite(path string) (*SQLiteWriter, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA journal_mode = WAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	schema := `
		CREATE TABLE IF NOT EXISTS tracks (
			id TEXT PRIMARY KEY,
			artist_query TEXT NOT NULL,
			name TEXT NOT NULL,
			album_id TEXT,
			album_name TEXT,
			artists TEXT NOT NULL,
			duration_ms INTEGER NOT NULL,
			popularity INTEGER NOT NULL,
			explicit BOOLEAN NOT NULL DEFAULT 0,
			raw TEXT NOT NULL,
			collected_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_tracks_artist ON tracks(artist_query);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteWriter{db: db}, nil
}

// Write upserts every track of the batch in one transaction
func (s *SQLiteWriter) Write(ctx context.Context, batch Batch) error {
	collectedAt := batch.CollectedAt
	if collectedAt.IsZero() {
		collectedAt = nowUTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO tracks (id, artist_query, name, album_id, album_name, artists,
			duration_ms, popularity, explicit, raw, collected_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			artist_query = excluded.artist_query,
			name = excluded.name,
			album_id = excluded.album_id,
			album_name = excluded.album_name,
			artists = excluded.artists,
			duration_ms = excluded.duration_ms,
			popularity = excluded.popularity,
			explicit = excluded.explicit,
			raw = excluded.raw,
			collected_at = excluded.collected_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i := range batch.Tracks {
		t := &batch.Tracks[i]

		artists, err := json.Marshal(t.ArtistNames())
		if err != nil {
			return fmt.Errorf("failed to marshal artists of %s: %w", t.ID, err)
		}
		raw, err := rawDocument(t)
		if err != nil {
			return err
		}

		if _, err := stmt.ExecContext(ctx,
			t.ID,
			batch.Artist,
			t.Name,
			t.Album.ID,
			t.Album.Name,
			string(artists),
			t.DurationMs,
			t.Popularity,
			t.Explicit,
			string(raw),
			collectedAt.Unix(),
		); err != nil {
			return fmt.Errorf("failed to insert track %s: %w", t.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit tracks: %w", err)
	}
	return nil
}

// Tracks returns the stored tracks collected for artist, ordered by name
func (s *SQLiteWriter) Tracks(ctx context.Context, artist string) ([]StoredTrack, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, artist_query, name, album_name, artists, duration_ms,
			popularity, explicit, raw, collected_at
		FROM tracks
		WHERE artist_query = ?
		ORDER BY name, id
	`, artist)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracks: %w", err)
	}
	defer rows.Close()

	var tracks []StoredTrack
	for rows.Next() {
		var t StoredTrack
		var albumName sql.NullString
		var artists string
		if err := rows.Scan(&t.ID, &t.Artist, &t.Name, &albumName, &artists,
			&t.DurationMs, &t.Popularity, &t.Explicit, &t.Raw, &t.CollectedAt); err != nil {
			return nil, fmt.Errorf("failed to scan track: %w", err)
		}
		t.AlbumName = albumName.String
		if err := json.Unmarshal([]byte(artists), &t.Artists); err != nil {
			return nil, fmt.Errorf("failed to decode artists of %s: %w", t.ID, err)
		}
		tracks = append(tracks, t)
	}

	return tracks, rows.Err()
}

// Close closes the database connection
func (s *SQLiteWriter) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
