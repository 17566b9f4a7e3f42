package repo

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/ryanh/retrobox/internal/app/library"
	"github.com/ryanh/retrobox/internal/domain/track"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

const trackColumns = `id, title, artist, album, date_added, download_index, file_path, artwork_path, duration`

func countTracks(ctx context.Context, q querier) (int, error) {
	var n int
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM tracks`).Scan(&n)
	return n, errors.Wrap(err, "count tracks")
}

func listTracks(ctx context.Context, q querier, order library.TrackOrder) ([]track.Track, error) {
	orderBy := `download_index ASC, title ASC`
	if order == library.OrderByDateAdded {
		orderBy = `date_added ASC, download_index ASC`
	}

	rows, err := q.QueryContext(ctx, `SELECT `+trackColumns+` FROM tracks ORDER BY `+orderBy)
	if err != nil {
		return nil, errors.Wrap(err, "list tracks")
	}
	defer rows.Close()

	var tracks []track.Track
	for rows.Next() {
		t, err := scanTrack(rows)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate tracks")
	}

	if err := attachTagIDs(ctx, q, tracks); err != nil {
		return nil, err
	}
	return tracks, nil
}

func getTrack(ctx context.Context, q querier, id uuid.UUID) (track.Track, error) {
	row := q.QueryRowContext(ctx, `SELECT `+trackColumns+` FROM tracks WHERE id = ?`, id.String())
	t, err := scanTrack(row)
	if errors.Is(err, sql.ErrNoRows) {
		return track.Track{}, errors.Wrapf(ErrNotFound, "track %s", id)
	}
	if err != nil {
		return track.Track{}, err
	}

	tracks := []track.Track{t}
	if err := attachTagIDs(ctx, q, tracks); err != nil {
		return track.Track{}, err
	}
	return tracks[0], nil
}

func insertTrack(ctx context.Context, q querier, t track.Track) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO tracks (`+trackColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID.String(), t.Title, t.Artist, t.Album, t.DateAdded.UTC(),
		t.DownloadIndex, t.FilePath, t.ArtworkPath, t.Duration,
	)
	if err != nil {
		return errors.Wrapf(err, "insert track %s", t.ID)
	}
	return replaceTagLinks(ctx, q, t.ID, t.TagIDs)
}

func updateTrack(ctx context.Context, q querier, t track.Track) error {
	res, err := q.ExecContext(ctx,
		`UPDATE tracks SET title = ?, artist = ?, album = ?, download_index = ?,
		 file_path = ?, artwork_path = ?, duration = ? WHERE id = ?`,
		t.Title, t.Artist, t.Album, t.DownloadIndex,
		t.FilePath, t.ArtworkPath, t.Duration, t.ID.String(),
	)
	if err != nil {
		return errors.Wrapf(err, "update track %s", t.ID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Wrapf(ErrNotFound, "track %s", t.ID)
	}
	return replaceTagLinks(ctx, q, t.ID, t.TagIDs)
}

func deleteTrack(ctx context.Context, q querier, id uuid.UUID) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM track_tags WHERE track_id = ?`, id.String()); err != nil {
		return errors.Wrapf(err, "unlink tags of track %s", id)
	}
	_, err := q.ExecContext(ctx, `DELETE FROM tracks WHERE id = ?`, id.String())
	return errors.Wrapf(err, "delete track %s", id)
}

func findTagByName(ctx context.Context, q querier, name string) (track.Tag, bool, error) {
	var t track.Tag
	err := q.QueryRowContext(ctx, `SELECT id, name FROM tags WHERE name = ?`, name).Scan(&t.ID, &t.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return track.Tag{}, false, nil
	}
	if err != nil {
		return track.Tag{}, false, errors.Wrapf(err, "find tag %q", name)
	}
	return t, true, nil
}

func insertTag(ctx context.Context, q querier, name string) (track.Tag, error) {
	res, err := q.ExecContext(ctx, `INSERT INTO tags (name) VALUES (?)`, name)
	if err != nil {
		return track.Tag{}, errors.Wrapf(err, "insert tag %q", name)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return track.Tag{}, errors.Wrap(err, "tag id")
	}
	return track.Tag{ID: id, Name: name}, nil
}

func listTags(ctx context.Context, q querier) ([]track.Tag, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, name FROM tags ORDER BY name`)
	if err != nil {
		return nil, errors.Wrap(err, "list tags")
	}
	defer rows.Close()

	var tags []track.Tag
	for rows.Next() {
		var t track.Tag
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, errors.Wrap(err, "scan tag")
		}
		tags = append(tags, t)
	}
	return tags, errors.Wrap(rows.Err(), "iterate tags")
}

func tagUsage(ctx context.Context, q querier, tagID int64) (int, error) {
	var n int
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM track_tags WHERE tag_id = ?`, tagID).Scan(&n)
	return n, errors.Wrapf(err, "tag usage %d", tagID)
}

func deleteTag(ctx context.Context, q querier, tagID int64) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM track_tags WHERE tag_id = ?`, tagID); err != nil {
		return errors.Wrapf(err, "unlink tag %d", tagID)
	}
	_, err := q.ExecContext(ctx, `DELETE FROM tags WHERE id = ?`, tagID)
	return errors.Wrapf(err, "delete tag %d", tagID)
}

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanTrack(s scanner) (track.Track, error) {
	var t track.Track
	var id string
	var added time.Time
	if err := s.Scan(&id, &t.Title, &t.Artist, &t.Album, &added,
		&t.DownloadIndex, &t.FilePath, &t.ArtworkPath, &t.Duration); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return track.Track{}, err
		}
		return track.Track{}, errors.Wrap(err, "scan track")
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return track.Track{}, errors.Wrapf(err, "parse track id %q", id)
	}
	t.ID = parsed
	t.DateAdded = added
	return t, nil
}

// attachTagIDs loads tag links for the given tracks in one query.
func attachTagIDs(ctx context.Context, q querier, tracks []track.Track) error {
	if len(tracks) == 0 {
		return nil
	}

	rows, err := q.QueryContext(ctx, `SELECT track_id, tag_id FROM track_tags`)
	if err != nil {
		return errors.Wrap(err, "list tag links")
	}
	defer rows.Close()

	byTrack := make(map[string][]int64)
	for rows.Next() {
		var trackID string
		var tagID int64
		if err := rows.Scan(&trackID, &tagID); err != nil {
			return errors.Wrap(err, "scan tag link")
		}
		byTrack[trackID] = append(byTrack[trackID], tagID)
	}
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, "iterate tag links")
	}

	for i := range tracks {
		tracks[i].TagIDs = byTrack[tracks[i].ID.String()]
	}
	return nil
}

func replaceTagLinks(ctx context.Context, q querier, trackID uuid.UUID, tagIDs []int64) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM track_tags WHERE track_id = ?`, trackID.String()); err != nil {
		return errors.Wrapf(err, "unlink tags of track %s", trackID)
	}
	for _, tagID := range tagIDs {
		if _, err := q.ExecContext(ctx,
			`INSERT OR IGNORE INTO track_tags (track_id, tag_id) VALUES (?, ?)`,
			trackID.String(), tagID,
		); err != nil {
			return errors.Wrapf(err, "link tag %d to track %s", tagID, trackID)
		}
	}
	return nil
}
