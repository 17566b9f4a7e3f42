// Package library provides the audio library manager: content-safe
// import of source files into the sandboxed store, metadata updates,
// and deletion with download-index reindexing.
package library

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/ryanh/retrobox/internal/domain/track"
	"github.com/ryanh/retrobox/internal/infra/media"
	"github.com/ryanh/retrobox/internal/infra/store"
)

// allowedExtensions is the audio format allow-list.
var allowedExtensions = map[string]bool{
	"mp3": true,
	"m4a": true,
	"aac": true,
	"wav": true,
}

// SourceResolver turns a possibly-remote reference into a locally
// readable path.
type SourceResolver interface {
	MakeLocal(ctx context.Context, ref string) (string, error)
	SnapshotForReading(ctx context.Context, ref string) (string, error)
}

// Manager orchestrates import, update, and delete against the file
// store and the metadata repository.
//
// A Manager is not safe for unsynchronized concurrent use: callers
// must serialize mutating operations through a single logical owner.
type Manager struct {
	repo     Repository
	store    *store.Store
	resolver SourceResolver
	probe    func(path string) media.Info
}

// NewManager creates a library manager.
func NewManager(repo Repository, st *store.Store, res SourceResolver) *Manager {
	return &Manager{
		repo:     repo,
		store:    st,
		resolver: res,
		probe:    media.Probe,
	}
}

// ImportRequest describes one import operation. Title, Artist, and
// Album fall back to embedded metadata (then to the filename stem and
// the "Unknown" sentinel) when empty.
type ImportRequest struct {
	Source        string   // local path or provider reference
	Title         string
	Artist        string
	Album         string
	TagNames      []string
	ArtworkSource string // optional local path or reference to artwork
}

// Import copies the source into the store, probes its duration and
// embedded metadata, resolves tags, and persists the track record.
// On any failure no record is created; an already-copied blob may
// remain as a non-fatal orphan.
func (m *Manager) Import(ctx context.Context, req ImportRequest) (track.Track, error) {
	resolved, cleanup, err := m.resolveSource(ctx, req.Source)
	if err != nil {
		return track.Track{}, err
	}
	defer cleanup()

	ext := extensionOf(resolved)
	if ext == "" {
		ext = extensionOf(req.Source)
	}
	if !allowedExtensions[ext] {
		return track.Track{}, errors.Wrapf(ErrUnsupportedFormat, "extension %q", ext)
	}

	id := uuid.New()
	audioName := id.String() + "." + ext
	if err := m.store.CopyIn(resolved, store.AudioDir, audioName); err != nil {
		return track.Track{}, err
	}

	info := m.probe(m.store.ResolvePath(store.AudioDir, audioName))

	count, err := m.repo.CountTracks(ctx)
	if err != nil {
		return track.Track{}, err
	}

	artworkName, err := m.saveArtwork(ctx, req.ArtworkSource, info)
	if err != nil {
		return track.Track{}, err
	}

	trk := track.Track{
		ID:            id,
		Title:         pickTitle(req.Title, info.Title, req.Source),
		Artist:        orUnknown(firstNonEmpty(req.Artist, info.Artist)),
		Album:         orUnknown(firstNonEmpty(req.Album, info.Album)),
		DateAdded:     time.Now(),
		DownloadIndex: count + 1,
		FilePath:      audioName,
		ArtworkPath:   artworkName,
		Duration:      info.Duration,
	}

	err = m.repo.RunInTx(ctx, func(r Repository) error {
		trk.TagIDs = m.resolveTags(ctx, r, req.TagNames)
		return r.InsertTrack(ctx, trk)
	})
	if err != nil {
		return track.Track{}, err
	}

	zlog.Info().Str("id", id.String()).Str("title", trk.Title).
		Int("download_index", trk.DownloadIndex).Msg("library: imported track")
	return trk, nil
}

// UpdateRequest describes a metadata update. Nil fields are left
// untouched; see Update for the per-field semantics.
type UpdateRequest struct {
	Title            *string   // non-empty replaces; empty is ignored
	Artist           *string   // empty resets to "Unknown"
	Album            *string   // empty resets to "Unknown"
	TagNames         *[]string // full replacement, even when empty
	NewArtworkSource *string   // replaces artwork; old file is deleted best-effort
}

// Update applies the request to the track atomically: either all
// provided fields are committed, or none are.
func (m *Manager) Update(ctx context.Context, id uuid.UUID, req UpdateRequest) (track.Track, error) {
	var updated track.Track
	err := m.repo.RunInTx(ctx, func(r Repository) error {
		trk, err := r.GetTrack(ctx, id)
		if err != nil {
			return err
		}

		if req.Title != nil && *req.Title != "" {
			trk.Title = *req.Title
		}
		if req.Artist != nil {
			trk.Artist = orUnknown(*req.Artist)
		}
		if req.Album != nil {
			trk.Album = orUnknown(*req.Album)
		}
		if req.TagNames != nil {
			trk.TagIDs = m.resolveTags(ctx, r, *req.TagNames)
		}
		if req.NewArtworkSource != nil {
			if trk.ArtworkPath != "" {
				if err := m.store.Delete(store.ArtworkDir, trk.ArtworkPath); err != nil {
					zlog.Warn().Err(err).Str("artwork", trk.ArtworkPath).Msg("library: old artwork delete failed")
				}
			}
			name, err := m.copyArtwork(ctx, *req.NewArtworkSource)
			if err != nil {
				return err
			}
			trk.ArtworkPath = name
		}

		if err := r.UpdateTrack(ctx, trk); err != nil {
			return err
		}
		updated = trk
		return nil
	})
	return updated, err
}

// Delete removes the track's files (best-effort) and its record, then
// reindexes the remaining tracks to a dense 1..N sequence ordered by
// (download index, title).
func (m *Manager) Delete(ctx context.Context, id uuid.UUID) error {
	return m.repo.RunInTx(ctx, func(r Repository) error {
		trk, err := r.GetTrack(ctx, id)
		if err != nil {
			return err
		}

		if trk.FilePath != "" {
			if err := m.store.Delete(store.AudioDir, trk.FilePath); err != nil {
				zlog.Warn().Err(err).Str("file", trk.FilePath).Msg("library: audio delete failed")
			}
		}
		if trk.ArtworkPath != "" {
			if err := m.store.Delete(store.ArtworkDir, trk.ArtworkPath); err != nil {
				zlog.Warn().Err(err).Str("file", trk.ArtworkPath).Msg("library: artwork delete failed")
			}
		}

		if err := r.DeleteTrack(ctx, id); err != nil {
			return err
		}
		return reindex(ctx, r)
	})
}

// List returns all tracks in download-index order.
func (m *Manager) List(ctx context.Context) ([]track.Track, error) {
	return m.repo.ListTracks(ctx, OrderByDownloadIndex)
}

// Get returns one track by id.
func (m *Manager) Get(ctx context.Context, id uuid.UUID) (track.Track, error) {
	return m.repo.GetTrack(ctx, id)
}

// Tags returns all tags sorted by name.
func (m *Manager) Tags(ctx context.Context) ([]track.Tag, error) {
	return m.repo.ListTags(ctx)
}

// AudioPath resolves the absolute path of a track's audio blob.
func (m *Manager) AudioPath(trk track.Track) string {
	return m.store.ResolvePath(store.AudioDir, trk.FilePath)
}

// ArtworkPath resolves the absolute path of a track's artwork blob,
// or "" when the track has none.
func (m *Manager) ArtworkPath(trk track.Track) string {
	if trk.ArtworkPath == "" {
		return ""
	}
	return m.store.ResolvePath(store.ArtworkDir, trk.ArtworkPath)
}

// PruneUnusedTags deletes tags with no referencing tracks and returns
// how many were removed. Orphaned tags are otherwise kept on purpose;
// this is an explicit maintenance sweep, not part of Delete.
func (m *Manager) PruneUnusedTags(ctx context.Context) (int, error) {
	removed := 0
	err := m.repo.RunInTx(ctx, func(r Repository) error {
		tags, err := r.ListTags(ctx)
		if err != nil {
			return err
		}
		for _, tg := range tags {
			usage, err := r.TagUsage(ctx, tg.ID)
			if err != nil {
				return err
			}
			if usage > 0 {
				continue
			}
			if err := r.DeleteTag(ctx, tg.ID); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	return removed, err
}

// reindex reassigns download indices to 1..N in (download index,
// title) order, writing only the records whose index changed.
func reindex(ctx context.Context, r Repository) error {
	all, err := r.ListTracks(ctx, OrderByDownloadIndex)
	if err != nil {
		return err
	}
	for i, trk := range all {
		wanted := i + 1
		if trk.DownloadIndex == wanted {
			continue
		}
		trk.DownloadIndex = wanted
		if err := r.UpdateTrack(ctx, trk); err != nil {
			return err
		}
	}
	return nil
}

// resolveSource produces a locally readable path for the source. A
// plain local file skips resolution entirely; remote references are
// materialized and snapshotted. The returned cleanup removes any
// temporary snapshot.
func (m *Manager) resolveSource(ctx context.Context, source string) (string, func(), error) {
	if isLocalFile(source) {
		return source, func() {}, nil
	}

	if _, err := m.resolver.MakeLocal(ctx, source); err != nil {
		return "", nil, err
	}
	snap, err := m.resolver.SnapshotForReading(ctx, source)
	if err != nil {
		return "", nil, err
	}

	cleanup := func() {}
	if snap != source {
		cleanup = func() { os.Remove(snap) }
	}
	return snap, cleanup, nil
}

// saveArtwork stores the track's artwork blob: an explicit artwork
// source wins and its copy failure aborts the import; embedded cover
// art is best-effort.
func (m *Manager) saveArtwork(ctx context.Context, artworkSource string, info media.Info) (string, error) {
	if artworkSource != "" {
		return m.copyArtwork(ctx, artworkSource)
	}
	if len(info.Artwork) == 0 {
		return "", nil
	}

	name := uuid.NewString() + "." + info.ArtworkExt
	dir, err := m.store.EnsureSubdir(store.ArtworkDir)
	if err != nil {
		zlog.Warn().Err(err).Msg("library: embedded artwork skipped")
		return "", nil
	}
	if err := os.WriteFile(filepath.Join(dir, name), info.Artwork, 0o644); err != nil {
		zlog.Warn().Err(err).Msg("library: embedded artwork skipped")
		return "", nil
	}
	return name, nil
}

// copyArtwork copies an artwork source into the artwork directory
// under a fresh identifier, preserving its extension (default jpg).
func (m *Manager) copyArtwork(ctx context.Context, source string) (string, error) {
	resolved, cleanup, err := m.resolveSource(ctx, source)
	if err != nil {
		return "", err
	}
	defer cleanup()

	ext := extensionOf(resolved)
	if ext == "" {
		ext = extensionOf(source)
	}
	if ext == "" {
		ext = "jpg"
	}
	name := uuid.NewString() + "." + ext
	if err := m.store.CopyIn(resolved, store.ArtworkDir, name); err != nil {
		return "", err
	}
	return name, nil
}

// pickTitle chooses the track title: explicit request, then embedded
// metadata, then the source filename stem.
func pickTitle(requested, embedded, source string) string {
	if requested != "" {
		return requested
	}
	if embedded != "" {
		return embedded
	}
	base := filepath.Base(source)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func orUnknown(s string) string {
	if s == "" {
		return track.Unknown
	}
	return s
}

func extensionOf(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}

func isLocalFile(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.Mode().IsRegular()
}
