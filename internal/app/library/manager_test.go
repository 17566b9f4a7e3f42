package library

import (
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryanh/retrobox/internal/domain/track"
	"github.com/ryanh/retrobox/internal/infra/resolver"
	"github.com/ryanh/retrobox/internal/infra/store"
)

// fakeRepo is an in-memory Repository for manager tests. RunInTx
// applies mutations directly; transactional rollback is covered by the
// SQLite repository's own tests.
type fakeRepo struct {
	tracks    map[uuid.UUID]track.Track
	tags      map[int64]track.Tag
	nextTagID int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		tracks: make(map[uuid.UUID]track.Track),
		tags:   make(map[int64]track.Tag),
	}
}

func (f *fakeRepo) RunInTx(_ context.Context, fn func(Repository) error) error {
	return fn(f)
}

func (f *fakeRepo) CountTracks(context.Context) (int, error) {
	return len(f.tracks), nil
}

func (f *fakeRepo) ListTracks(_ context.Context, order TrackOrder) ([]track.Track, error) {
	all := make([]track.Track, 0, len(f.tracks))
	for _, t := range f.tracks {
		all = append(all, t)
	}
	sort.Slice(all, func(i, j int) bool {
		if order == OrderByDateAdded {
			return all[i].DateAdded.Before(all[j].DateAdded)
		}
		if all[i].DownloadIndex != all[j].DownloadIndex {
			return all[i].DownloadIndex < all[j].DownloadIndex
		}
		return all[i].Title < all[j].Title
	})
	return all, nil
}

func (f *fakeRepo) GetTrack(_ context.Context, id uuid.UUID) (track.Track, error) {
	t, ok := f.tracks[id]
	if !ok {
		return track.Track{}, errors.Newf("track %s not found", id)
	}
	return t, nil
}

func (f *fakeRepo) InsertTrack(_ context.Context, t track.Track) error {
	f.tracks[t.ID] = t
	return nil
}

func (f *fakeRepo) UpdateTrack(_ context.Context, t track.Track) error {
	if _, ok := f.tracks[t.ID]; !ok {
		return errors.Newf("track %s not found", t.ID)
	}
	f.tracks[t.ID] = t
	return nil
}

func (f *fakeRepo) DeleteTrack(_ context.Context, id uuid.UUID) error {
	delete(f.tracks, id)
	return nil
}

func (f *fakeRepo) FindTagByName(_ context.Context, name string) (track.Tag, bool, error) {
	for _, tg := range f.tags {
		if tg.Name == name {
			return tg, true, nil
		}
	}
	return track.Tag{}, false, nil
}

func (f *fakeRepo) InsertTag(_ context.Context, name string) (track.Tag, error) {
	f.nextTagID++
	tg := track.Tag{ID: f.nextTagID, Name: name}
	f.tags[tg.ID] = tg
	return tg, nil
}

func (f *fakeRepo) ListTags(context.Context) ([]track.Tag, error) {
	all := make([]track.Tag, 0, len(f.tags))
	for _, tg := range f.tags {
		all = append(all, tg)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	return all, nil
}

func (f *fakeRepo) TagUsage(_ context.Context, tagID int64) (int, error) {
	n := 0
	for _, t := range f.tracks {
		if t.HasTag(tagID) {
			n++
		}
	}
	return n, nil
}

func (f *fakeRepo) DeleteTag(_ context.Context, tagID int64) error {
	delete(f.tags, tagID)
	return nil
}

// writeWAV writes a valid PCM WAV file of the given duration
// (8 kHz, mono, 16-bit => 16000 bytes per second).
func writeWAV(t *testing.T, path string, seconds float64) {
	t.Helper()

	const byteRate = 16000
	dataSize := uint32(seconds * byteRate)

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint32(8000))
	binary.Write(&buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(&buf, binary.LittleEndian, uint16(2))
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, dataSize)
	buf.Write(make([]byte, dataSize))

	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func newTestManager(t *testing.T) (*Manager, *fakeRepo, *store.Store) {
	t.Helper()
	repo := newFakeRepo()
	st := store.New(t.TempDir())
	res := resolver.New(nil, time.Millisecond, 50*time.Millisecond)
	return NewManager(repo, st, res), repo, st
}

func importWAV(t *testing.T, m *Manager, title string, tags ...string) track.Track {
	t.Helper()
	src := filepath.Join(t.TempDir(), "song.wav")
	writeWAV(t, src, 2.0)
	trk, err := m.Import(context.Background(), ImportRequest{Source: src, Title: title, TagNames: tags})
	require.NoError(t, err)
	return trk
}

func TestManager_Import(t *testing.T) {
	m, repo, st := newTestManager(t)

	src := filepath.Join(t.TempDir(), "song.wav")
	writeWAV(t, src, 213.0)

	trk, err := m.Import(context.Background(), ImportRequest{Source: src, Title: "Test"})
	require.NoError(t, err)

	assert.Equal(t, "Test", trk.Title)
	assert.Equal(t, track.Unknown, trk.Artist)
	assert.Equal(t, track.Unknown, trk.Album)
	assert.Equal(t, 1, trk.DownloadIndex)
	assert.InDelta(t, 213.0, trk.Duration, 0.01)
	assert.True(t, st.Exists(store.AudioDir, trk.FilePath))

	stored, err := repo.GetTrack(context.Background(), trk.ID)
	require.NoError(t, err)
	assert.Equal(t, trk.FilePath, stored.FilePath)
}

func TestManager_Import_UnsupportedFormat(t *testing.T) {
	m, repo, st := newTestManager(t)

	src := filepath.Join(t.TempDir(), "song.flac")
	require.NoError(t, os.WriteFile(src, []byte("flac-ish"), 0o644))

	_, err := m.Import(context.Background(), ImportRequest{Source: src, Title: "Nope"})
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))

	n, _ := repo.CountTracks(context.Background())
	assert.Zero(t, n)

	entries, readErr := os.ReadDir(filepath.Join(st.Root(), store.AudioDir))
	if readErr == nil {
		assert.Empty(t, entries)
	}
}

func TestManager_Import_SourceUnavailable(t *testing.T) {
	m, _, _ := newTestManager(t)

	_, err := m.Import(context.Background(), ImportRequest{Source: "sync://never.mp3", Title: "X"})
	assert.True(t, errors.Is(err, resolver.ErrFileUnavailable))
}

func TestManager_Import_Tags(t *testing.T) {
	m, repo, _ := newTestManager(t)

	trk := importWAV(t, m, "Tagged", "  rock ", "", "rock", "Rock", "   ")
	// "rock" deduped, blank names dropped, "Rock" distinct (case-sensitive).
	assert.Len(t, trk.TagIDs, 2)

	tags, err := repo.ListTags(context.Background())
	require.NoError(t, err)
	names := make([]string, 0, len(tags))
	for _, tg := range tags {
		names = append(names, tg.Name)
	}
	assert.Equal(t, []string{"Rock", "rock"}, names)
}

func TestManager_Import_TagReuseAcrossImports(t *testing.T) {
	m, repo, _ := newTestManager(t)

	first := importWAV(t, m, "One", "shared")
	second := importWAV(t, m, "Two", "shared")

	assert.Equal(t, first.TagIDs, second.TagIDs)
	tags, _ := repo.ListTags(context.Background())
	assert.Len(t, tags, 1)
}

func TestManager_Import_RemoteReference(t *testing.T) {
	repo := newFakeRepo()
	st := store.New(t.TempDir())

	staging := t.TempDir()
	writeWAV(t, filepath.Join(staging, "remote.wav"), 2.0)

	providers := []resolver.Provider{resolver.NewSyncDirProvider("test", staging, "sync://")}
	m := NewManager(repo, st, resolver.New(providers, time.Millisecond, time.Second))

	trk, err := m.Import(context.Background(), ImportRequest{Source: "sync://remote.wav", Title: "Remote"})
	require.NoError(t, err)
	assert.True(t, st.Exists(store.AudioDir, trk.FilePath))
	assert.InDelta(t, 2.0, trk.Duration, 0.01)
}

func TestManager_Update(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	trk := importWAV(t, m, "Original", "old-tag")

	strPtr := func(s string) *string { return &s }

	// Empty title is ignored; empty artist resets to Unknown.
	updated, err := m.Update(ctx, trk.ID, UpdateRequest{
		Title:  strPtr(""),
		Artist: strPtr(""),
		Album:  strPtr("New Album"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Original", updated.Title)
	assert.Equal(t, track.Unknown, updated.Artist)
	assert.Equal(t, "New Album", updated.Album)
	assert.Len(t, updated.TagIDs, 1, "tags untouched when TagNames is nil")

	// Providing TagNames, even empty, fully replaces associations.
	empty := []string{}
	updated, err = m.Update(ctx, trk.ID, UpdateRequest{TagNames: &empty})
	require.NoError(t, err)
	assert.Empty(t, updated.TagIDs)

	names := []string{"fresh"}
	updated, err = m.Update(ctx, trk.ID, UpdateRequest{TagNames: &names, Title: strPtr("Renamed")})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Title)
	assert.Len(t, updated.TagIDs, 1)
}

func TestManager_Update_ReplacesArtwork(t *testing.T) {
	m, _, st := newTestManager(t)
	ctx := context.Background()

	trk := importWAV(t, m, "Art")

	art1 := filepath.Join(t.TempDir(), "cover.png")
	require.NoError(t, os.WriteFile(art1, []byte("png-bytes"), 0o644))

	strPtr := func(s string) *string { return &s }
	updated, err := m.Update(ctx, trk.ID, UpdateRequest{NewArtworkSource: strPtr(art1)})
	require.NoError(t, err)
	require.NotEmpty(t, updated.ArtworkPath)
	assert.Equal(t, ".png", filepath.Ext(updated.ArtworkPath))
	assert.True(t, st.Exists(store.ArtworkDir, updated.ArtworkPath))
	firstArtwork := updated.ArtworkPath

	art2 := filepath.Join(t.TempDir(), "cover2")
	require.NoError(t, os.WriteFile(art2, []byte("jpg-bytes"), 0o644))
	updated, err = m.Update(ctx, trk.ID, UpdateRequest{NewArtworkSource: strPtr(art2)})
	require.NoError(t, err)
	assert.Equal(t, ".jpg", filepath.Ext(updated.ArtworkPath), "extension defaults to jpg")
	assert.False(t, st.Exists(store.ArtworkDir, firstArtwork), "old artwork deleted")
	assert.True(t, st.Exists(store.ArtworkDir, updated.ArtworkPath))
}

func TestManager_Delete_Reindexes(t *testing.T) {
	m, repo, st := newTestManager(t)
	ctx := context.Background()

	a := importWAV(t, m, "A")
	b := importWAV(t, m, "B")
	c := importWAV(t, m, "C")
	assert.Equal(t, []int{1, 2, 3}, []int{a.DownloadIndex, b.DownloadIndex, c.DownloadIndex})

	require.NoError(t, m.Delete(ctx, b.ID))

	assert.False(t, st.Exists(store.AudioDir, b.FilePath))

	remaining, err := m.List(ctx)
	require.NoError(t, err)
	require.Len(t, remaining, 2)
	assert.Equal(t, "A", remaining[0].Title)
	assert.Equal(t, 1, remaining[0].DownloadIndex)
	assert.Equal(t, "C", remaining[1].Title)
	assert.Equal(t, 2, remaining[1].DownloadIndex)

	// Deleting everything leaves an empty, consistent library.
	require.NoError(t, m.Delete(ctx, a.ID))
	require.NoError(t, m.Delete(ctx, remaining[1].ID))
	n, _ := repo.CountTracks(ctx)
	assert.Zero(t, n)
}

func TestReindex_TieBreaksByTitle(t *testing.T) {
	repo := newFakeRepo()
	ctx := context.Background()

	// Duplicate indices, as after an interrupted reindex.
	for _, title := range []string{"Zulu", "Alpha", "Mike"} {
		require.NoError(t, repo.InsertTrack(ctx, track.Track{
			ID:            uuid.New(),
			Title:         title,
			DownloadIndex: 7,
			DateAdded:     time.Now(),
		}))
	}

	require.NoError(t, reindex(ctx, repo))

	all, err := repo.ListTracks(ctx, OrderByDownloadIndex)
	require.NoError(t, err)
	assert.Equal(t, "Alpha", all[0].Title)
	assert.Equal(t, 1, all[0].DownloadIndex)
	assert.Equal(t, "Mike", all[1].Title)
	assert.Equal(t, 2, all[1].DownloadIndex)
	assert.Equal(t, "Zulu", all[2].Title)
	assert.Equal(t, 3, all[2].DownloadIndex)
}

func TestManager_PruneUnusedTags(t *testing.T) {
	m, repo, _ := newTestManager(t)
	ctx := context.Background()

	trk := importWAV(t, m, "Keeper", "used", "doomed")

	// Drop "doomed" from the track; it becomes orphaned but survives.
	names := []string{"used"}
	_, err := m.Update(ctx, trk.ID, UpdateRequest{TagNames: &names})
	require.NoError(t, err)

	tags, _ := repo.ListTags(ctx)
	assert.Len(t, tags, 2, "orphaned tag is not pruned automatically")

	removed, err := m.PruneUnusedTags(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	tags, _ = repo.ListTags(ctx)
	require.Len(t, tags, 1)
	assert.Equal(t, "used", tags[0].Name)
}
