package library

import (
	"context"

	"github.com/google/uuid"

	"github.com/ryanh/retrobox/internal/domain/track"
)

// TrackOrder selects the ordering of ListTracks results.
type TrackOrder int

const (
	// OrderByDownloadIndex orders by (download_index asc, title asc),
	// the stable reindex ordering.
	OrderByDownloadIndex TrackOrder = iota
	// OrderByDateAdded orders by creation time ascending.
	OrderByDateAdded
)

// Repository persists Track and Tag records. Implementations must make
// RunInTx atomic relative to readers: no partially committed mutation
// is ever observable.
type Repository interface {
	// RunInTx executes fn against a transactional view of the
	// repository, committing on nil return and rolling back otherwise.
	RunInTx(ctx context.Context, fn func(Repository) error) error

	CountTracks(ctx context.Context) (int, error)
	ListTracks(ctx context.Context, order TrackOrder) ([]track.Track, error)
	GetTrack(ctx context.Context, id uuid.UUID) (track.Track, error)
	InsertTrack(ctx context.Context, t track.Track) error
	UpdateTrack(ctx context.Context, t track.Track) error
	DeleteTrack(ctx context.Context, id uuid.UUID) error

	FindTagByName(ctx context.Context, name string) (track.Tag, bool, error)
	InsertTag(ctx context.Context, name string) (track.Tag, error)
	ListTags(ctx context.Context) ([]track.Tag, error)
	TagUsage(ctx context.Context, tagID int64) (int, error)
	DeleteTag(ctx context.Context, tagID int64) error
}
