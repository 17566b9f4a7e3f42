package library

import (
	"context"
	"strings"

	zlog "github.com/rs/zerolog/log"

	"github.com/ryanh/retrobox/internal/domain/track"
)

// fetchOrCreateTag looks a tag up by exact (case-sensitive) name and
// creates it when absent. The insert is visible to the surrounding
// transaction only; the caller commits.
func fetchOrCreateTag(ctx context.Context, r Repository, name string) (track.Tag, error) {
	existing, found, err := r.FindTagByName(ctx, name)
	if err != nil {
		return track.Tag{}, err
	}
	if found {
		return existing, nil
	}
	return r.InsertTag(ctx, name)
}

// resolveTags maps tag names to tag IDs, creating missing tags. Blank
// names are dropped after trimming; a name that fails to resolve is
// skipped with a warning rather than failing the whole operation.
func (m *Manager) resolveTags(ctx context.Context, r Repository, names []string) []int64 {
	var ids []int64
	seen := make(map[int64]bool)
	for _, raw := range names {
		name := strings.TrimSpace(raw)
		if name == "" {
			continue
		}
		tg, err := fetchOrCreateTag(ctx, r, name)
		if err != nil {
			zlog.Warn().Err(err).Str("tag", name).Msg("library: tag resolution failed, skipping")
			continue
		}
		if seen[tg.ID] {
			continue
		}
		seen[tg.ID] = true
		ids = append(ids, tg.ID)
	}
	return ids
}
