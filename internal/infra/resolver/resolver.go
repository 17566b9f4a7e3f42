// Package resolver turns possibly-remote file references into locally
// readable paths, hiding the materialization and polling logic from
// the library layer.
package resolver

import (
	"context"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// ErrFileUnavailable is returned when a reference never became locally
// reachable within the timeout.
var ErrFileUnavailable = errors.New("source file unavailable")

// Defaults for the reachability polling loop.
const (
	DefaultPollInterval = 50 * time.Millisecond
	DefaultTimeout      = 5 * time.Second
)

// Resolver resolves references against a chain of providers. A plain
// local file path short-circuits the chain entirely.
type Resolver struct {
	providers    []Provider
	pollInterval time.Duration
	timeout      time.Duration
}

// New creates a resolver over the given providers.
func New(providers []Provider, pollInterval, timeout time.Duration) *Resolver {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Resolver{providers: providers, pollInterval: pollInterval, timeout: timeout}
}

// MakeLocal returns a locally readable path for the reference. A
// reachable local file is returned unchanged. A remote reference
// triggers materialization through its provider and polls reachability
// until ready or the timeout elapses.
func (r *Resolver) MakeLocal(ctx context.Context, ref string) (string, error) {
	if isReachable(ref) {
		return ref, nil
	}

	p := r.providerFor(ref)
	if p == nil {
		return "", errors.Wrapf(ErrFileUnavailable, "no provider for reference %q", ref)
	}

	local, err := p.Resolve(ref)
	if err != nil {
		return "", errors.Wrapf(ErrFileUnavailable, "resolve %q", ref)
	}
	if isReachable(local) {
		return local, nil
	}

	if err := p.Materialize(ref); err != nil {
		zlog.Warn().Err(err).Str("ref", ref).Msg("resolver: materialization trigger failed")
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	b := backoff.WithContext(backoff.NewConstantBackOff(r.pollInterval), ctx)
	err = backoff.Retry(func() error {
		if isReachable(local) || p.Ready(ref) {
			return nil
		}
		return errors.Newf("%q not yet reachable", ref)
	}, b)
	if err != nil {
		return "", errors.Wrapf(ErrFileUnavailable, "reference %q", ref)
	}
	return local, nil
}

// SnapshotForReading obtains a read-stable view of the reference, safe
// against concurrent mutation by the hosting provider. Local files are
// returned as-is; provider errors surface unchanged.
func (r *Resolver) SnapshotForReading(ctx context.Context, ref string) (string, error) {
	if isReachable(ref) {
		return ref, nil
	}
	p := r.providerFor(ref)
	if p == nil {
		return "", errors.Wrapf(ErrFileUnavailable, "no provider for reference %q", ref)
	}
	return p.Snapshot(ctx, ref)
}

func (r *Resolver) providerFor(ref string) Provider {
	for _, p := range r.providers {
		if p.Matches(ref) {
			return p
		}
	}
	return nil
}

// isReachable reports whether the path denotes an existing regular
// file.
func isReachable(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.Mode().IsRegular()
}
