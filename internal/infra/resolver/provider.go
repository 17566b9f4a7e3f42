package resolver

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
)

// Provider maps a class of references to local files and drives their
// materialization.
type Provider interface {
	// Name identifies the provider in logs and errors.
	Name() string
	// Matches reports whether this provider handles the reference.
	Matches(ref string) bool
	// Resolve maps the reference to the local path where the file
	// appears once materialized. Pure; does not touch the filesystem.
	Resolve(ref string) (string, error)
	// Materialize triggers the remote download. Idempotent.
	Materialize(ref string) error
	// Ready reports whether the provider considers the item fully
	// materialized ("download complete").
	Ready(ref string) bool
	// Snapshot produces a read-stable local copy of the item.
	Snapshot(ctx context.Context, ref string) (string, error)
}

// SyncDirProvider models a cloud-sync staging folder: references of
// the form "<scheme>name" map to files inside a directory that an
// external sync agent fills in. Materialization drops a ".want"
// marker for the agent; an item is ready when its file exists and no
// ".part" sidecar remains.
type SyncDirProvider struct {
	name   string
	dir    string
	scheme string
}

// NewSyncDirProvider creates a provider over the given staging
// directory, matching references with the given scheme prefix
// (for example "sync://").
func NewSyncDirProvider(name, dir, scheme string) *SyncDirProvider {
	return &SyncDirProvider{name: name, dir: dir, scheme: scheme}
}

func (p *SyncDirProvider) Name() string { return p.name }

func (p *SyncDirProvider) Matches(ref string) bool {
	return strings.HasPrefix(ref, p.scheme)
}

func (p *SyncDirProvider) Resolve(ref string) (string, error) {
	rel := strings.TrimPrefix(ref, p.scheme)
	if rel == "" || strings.Contains(rel, "..") {
		return "", errors.Newf("invalid sync reference %q", ref)
	}
	return filepath.Join(p.dir, filepath.FromSlash(rel)), nil
}

func (p *SyncDirProvider) Materialize(ref string) error {
	local, err := p.Resolve(ref)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		return errors.Wrap(err, "create staging directory")
	}
	return os.WriteFile(local+".want", nil, 0o644)
}

func (p *SyncDirProvider) Ready(ref string) bool {
	local, err := p.Resolve(ref)
	if err != nil {
		return false
	}
	if _, err := os.Stat(local); err != nil {
		return false
	}
	_, err = os.Stat(local + ".part")
	return os.IsNotExist(err)
}

// Snapshot copies the materialized file to a temp file so a concurrent
// re-sync cannot mutate the bytes under the reader.
func (p *SyncDirProvider) Snapshot(ctx context.Context, ref string) (string, error) {
	local, err := p.Resolve(ref)
	if err != nil {
		return "", err
	}

	in, err := os.Open(local)
	if err != nil {
		return "", errors.Wrapf(err, "open %q for snapshot", ref)
	}
	defer in.Close()

	out, err := os.CreateTemp("", "retrobox-snapshot-*"+filepath.Ext(local))
	if err != nil {
		return "", errors.Wrap(err, "create snapshot file")
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		os.Remove(out.Name())
		return "", errors.Wrapf(err, "snapshot %q", ref)
	}
	return out.Name(), nil
}
