// Package store provides the sandboxed on-disk blob store holding
// audio and artwork files under an application-private root.
package store

import (
	"io"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// Subdirectory names under the sandbox root.
const (
	AudioDir   = "Audio"
	ArtworkDir = "Artwork"
)

// streamCopyBufSize is the buffer size for the fallback stream copy.
const streamCopyBufSize = 1 << 20 // 1 MiB

// Errors
var (
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrCopyFailed         = errors.New("file copy failed")
)

// Store resolves and mutates blobs under a sandbox root. Paths are
// always re-derived; no in-memory state is kept beyond the root.
type Store struct {
	root string
}

// New creates a store rooted at the given directory. The root is not
// touched until the first mutating operation.
func New(root string) *Store {
	return &Store{root: root}
}

// Root returns the sandbox root directory.
func (s *Store) Root() string {
	return s.root
}

// EnsureSubdir creates the named subdirectory under the sandbox root
// if absent and returns its absolute path. Idempotent.
func (s *Store) EnsureSubdir(name string) (string, error) {
	if s.root == "" {
		return "", errors.Wrap(ErrStorageUnavailable, "store root is not configured")
	}
	dir := filepath.Join(s.root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		zlog.Error().Err(err).Str("dir", dir).Msg("store: failed to create subdirectory")
		return "", errors.Wrapf(ErrStorageUnavailable, "create subdirectory %s", name)
	}
	return dir, nil
}

// ResolvePath returns the deterministic absolute path for a blob.
// It does not touch the filesystem.
func (s *Store) ResolvePath(subdir, filename string) string {
	return filepath.Join(s.root, subdir, filename)
}

// Exists reports whether the named blob is present on disk.
func (s *Store) Exists(subdir, filename string) bool {
	_, err := os.Stat(s.ResolvePath(subdir, filename))
	return err == nil
}

// CopyIn copies sourcePath into the named subdirectory as destFilename.
// The blob is always a byte copy, never a link: the store owns its
// contents and later changes to the source must not reach the blob.
// A failed direct copy falls back to a buffered stream copy; both
// paths failing yields ErrCopyFailed.
func (s *Store) CopyIn(sourcePath, subdir, destFilename string) error {
	dir, err := s.EnsureSubdir(subdir)
	if err != nil {
		return err
	}
	dest := filepath.Join(dir, destFilename)

	if err := copyFile(sourcePath, dest); err == nil {
		return nil
	}

	if err := streamCopy(sourcePath, dest); err != nil {
		zlog.Debug().Err(err).Str("source", sourcePath).Str("dest", dest).Msg("store: stream copy failed")
		return errors.Wrapf(ErrCopyFailed, "copy %s", filepath.Base(sourcePath))
	}
	return nil
}

// copyFile copies src to dst in one pass.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.Wrap(err, "open source")
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return errors.Wrap(err, "create destination")
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return errors.Wrap(err, "copy")
	}
	return out.Close()
}

// Delete removes the named blob if present. A missing blob is not an
// error.
func (s *Store) Delete(subdir, filename string) error {
	path := s.ResolvePath(subdir, filename)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "delete %s", filename)
	}
	return nil
}

// streamCopy copies src to dst through a fixed-size buffer, writing
// each read in full before advancing. A short or zero-length write
// fails the copy.
func streamCopy(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.Wrap(err, "open source")
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return errors.Wrap(err, "create destination")
	}
	defer out.Close()

	buf := make([]byte, streamCopyBufSize)
	for {
		n, rerr := in.Read(buf)
		if n > 0 {
			written := 0
			for written < n {
				w, werr := out.Write(buf[written:n])
				if w <= 0 {
					if werr == nil {
						werr = errors.New("short write")
					}
					return errors.Wrap(werr, "write destination")
				}
				written += w
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return errors.Wrap(rerr, "read source")
		}
	}
	return out.Close()
}
