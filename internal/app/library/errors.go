package library

import "github.com/cockroachdb/errors"

// ErrUnsupportedFormat is returned when an import source's extension
// is outside the allowed set.
//
// The full error taxonomy of the import path:
//   - ErrUnsupportedFormat (here)
//   - store.ErrCopyFailed, store.ErrStorageUnavailable
//   - resolver.ErrFileUnavailable
var ErrUnsupportedFormat = errors.New("unsupported audio format (use MP3, AAC, M4A or WAV)")
