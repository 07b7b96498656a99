package chunker

import (
	"errors"
	"fmt"
)

var (
	// ErrIntegrity means the reassembled payload does not match its manifest.
	ErrIntegrity       = errors.New("chunker: integrity check failed")
	ErrInvalidManifest = errors.New("chunker: invalid manifest")
)

// ChunkError pins a pipeline failure to a single chunk.
type ChunkError struct {
	Op    string // "upload", "download" or "verify"
	Index int
	ID    string
	Err   error
}

func (e *ChunkError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("chunker: %s chunk %d (%s): %v", e.Op, e.Index, e.ID, e.Err)
	}
	return fmt.Sprintf("chunker: %s chunk %d: %v", e.Op, e.Index, e.Err)
}

func (e *ChunkError) Unwrap() error { return e.Err }
