package chunker

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/crypto/blake2b"
)

const (
	// ManifestContentType marks a stored object as a chunk manifest.
	ManifestContentType = "manifest"
	manifestVersion     = 1
)

// Manifest describes how to rebuild an oversized payload from its chunks.
// Index i of Chunks covers bytes [i*ChunkSize, min((i+1)*ChunkSize, TotalSize)).
type Manifest struct {
	Version          int        `json:"version"`
	OriginalFilename string     `json:"original_filename"`
	ContentType      string     `json:"content_type"`
	TotalSize        int64      `json:"total_size"`
	ChunkCount       int        `json:"chunk_count"`
	ChunkSize        int64      `json:"chunk_size"`
	Chunks           []string   `json:"chunks"`
	Checksum         string     `json:"checksum,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
}

// ChunkCountFor returns ceil(total/chunkSize).
func ChunkCountFor(total, chunkSize int64) int {
	if total <= 0 || chunkSize <= 0 {
		return 0
	}
	return int((total + chunkSize - 1) / chunkSize)
}

// ChunkRange returns the byte range covered by chunk i.
func (m Manifest) ChunkRange(i int) (start, end int64) {
	start = int64(i) * m.ChunkSize
	end = start + m.ChunkSize
	if end > m.TotalSize {
		end = m.TotalSize
	}
	return start, end
}

func (m Manifest) Validate() error {
	if m.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk_size %d", ErrInvalidManifest, m.ChunkSize)
	}
	if m.TotalSize <= 0 {
		return fmt.Errorf("%w: total_size %d", ErrInvalidManifest, m.TotalSize)
	}
	if want := ChunkCountFor(m.TotalSize, m.ChunkSize); m.ChunkCount != want {
		return fmt.Errorf("%w: chunk_count %d, want %d", ErrInvalidManifest, m.ChunkCount, want)
	}
	if len(m.Chunks) != m.ChunkCount {
		return fmt.Errorf("%w: %d chunk ids for chunk_count %d", ErrInvalidManifest, len(m.Chunks), m.ChunkCount)
	}
	for i, id := range m.Chunks {
		if id == "" {
			return fmt.Errorf("%w: empty id for chunk %d", ErrInvalidManifest, i)
		}
	}
	return nil
}

func (m Manifest) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

func ParseManifest(data []byte) (Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	if err := m.Validate(); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

// Checksum is the hex blake2b-256 digest of data.
func Checksum(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}
