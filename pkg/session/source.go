package session

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// InputSource resolves named WAV blobs for stem ingest.
type InputSource interface {
	// Read returns the raw stem files keyed by file name.
	Read() (map[string][]byte, error)
}

// wavExtension is the stem file extension DirSource accepts.
const wavExtension = ".wav"

// DirSource reads every WAV file in a local directory, non-recursively.
type DirSource struct {
	// Path is the directory holding stem files.
	Path string
}

// Read implements InputSource.
func (s DirSource) Read() (map[string][]byte, error) {
	entries, err := os.ReadDir(s.Path)
	if err != nil {
		return nil, fmt.Errorf("read stem directory %s: %w", s.Path, err)
	}

	blobs := make(map[string][]byte)

	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), wavExtension) {
			continue
		}

		data, readErr := os.ReadFile(filepath.Join(s.Path, entry.Name()))
		if readErr != nil {
			return nil, fmt.Errorf("read stem %s: %w", entry.Name(), readErr)
		}

		blobs[entry.Name()] = data
	}

	return blobs, nil
}

// MapSource serves stems from an in-memory buffer map, the transport-backed
// ingest path used by the worker loop.
type MapSource map[string][]byte

// Read implements InputSource.
func (s MapSource) Read() (map[string][]byte, error) {
	return s, nil
}
