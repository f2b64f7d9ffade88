package filecontext

import (
	"context"
	"fmt"
	"os"

	json "github.com/goccy/go-json"

	"github.com/haasonsaas/gemini-exfil-detector/internal/xerrors"
)

// FileSource is a Source that answers file-metadata lookups from a JSON
// file on disk keyed by doc id: the reference FileMetadataSource adapter
// for local runs and tests. A production deployment wires a real Drive
// API metadata client behind the same interface.
type FileSource struct {
	byDoc map[string]RawMetadata
}

type wireMetadata struct {
	DocID       string           `json:"doc_id"`
	Title       string           `json:"title"`
	Owner       string           `json:"owner"`
	Labels      []string         `json:"labels"`
	Permissions []wirePermission `json:"permissions"`
}

type wirePermission struct {
	Type  string `json:"type"`
	Email string `json:"email"`
}

// NewFileSource reads path once at construction and indexes every record
// by doc id.
func NewFileSource(path string) (*FileSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file metadata file %s: %w", path, err)
	}

	var wire []wireMetadata
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("decoding file metadata file %s: %w", path, err)
	}

	byDoc := make(map[string]RawMetadata, len(wire))
	for _, w := range wire {
		perms := make([]Permission, len(w.Permissions))
		for i, p := range w.Permissions {
			perms[i] = Permission{Type: p.Type, Email: p.Email}
		}
		byDoc[w.DocID] = RawMetadata{
			DocID:       w.DocID,
			Title:       w.Title,
			Owner:       w.Owner,
			Labels:      w.Labels,
			Permissions: perms,
		}
	}

	return &FileSource{byDoc: byDoc}, nil
}

// Get returns doc's metadata, or an error satisfying
// errors.Is(err, xerrors.ErrFileNotFound) if doc is absent.
func (f *FileSource) Get(ctx context.Context, doc string) (RawMetadata, error) {
	meta, ok := f.byDoc[doc]
	if !ok {
		return RawMetadata{}, xerrors.ErrFileNotFound
	}
	return meta, nil
}
