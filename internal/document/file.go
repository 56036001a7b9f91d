package document

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

type sidecar struct {
	Comments   []Comment   `json:"comments"`
	Highlights []Highlight `json:"highlights,omitempty"`
	Revisions  []Revision  `json:"revisions,omitempty"`
}

// SidecarPath is where annotations for a document file are kept.
func SidecarPath(path string) string {
	return path + ".comments.json"
}

// LoadFile opens a plain-text document and any annotations saved next to it.
func LoadFile(path string, opts ...MemoryOption) (*Memory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}

	var sc sidecar
	raw, err := os.ReadFile(SidecarPath(path))
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read annotations: %w", err)
	default:
		if err := json.Unmarshal(raw, &sc); err != nil {
			return nil, fmt.Errorf("parse annotations %s: %w", SidecarPath(path), err)
		}
	}

	opts = append([]MemoryOption{withAnnotations(sc)}, opts...)
	return NewMemory(string(data), opts...), nil
}

// SaveFile writes the committed state of a document. The sidecar is only
// written when there is something to annotate.
func SaveFile(path string, snap Snapshot) error {
	if err := os.WriteFile(path, []byte(snap.Text), 0o644); err != nil {
		return fmt.Errorf("write document: %w", err)
	}
	if len(snap.Comments) == 0 && len(snap.Highlights) == 0 && len(snap.Revisions) == 0 {
		return nil
	}
	data, err := json.MarshalIndent(sidecar{
		Comments:   snap.Comments,
		Highlights: snap.Highlights,
		Revisions:  snap.Revisions,
	}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(SidecarPath(path), data, 0o644); err != nil {
		return fmt.Errorf("write annotations: %w", err)
	}
	return nil
}
