// Package selection captures the user's current selection before a
// suggestion is requested.
package selection

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/legal-assistant/wordkit/internal/document"
)

var ErrNoSelection = errors.New("no text selected")

// NoSelectionMessage is shown when a flow needs a selection and has none.
const NoSelectionMessage = "Select some text in the document first."

// Snapshot is the selection as it was when read. It is never updated.
type Snapshot struct {
	Text       string         `json:"text"`
	Range      document.Range `json:"range"`
	CapturedAt time.Time      `json:"capturedAt"`
}

// IsEmpty reports whether the snapshot holds no usable text. Whitespace
// alone counts as empty.
func (s Snapshot) IsEmpty() bool {
	return strings.TrimSpace(s.Text) == ""
}

// Require returns ErrNoSelection for an empty snapshot.
func Require(s Snapshot) error {
	if s.IsEmpty() {
		return ErrNoSelection
	}
	return nil
}

type Reader struct {
	now func() time.Time
}

func NewReader() *Reader {
	return &Reader{now: time.Now}
}

// Read returns the host's selection text verbatim.
func (r *Reader) Read(ctx context.Context, doc document.Host) (Snapshot, error) {
	rng, text, err := doc.Selection(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read selection: %w", err)
	}
	return Snapshot{
		Text:       text,
		Range:      rng,
		CapturedAt: r.now(),
	}, nil
}
