// Package document abstracts the editing surface of the host application
// the add-in runs inside. Ranges are half-open rune offsets: [Start, End).
package document

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidRange = errors.New("range out of bounds")
	ErrNotSupported = errors.New("not supported by this document")
)

type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

func (r Range) Len() int {
	return r.End - r.Start
}

func (r Range) IsEmpty() bool {
	return r.Start == r.End
}

// Contains reports whether o lies entirely within r.
func (r Range) Contains(o Range) bool {
	return o.Start >= r.Start && o.End <= r.End
}

func (r Range) String() string {
	return fmt.Sprintf("[%d,%d)", r.Start, r.End)
}

// Location says where text goes relative to a range. The names follow the
// host's insert locations.
type Location int

const (
	LocationReplace Location = iota
	LocationStart
	LocationEnd
)

func (l Location) String() string {
	switch l {
	case LocationReplace:
		return "Replace"
	case LocationStart:
		return "Start"
	case LocationEnd:
		return "End"
	default:
		return fmt.Sprintf("Location(%d)", int(l))
	}
}

type SearchOptions struct {
	MatchCase      bool
	MatchWholeWord bool
}

type Comment struct {
	ID        string    `json:"id"`
	Range     Range     `json:"range"`
	Text      string    `json:"text"`
	Anchor    string    `json:"anchor"`
	CreatedAt time.Time `json:"createdAt"`
}

type Highlight struct {
	Range Range  `json:"range"`
	Color string `json:"color"`
}

// Host is the editing capability the applier needs. Mutations are pending
// until Sync flushes them to the host.
type Host interface {
	// Selection returns the current selection and its text.
	Selection(ctx context.Context) (Range, string, error)
	// InsertText puts text at loc relative to r and returns the range the
	// new text occupies.
	InsertText(ctx context.Context, r Range, text string, loc Location) (Range, error)
	// Search returns every match of q inside within, in document order.
	Search(ctx context.Context, within Range, q string, opts SearchOptions) ([]Range, error)
	InsertComment(ctx context.Context, r Range, text string) (Comment, error)
	SetHighlight(ctx context.Context, r Range, color string) error
	// EnableTrackChanges turns on revision marking. Hosts without revision
	// support return ErrNotSupported.
	EnableTrackChanges(ctx context.Context) error
	Sync(ctx context.Context) error
}
