package document

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"
)

var ErrNoMatch = errors.New("text not found in document")

// Call names a host capability, for fault injection and call accounting.
type Call string

const (
	CallSelection          Call = "selection"
	CallInsertText         Call = "insertText"
	CallSearch             Call = "search"
	CallInsertComment      Call = "insertComment"
	CallSetHighlight       Call = "setHighlight"
	CallEnableTrackChanges Call = "enableTrackChanges"
	CallSync               Call = "sync"
)

// FaultFunc decides whether the nth (1-based) call of a kind fails.
type FaultFunc func(call Call, n int) error

// Snapshot is the document state as of the last Sync.
type Snapshot struct {
	Text       string      `json:"text"`
	Selection  Range       `json:"selection"`
	Comments   []Comment   `json:"comments"`
	Highlights []Highlight `json:"highlights"`
	Revisions  []Revision  `json:"revisions"`
	Version    int         `json:"version"`
}

type MemoryOption func(*Memory)

// WithoutTrackChanges makes EnableTrackChanges fail with ErrNotSupported,
// like a plain-text host.
func WithoutTrackChanges() MemoryOption {
	return func(m *Memory) {
		m.trackingSupported = false
	}
}

func WithFaults(f FaultFunc) MemoryOption {
	return func(m *Memory) {
		m.faults = f
	}
}

func withAnnotations(sc sidecar) MemoryOption {
	return func(m *Memory) {
		m.comments = slices.Clone(sc.Comments)
		m.highlights = slices.Clone(sc.Highlights)
		m.revisions = slices.Clone(sc.Revisions)
	}
}

// Memory is an in-process Host. Edits land in a live buffer immediately so
// later calls in the same operation see them, but Committed only changes on
// Sync.
type Memory struct {
	mu sync.Mutex

	text       []rune
	selection  Range
	comments   []Comment
	highlights []Highlight
	revisions  []Revision

	tracking          bool
	trackingSupported bool

	committed Snapshot
	calls     map[Call]int
	faults    FaultFunc
	now       func() time.Time
}

var _ Host = (*Memory)(nil)

func NewMemory(text string, opts ...MemoryOption) *Memory {
	m := &Memory{
		text:              []rune(text),
		trackingSupported: true,
		calls:             make(map[Call]int),
		now:               time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	m.committed = m.snapshotLocked()
	return m
}

// Select moves the selection. It takes effect immediately.
func (m *Memory) Select(r Range) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkRange(r); err != nil {
		return err
	}
	m.selection = r
	m.committed.Selection = r
	return nil
}

// SelectText selects the first exact occurrence of q.
func (m *Memory) SelectText(q string) error {
	m.mu.Lock()
	matches := m.findLocked(Range{0, len(m.text)}, []rune(q), SearchOptions{MatchCase: true})
	m.mu.Unlock()
	if len(matches) == 0 {
		return fmt.Errorf("%w: %q", ErrNoMatch, q)
	}
	return m.Select(matches[0])
}

func (m *Memory) Committed() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneSnapshot(m.committed)
}

// Live returns the text including unsynced edits.
func (m *Memory) Live() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return string(m.text)
}

// Calls reports how many times a capability was invoked, failed calls
// included.
func (m *Memory) Calls(call Call) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[call]
}

func (m *Memory) Selection(ctx context.Context) (Range, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(ctx, CallSelection); err != nil {
		return Range{}, "", err
	}
	sel := m.selection
	return sel, string(m.text[sel.Start:sel.End]), nil
}

func (m *Memory) InsertText(ctx context.Context, r Range, text string, loc Location) (Range, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(ctx, CallInsertText); err != nil {
		return Range{}, err
	}
	if err := m.checkRange(r); err != nil {
		return Range{}, err
	}

	start, end := r.Start, r.End
	switch loc {
	case LocationReplace:
	case LocationStart:
		end = start
	case LocationEnd:
		start = end
	default:
		return Range{}, fmt.Errorf("insert text: unsupported location %s", loc)
	}

	ins := []rune(text)
	next := make([]rune, 0, len(m.text)-(end-start)+len(ins))
	next = append(next, m.text[:start]...)
	next = append(next, ins...)
	next = append(next, m.text[end:]...)
	m.text = next

	edited := Range{start, end}
	n := len(ins)
	m.selection = shift(m.selection, edited, n)
	for i := range m.comments {
		m.comments[i].Range = shift(m.comments[i].Range, edited, n)
	}
	for i := range m.highlights {
		m.highlights[i].Range = shift(m.highlights[i].Range, edited, n)
	}
	return Range{start, start + n}, nil
}

func (m *Memory) Search(ctx context.Context, within Range, q string, opts SearchOptions) ([]Range, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(ctx, CallSearch); err != nil {
		return nil, err
	}
	if err := m.checkRange(within); err != nil {
		return nil, err
	}
	return m.findLocked(within, []rune(q), opts), nil
}

func (m *Memory) InsertComment(ctx context.Context, r Range, text string) (Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(ctx, CallInsertComment); err != nil {
		return Comment{}, err
	}
	if err := m.checkRange(r); err != nil {
		return Comment{}, err
	}
	if text == "" {
		return Comment{}, errors.New("insert comment: empty text")
	}
	c := Comment{
		ID:        uuid.NewString(),
		Range:     r,
		Text:      text,
		Anchor:    string(m.text[r.Start:r.End]),
		CreatedAt: m.now().UTC(),
	}
	m.comments = append(m.comments, c)
	return c, nil
}

func (m *Memory) SetHighlight(ctx context.Context, r Range, color string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(ctx, CallSetHighlight); err != nil {
		return err
	}
	if err := m.checkRange(r); err != nil {
		return err
	}
	if color == "" {
		return errors.New("set highlight: color required")
	}
	for i, h := range m.highlights {
		if h.Range == r {
			m.highlights[i].Color = color
			return nil
		}
	}
	m.highlights = append(m.highlights, Highlight{Range: r, Color: color})
	return nil
}

func (m *Memory) EnableTrackChanges(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(ctx, CallEnableTrackChanges); err != nil {
		return err
	}
	if !m.trackingSupported {
		return ErrNotSupported
	}
	m.tracking = true
	return nil
}

func (m *Memory) Sync(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(ctx, CallSync); err != nil {
		return err
	}
	if m.tracking {
		m.revisions = append(m.revisions, computeRevisions(m.committed.Text, string(m.text))...)
	}
	version := m.committed.Version + 1
	m.committed = m.snapshotLocked()
	m.committed.Version = version
	return nil
}

func (m *Memory) enter(ctx context.Context, call Call) error {
	m.calls[call]++
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.faults != nil {
		if err := m.faults(call, m.calls[call]); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) checkRange(r Range) error {
	if r.Start < 0 || r.End < r.Start || r.End > len(m.text) {
		return fmt.Errorf("%w: %s in document of length %d", ErrInvalidRange, r, len(m.text))
	}
	return nil
}

func (m *Memory) findLocked(within Range, q []rune, opts SearchOptions) []Range {
	if len(q) == 0 || len(q) > within.Len() {
		return nil
	}
	same := func(a, b rune) bool {
		if opts.MatchCase {
			return a == b
		}
		return foldEqual(a, b)
	}

	var matches []Range
	for i := within.Start; i+len(q) <= within.End; {
		hit := true
		for j, qr := range q {
			if !same(m.text[i+j], qr) {
				hit = false
				break
			}
		}
		if hit && opts.MatchWholeWord && !m.wordBoundary(i, i+len(q)) {
			hit = false
		}
		if hit {
			matches = append(matches, Range{i, i + len(q)})
			i += len(q)
			continue
		}
		i++
	}
	return matches
}

// foldEqual reports whether a and b are equal under simple Unicode case
// folding, so final sigma matches capital sigma.
func foldEqual(a, b rune) bool {
	if a == b {
		return true
	}
	for r := unicode.SimpleFold(a); r != a; r = unicode.SimpleFold(r) {
		if r == b {
			return true
		}
	}
	return false
}

func (m *Memory) wordBoundary(start, end int) bool {
	isWord := func(r rune) bool {
		return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
	}
	if start > 0 && isWord(m.text[start-1]) {
		return false
	}
	if end < len(m.text) && isWord(m.text[end]) {
		return false
	}
	return true
}

func (m *Memory) snapshotLocked() Snapshot {
	return cloneSnapshot(Snapshot{
		Text:       string(m.text),
		Selection:  m.selection,
		Comments:   m.comments,
		Highlights: m.highlights,
		Revisions:  m.revisions,
		Version:    m.committed.Version,
	})
}

func cloneSnapshot(s Snapshot) Snapshot {
	s.Comments = slices.Clone(s.Comments)
	s.Highlights = slices.Clone(s.Highlights)
	s.Revisions = slices.Clone(s.Revisions)
	return s
}

// shift moves r to account for edited being replaced by n runes. A range
// equal to the edited range becomes the new text. Text inserted exactly at
// a range's start lands before it; text inserted at its end lands after it.
func shift(r, edited Range, n int) Range {
	if r == edited {
		return Range{edited.Start, edited.Start + n}
	}
	delta := n - edited.Len()
	move := func(p int, isEnd bool) int {
		switch {
		case p < edited.Start:
			return p
		case p == edited.Start && isEnd:
			return p
		case p == edited.Start && edited.IsEmpty():
			return p + delta
		case p >= edited.End:
			return p + delta
		case isEnd:
			return edited.Start + n
		default:
			return edited.Start
		}
	}
	out := Range{move(r.Start, false), move(r.End, true)}
	if out.Start > out.End {
		out.Start = out.End
	}
	return out
}
