package document

import (
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"
)

type RevisionKind string

const (
	RevisionInsert RevisionKind = "insert"
	RevisionDelete RevisionKind = "delete"
)

// Revision is a tracked change. Offset is in the text as it stood after the
// sync that recorded it.
type Revision struct {
	Kind   RevisionKind `json:"kind"`
	Offset int          `json:"offset"`
	Text   string       `json:"text"`
}

func computeRevisions(before, after string) []Revision {
	if before == after {
		return nil
	}
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(before, after, false)
	diffs = dmp.DiffCleanupSemantic(diffs)

	var (
		revs   []Revision
		offset int
	)
	for _, d := range diffs {
		n := utf8.RuneCountInString(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			offset += n
		case diffmatchpatch.DiffInsert:
			revs = append(revs, Revision{Kind: RevisionInsert, Offset: offset, Text: d.Text})
			offset += n
		case diffmatchpatch.DiffDelete:
			revs = append(revs, Revision{Kind: RevisionDelete, Offset: offset, Text: d.Text})
		}
	}
	return revs
}
