package apply

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/legal-assistant/wordkit/internal/operation"
)

type Status string

const (
	StatusApplied Status = "applied"
	// StatusSkipped is a successful no-op: empty or unmatched quote.
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

type Outcome struct {
	Index  int
	Kind   operation.Kind
	Status Status
	Err    error
}

func (o Outcome) MarshalJSON() ([]byte, error) {
	var msg string
	if o.Err != nil {
		msg = o.Err.Error()
	}
	return json.Marshal(struct {
		Index  int    `json:"index"`
		Kind   string `json:"kind"`
		Status Status `json:"status"`
		Error  string `json:"error,omitempty"`
	}{o.Index, o.Kind.String(), o.Status, msg})
}

// Report lists the outcome of every operation of a batch in order.
type Report struct {
	Outcomes []Outcome `json:"outcomes"`
}

func (r Report) Count(s Status) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == s {
			n++
		}
	}
	return n
}

func (r Report) Applied() []Outcome {
	return r.filter(StatusApplied)
}

func (r Report) Failed() []Outcome {
	return r.filter(StatusFailed)
}

// Err joins the failures, or returns nil when every operation succeeded.
func (r Report) Err() error {
	var errs []error
	for _, o := range r.Failed() {
		errs = append(errs, fmt.Errorf("operation %d (%s): %w", o.Index+1, o.Kind, o.Err))
	}
	return errors.Join(errs...)
}

func (r Report) filter(s Status) []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Status == s {
			out = append(out, o)
		}
	}
	return out
}
