package operation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/marcozac/go-jsonc"
)

// Batch is the ordered list of operations returned by one suggestion call.
type Batch []EditOperation

// Envelope is the response body shared by every suggestion endpoint.
type Envelope struct {
	Operations Batch  `json:"operations"`
	Model      string `json:"model,omitempty"`
}

func (b Batch) Kinds() []Kind {
	kinds := make([]Kind, len(b))
	for i, op := range b {
		kinds[i] = op.Kind
	}
	return kinds
}

// UnmarshalJSON decodes entries one by one. An entry that fails to decode is
// kept in place with its error so that only that operation fails when the
// batch is applied.
func (b *Batch) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: operations must be an array: %v", ErrInvalidOperation, err)
	}
	out := make(Batch, len(raw))
	for i, entry := range raw {
		var op EditOperation
		if err := json.Unmarshal(entry, &op); err != nil {
			out[i] = EditOperation{decodeErr: fmt.Errorf("operation %d: %w", i, err)}
			continue
		}
		out[i] = op
	}
	*b = out
	return nil
}

// DecodeBatch reads a suggestion response body.
func DecodeBatch(r io.Reader) (Envelope, error) {
	var env Envelope
	if err := json.NewDecoder(r).Decode(&env); err != nil {
		return Envelope{}, fmt.Errorf("decode operations: %w", err)
	}
	if env.Operations == nil {
		env.Operations = Batch{}
	}
	return env, nil
}

// DecodeBatchJSONC reads a hand-written batch file. Comments are allowed and
// the file may hold either an envelope or a bare array of operations.
func DecodeBatchJSONC(data []byte) (Envelope, error) {
	var raw json.RawMessage
	if err := jsonc.Unmarshal(data, &raw); err != nil {
		return Envelope{}, ErrInvalidBatchFile{err}
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var ops Batch
		if err := json.Unmarshal(trimmed, &ops); err != nil {
			return Envelope{}, ErrInvalidBatchFile{err}
		}
		return Envelope{Operations: ops}, nil
	}
	var env Envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return Envelope{}, ErrInvalidBatchFile{err}
	}
	if env.Operations == nil {
		env.Operations = Batch{}
	}
	return env, nil
}

type ErrInvalidBatchFile struct {
	source error
}

func (e ErrInvalidBatchFile) Error() string {
	return "invalid batch file: " + e.source.Error()
}

func (e ErrInvalidBatchFile) Unwrap() error {
	return e.source
}
