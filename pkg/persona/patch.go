package persona

import (
	"fmt"
	"strings"
	"time"
)

// Op is the patch operation kind.
type Op string

const (
	OpSet    Op = "set"
	OpAppend Op = "append"
	OpRemove Op = "remove"
	OpClear  Op = "clear"
)

// PatchOp is one edit instruction produced by the delta-extraction
// collaborator. Append/Remove require a string value; Clear carries none.
type PatchOp struct {
	Op         Op          `json:"op"`
	Path       string      `json:"path"`
	Value      interface{} `json:"value,omitempty"`
	Confidence float64     `json:"confidence"`
	Evidence   string      `json:"evidence,omitempty"`
	Source     string      `json:"source,omitempty"`
	UpdatedAt  time.Time   `json:"updated_at,omitempty"`
}

// ProfileDelta is an ordered sequence of patch ops; later ops may overwrite
// earlier ones on the same path within one delta.
type ProfileDelta struct {
	Ops []PatchOp `json:"ops"`
}

// NewPatchOp builds a validated op. Construction-time validation is the
// strict path; ops arriving from unvalidated JSON are re-checked (and skipped
// with a reason) during application.
func NewPatchOp(op Op, path string, value interface{}) (PatchOp, error) {
	p := PatchOp{
		Op:         op,
		Path:       strings.TrimSpace(path),
		Value:      value,
		Confidence: 0.7,
		Source:     "chat",
		UpdatedAt:  time.Now().UTC(),
	}
	if err := p.Validate(); err != nil {
		return PatchOp{}, err
	}
	return p, nil
}

// Validate checks op kind and value arity.
func (p PatchOp) Validate() error {
	switch p.Op {
	case OpSet, OpAppend, OpRemove, OpClear:
	default:
		return fmt.Errorf("patch op %q: unknown op kind", p.Op)
	}
	if len(ParsePointer(p.Path)) == 0 {
		return fmt.Errorf("patch op %s: %w", p.Op, ErrEmptyPath)
	}
	switch p.Op {
	case OpAppend, OpRemove:
		if _, ok := p.Value.(string); !ok {
			return fmt.Errorf("patch op %s %s: value must be a string", p.Op, p.Path)
		}
	case OpClear:
		if p.Value != nil {
			return fmt.Errorf("patch op clear %s: value must be empty", p.Path)
		}
	case OpSet:
		if p.Value == nil {
			return fmt.Errorf("patch op set %s: value is required", p.Path)
		}
	}
	if p.Confidence < 0 || p.Confidence > 1 {
		return fmt.Errorf("patch op %s %s: confidence %v outside [0,1]", p.Op, p.Path, p.Confidence)
	}
	return nil
}

// topField returns the first path token, which must name a schema field.
func (p PatchOp) topField() string {
	tokens := ParsePointer(p.Path)
	if len(tokens) == 0 {
		return ""
	}
	return tokens[0]
}
