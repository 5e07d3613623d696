package persona

import (
	"fmt"
	"strings"
	"time"
)

// stringAppendSeparator joins string fragments accumulated through append ops
// on a scalar string field.
const stringAppendSeparator = "; "

// OpOutcome reports whether an op mutated the document or was skipped.
type OpOutcome string

const (
	OpApplied OpOutcome = "applied"
	OpSkipped OpOutcome = "skipped"
)

// OpResult is the per-op application verdict. Skips carry a reason so the
// caller can audit partial application instead of losing it silently.
type OpResult struct {
	Op      PatchOp   `json:"op"`
	Outcome OpOutcome `json:"outcome"`
	Reason  string    `json:"reason,omitempty"`
}

// ApplyReport aggregates the results of applying one delta.
type ApplyReport struct {
	Results   []OpResult `json:"results"`
	AppliedAt time.Time  `json:"applied_at"`
}

func (r ApplyReport) AppliedCount() int {
	total := 0
	for _, res := range r.Results {
		if res.Outcome == OpApplied {
			total++
		}
	}
	return total
}

func (r ApplyReport) SkippedCount() int {
	return len(r.Results) - r.AppliedCount()
}

func (r ApplyReport) HasApplied() bool {
	return r.AppliedCount() > 0
}

// Mutator applies patch ops to a document under a schema. Mutation failures
// are recovered as skipped results so a multi-op delta keeps making progress.
type Mutator struct {
	schema *Schema
}

func NewMutator(schema *Schema) *Mutator {
	if schema == nil {
		schema = DefaultSchema()
	}
	return &Mutator{schema: schema}
}

func (m *Mutator) Schema() *Schema {
	return m.schema
}

// Apply executes one op against doc in place and returns the verdict.
func (m *Mutator) Apply(doc Document, op PatchOp) OpResult {
	if err := op.Validate(); err != nil {
		return OpResult{Op: op, Outcome: OpSkipped, Reason: err.Error()}
	}
	if _, ok := m.schema.Field(op.topField()); !ok {
		return OpResult{Op: op, Outcome: OpSkipped, Reason: fmt.Sprintf("field %q: %v", op.topField(), ErrUnknownField)}
	}

	tokens := ParsePointer(op.Path)
	var err error
	switch op.Op {
	case OpSet:
		err = writeSet(doc, tokens, op.Value)
	case OpClear:
		err = clearPath(doc, tokens)
	case OpAppend:
		err = m.applyAppend(doc, tokens, op.Value.(string))
	case OpRemove:
		err = removeString(doc, tokens, op.Value.(string))
	}
	if err != nil {
		return OpResult{Op: op, Outcome: OpSkipped, Reason: err.Error()}
	}
	return OpResult{Op: op, Outcome: OpApplied}
}

// ApplyDelta runs every op in order, collecting per-op verdicts.
func (m *Mutator) ApplyDelta(doc Document, delta ProfileDelta) ApplyReport {
	report := ApplyReport{AppliedAt: time.Now().UTC()}
	for _, op := range delta.Ops {
		report.Results = append(report.Results, m.Apply(doc, op))
	}
	return report
}

func writeSet(doc map[string]interface{}, tokens []string, value interface{}) error {
	parent, key, err := ensureParent(doc, tokens)
	if err != nil {
		return err
	}
	parent[key] = cloneValue(value)
	return nil
}

// clearPath empties the terminal value in a shape-preserving way: lists
// become [], strings become "", anything else becomes nil.
func clearPath(doc map[string]interface{}, tokens []string) error {
	parent, key, err := ensureParent(doc, tokens)
	if err != nil {
		return err
	}
	switch parent[key].(type) {
	case []interface{}:
		parent[key] = []interface{}{}
	case string:
		parent[key] = ""
	default:
		parent[key] = nil
	}
	return nil
}

// applyAppend appends to a list with normalized de-dup, or concatenates onto
// a scalar string field with a separator.
func (m *Mutator) applyAppend(doc map[string]interface{}, tokens []string, value string) error {
	if spec, ok := m.schema.Field(tokens[0]); ok && len(tokens) == 1 && spec.Kind == FieldScalar {
		return appendString(doc, tokens, value)
	}
	return appendListString(doc, tokens, value)
}

func appendListString(doc map[string]interface{}, tokens []string, value string) error {
	return appendListValue(doc, tokens, value)
}

// appendListValue appends any scalar with normalized de-dup; list rebuilds
// feed numbers and booleans through here as well as strings.
func appendListValue(doc map[string]interface{}, tokens []string, value interface{}) error {
	list, parent, key, err := ensureList(doc, tokens)
	if err != nil {
		return err
	}
	norm := NormToken(value)
	for _, existing := range list {
		if NormToken(existing) == norm {
			return nil
		}
	}
	parent[key] = append(list, value)
	return nil
}

func appendString(doc map[string]interface{}, tokens []string, value string) error {
	parent, key, err := ensureParent(doc, tokens)
	if err != nil {
		return err
	}
	cur, _ := parent[key].(string)
	if strings.TrimSpace(cur) == "" {
		parent[key] = value
		return nil
	}
	parent[key] = cur + stringAppendSeparator + value
	return nil
}

// removeString drops list elements whose normalized form equals the value.
// A non-list target is left untouched.
func removeString(doc map[string]interface{}, tokens []string, value string) error {
	parent, key, err := ensureParent(doc, tokens)
	if err != nil {
		return err
	}
	list, ok := parent[key].([]interface{})
	if !ok {
		return nil
	}
	norm := NormToken(value)
	out := make([]interface{}, 0, len(list))
	for _, existing := range list {
		if s, ok := existing.(string); ok && NormToken(s) == norm {
			continue
		}
		out = append(out, existing)
	}
	parent[key] = out
	return nil
}
