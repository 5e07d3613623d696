// Package extractor turns conversation transcripts into profile deltas. The
// heuristic extractor covers offline and test use; the OpenAI extractor is
// the production path.
package extractor

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dotsetgreg/personakit/pkg/persona"
)

// deltaWire is the JSON shape extractors emit: {"ops": [...]}.
type deltaWire struct {
	Ops []opWire `json:"ops"`
}

type opWire struct {
	Op         string      `json:"op"`
	Path       string      `json:"path"`
	Value      interface{} `json:"value"`
	Confidence float64     `json:"confidence"`
	Evidence   string      `json:"evidence"`
}

// ParseDelta decodes a delta payload, tolerating markdown code fences around
// the JSON. Ops get chat-source defaults; validation happens at apply time.
func ParseDelta(raw string) (persona.ProfileDelta, error) {
	raw = stripCodeFence(raw)
	if raw == "" {
		return persona.ProfileDelta{}, nil
	}
	var wire deltaWire
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return persona.ProfileDelta{}, fmt.Errorf("parse delta payload: %w", err)
	}
	now := time.Now().UTC()
	delta := persona.ProfileDelta{}
	for _, w := range wire.Ops {
		op := persona.PatchOp{
			Op:         persona.Op(strings.ToLower(strings.TrimSpace(w.Op))),
			Path:       strings.TrimSpace(w.Path),
			Value:      w.Value,
			Confidence: w.Confidence,
			Evidence:   strings.TrimSpace(w.Evidence),
			Source:     "chat",
			UpdatedAt:  now,
		}
		if op.Confidence == 0 {
			op.Confidence = 0.7
		}
		delta.Ops = append(delta.Ops, op)
	}
	return delta, nil
}

func stripCodeFence(raw string) string {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "```") {
		return raw
	}
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(strings.TrimSpace(raw), "```")
	return strings.TrimSpace(raw)
}
