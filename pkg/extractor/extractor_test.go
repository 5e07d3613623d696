package extractor

import (
	"testing"

	"github.com/dotsetgreg/personakit/pkg/persona"
)

func TestParseDelta(t *testing.T) {
	raw := `{"ops":[
		{"op":"SET","path":" /name ","value":"Lily","confidence":0.9,"evidence":"my name is Lily"},
		{"op":"append","path":"/interests","value":"hiking"}
	]}`
	delta, err := ParseDelta(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(delta.Ops) != 2 {
		t.Fatalf("ops = %+v", delta.Ops)
	}

	first := delta.Ops[0]
	if first.Op != persona.OpSet || first.Path != "/name" || first.Value != "Lily" {
		t.Fatalf("first = %+v", first)
	}
	if first.Confidence != 0.9 || first.Evidence != "my name is Lily" {
		t.Fatalf("first = %+v", first)
	}
	if first.Source != "chat" || first.UpdatedAt.IsZero() {
		t.Fatalf("defaults missing: %+v", first)
	}

	second := delta.Ops[1]
	if second.Op != persona.OpAppend || second.Confidence != 0.7 {
		t.Fatalf("second = %+v", second)
	}
}

func TestParseDeltaStripsCodeFence(t *testing.T) {
	fenced := "```json\n{\"ops\":[{\"op\":\"set\",\"path\":\"/name\",\"value\":\"Lily\"}]}\n```"
	delta, err := ParseDelta(fenced)
	if err != nil {
		t.Fatalf("parse fenced: %v", err)
	}
	if len(delta.Ops) != 1 || delta.Ops[0].Path != "/name" {
		t.Fatalf("ops = %+v", delta.Ops)
	}

	bare := "```\n{\"ops\":[]}\n```"
	delta, err = ParseDelta(bare)
	if err != nil {
		t.Fatalf("parse bare fence: %v", err)
	}
	if len(delta.Ops) != 0 {
		t.Fatalf("ops = %+v", delta.Ops)
	}
}

func TestParseDeltaEmptyPayload(t *testing.T) {
	for _, raw := range []string{"", "   ", "```\n```"} {
		delta, err := ParseDelta(raw)
		if err != nil {
			t.Fatalf("parse %q: %v", raw, err)
		}
		if len(delta.Ops) != 0 {
			t.Fatalf("parse %q ops = %+v", raw, delta.Ops)
		}
	}
}

func TestParseDeltaBadJSON(t *testing.T) {
	if _, err := ParseDelta("{not json"); err == nil {
		t.Fatal("malformed payload accepted")
	}
}
