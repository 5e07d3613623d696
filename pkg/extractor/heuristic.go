package extractor

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/dotsetgreg/personakit/pkg/persona"
)

var (
	likeRegex       = regexp.MustCompile(`(?i)\bi (?:really )?(?:like|love|enjoy|am into)\s+([a-z0-9'\- ]{2,60})`)
	dislikeRegex    = regexp.MustCompile(`(?i)\bi (?:really )?(?:hate|dislike|avoid|can't stand|cannot stand)\s+([a-z0-9'\- ]{2,60})`)
	notAnymoreRegex = regexp.MustCompile(`(?i)\bnot\s+(?:into\s+)?([a-z0-9'\- ]{2,40})\s+anymore`)
	stoppedRegex    = regexp.MustCompile(`(?i)\bi (?:stopped|quit|gave up)\s+([a-z0-9'\- ]{2,40})`)
	nameRegex       = regexp.MustCompile(`(?i)\b(?:my name is|call me|i go by)\s+([A-Za-z0-9 _\-]{2,50})`)
	homeRegex       = regexp.MustCompile(`(?i)\bi live in\s+([A-Za-z0-9,'\- ]{2,80})`)
	currentRegex    = regexp.MustCompile(`(?i)\bi(?:'m| am) (?:currently |now )?(?:in|visiting|staying in)\s+([A-Za-z0-9,'\- ]{2,80})`)
	ageRegex        = regexp.MustCompile(`(?i)\bi(?:'m| am)\s+(\d{1,3})(?:\s+years? old)?\b`)
	workRegex       = regexp.MustCompile(`(?i)\bi work (?:as|at|for)\s+([a-z0-9,'\- ]{2,80})`)
)

// Heuristic extracts profile deltas from transcripts with first-person
// pattern rules. No network, deterministic; the default for local setups and
// the test double for the orchestrator.
type Heuristic struct{}

func NewHeuristic() *Heuristic {
	return &Heuristic{}
}

// ExtractDelta scans user lines only; assistant turns never change the
// profile. Negations ("not jazz anymore") emit a remove before likes append,
// so a liking and a retraction in one transcript land in the right order.
func (h *Heuristic) ExtractDelta(_ context.Context, _ string, _ string, transcript string) (persona.ProfileDelta, error) {
	now := time.Now().UTC()
	delta := persona.ProfileDelta{}
	seen := map[string]struct{}{}

	add := func(op persona.Op, path, value string, confidence float64, evidence string) {
		value = trimPhrase(value)
		if value == "" {
			return
		}
		key := string(op) + "|" + path + "|" + persona.NormToken(value)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		delta.Ops = append(delta.Ops, persona.PatchOp{
			Op:         op,
			Path:       path,
			Value:      value,
			Confidence: confidence,
			Evidence:   evidence,
			Source:     "chat",
			UpdatedAt:  now,
		})
	}

	for _, line := range strings.Split(transcript, "\n") {
		content, ok := userLine(line)
		if !ok {
			continue
		}

		for _, m := range notAnymoreRegex.FindAllStringSubmatch(content, -1) {
			add(persona.OpRemove, "/interests", m[1], 0.75, content)
		}
		for _, m := range stoppedRegex.FindAllStringSubmatch(content, -1) {
			add(persona.OpRemove, "/interests", m[1], 0.7, content)
		}
		for _, m := range dislikeRegex.FindAllStringSubmatch(content, -1) {
			add(persona.OpRemove, "/interests", m[1], 0.7, content)
			add(persona.OpAppend, "/dislikes", m[1], 0.8, content)
		}
		for _, m := range likeRegex.FindAllStringSubmatch(content, -1) {
			add(persona.OpAppend, "/interests", m[1], 0.8, content)
		}
		for _, m := range nameRegex.FindAllStringSubmatch(content, -1) {
			add(persona.OpSet, "/name", m[1], 0.85, content)
		}
		for _, m := range homeRegex.FindAllStringSubmatch(content, -1) {
			add(persona.OpSet, "/home_location", m[1], 0.75, content)
		}
		for _, m := range currentRegex.FindAllStringSubmatch(content, -1) {
			add(persona.OpSet, "/current_location", m[1], 0.65, content)
		}
		for _, m := range ageRegex.FindAllStringSubmatch(content, -1) {
			add(persona.OpSet, "/age", m[1], 0.7, content)
		}
		for _, m := range workRegex.FindAllStringSubmatch(content, -1) {
			add(persona.OpSet, "/employment", m[1], 0.7, content)
		}
	}

	return delta, nil
}

// userLine splits a "role: content" transcript line, accepting bare lines as
// user content for direct single-utterance input.
func userLine(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", false
	}
	role, content, found := strings.Cut(line, ":")
	if !found {
		return line, true
	}
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "user":
		return strings.TrimSpace(content), true
	case "assistant", "system", "tool":
		return "", false
	default:
		return line, true
	}
}

func trimPhrase(in string) string {
	in = strings.TrimSpace(in)
	in = strings.Trim(in, " .,!?:;\"'")
	lower := strings.ToLower(in)
	for _, stop := range []string{" but ", " and ", " though", " because"} {
		if idx := strings.Index(lower, stop); idx > 0 {
			in = strings.TrimSpace(in[:idx])
			lower = strings.ToLower(in)
		}
	}
	if len(in) < 2 {
		return ""
	}
	return in
}
