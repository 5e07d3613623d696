package persona

// OpposingPair designates two list fields that must not share elements. When
// they do, the element is kept in Keep and dropped from Drop.
type OpposingPair struct {
	Drop string
	Keep string
}

// DefaultOpposingPairs covers the known contradictions: a liked item that
// also appears in the avoid list is treated as disliked.
func DefaultOpposingPairs() []OpposingPair {
	return []OpposingPair{
		{Drop: "interests", Keep: "dislikes"},
		{Drop: "brands", Keep: "content_sensitivities"},
	}
}

// ResolveConflicts post-processes a document after a full delta has been
// applied. It runs once per delta rather than per op, because one batch may
// legitimately touch both sides of a pair in either order.
func ResolveConflicts(doc Document, pairs []OpposingPair) {
	for _, pair := range pairs {
		dropList, ok := doc[pair.Drop].([]interface{})
		if !ok || len(dropList) == 0 {
			continue
		}
		keepList, ok := doc[pair.Keep].([]interface{})
		if !ok || len(keepList) == 0 {
			continue
		}
		keepSet := make(map[string]struct{}, len(keepList))
		for _, v := range keepList {
			if s, ok := v.(string); ok {
				keepSet[NormToken(s)] = struct{}{}
			}
		}
		cleaned := make([]interface{}, 0, len(dropList))
		for _, v := range dropList {
			if s, ok := v.(string); ok {
				if _, clash := keepSet[NormToken(s)]; clash {
					continue
				}
			}
			cleaned = append(cleaned, v)
		}
		if len(cleaned) != len(dropList) {
			doc[pair.Drop] = cleaned
		}
	}
}
