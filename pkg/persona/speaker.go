package persona

import (
	"fmt"
	"math"
	"sync"
)

const (
	// DefaultMatchThreshold is the minimum cosine similarity for an utterance
	// to be attributed to a known speaker.
	DefaultMatchThreshold = 0.75

	// DefaultBlendBeta weights the stored vector in the EMA update; the
	// identity drifts slowly toward newly observed embeddings.
	DefaultBlendBeta = 0.95
)

// SpeakerProfile is one user's voice identity: a unit-normalized embedding.
type SpeakerProfile struct {
	UserID string
	Vector []float32
}

// Gallery holds the enrolled speaker embeddings and answers identity queries
// by maximum cosine similarity. Safe for concurrent use.
type Gallery struct {
	mu        sync.RWMutex
	profiles  map[string][]float32
	threshold float64
	beta      float64
}

// GalleryOption customizes a Gallery.
type GalleryOption func(*Gallery)

func WithThreshold(threshold float64) GalleryOption {
	return func(g *Gallery) { g.threshold = threshold }
}

func WithBlendBeta(beta float64) GalleryOption {
	return func(g *Gallery) { g.beta = beta }
}

func NewGallery(opts ...GalleryOption) *Gallery {
	g := &Gallery{
		profiles:  map[string][]float32{},
		threshold: DefaultMatchThreshold,
		beta:      DefaultBlendBeta,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Enroll stores the unit-normalized vector for a user with no prior
// enrollment. Re-enrolling an existing user goes through Update instead.
func (g *Gallery) Enroll(userID string, vector []float32) error {
	unit, err := normalizeUnit(vector)
	if err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.profiles[userID]; ok {
		return fmt.Errorf("speaker %s already enrolled", userID)
	}
	g.profiles[userID] = unit
	return nil
}

// Update blends an incoming embedding into an existing enrollment with an
// exponential moving average and re-normalizes. A missing enrollment or a
// dimension mismatch is fatal to the call; it signals a model/config
// inconsistency the caller must fix.
func (g *Gallery) Update(userID string, vector []float32) error {
	unit, err := normalizeUnit(vector)
	if err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	old, ok := g.profiles[userID]
	if !ok {
		return fmt.Errorf("speaker %s: %w", userID, ErrNotEnrolled)
	}
	if len(old) != len(unit) {
		return fmt.Errorf("speaker %s: have %d dims, got %d: %w", userID, len(old), len(unit), ErrVectorShape)
	}
	blended := make([]float32, len(old))
	for i := range old {
		blended[i] = float32(g.beta)*old[i] + float32(1-g.beta)*unit[i]
	}
	normalized, err := normalizeUnit(blended)
	if err != nil {
		return err
	}
	g.profiles[userID] = normalized
	return nil
}

// Match unit-normalizes the query, scores it against every enrolled vector by
// dot product (cosine, since both sides are unit-normalized), and returns the
// arg-max user when the best score reaches the gallery threshold.
func (g *Gallery) Match(vector []float32) (string, float64, bool) {
	unit, err := normalizeUnit(vector)
	if err != nil {
		return "", 0, false
	}
	g.mu.RLock()
	defer g.mu.RUnlock()

	bestUser := ""
	bestScore := math.Inf(-1)
	for userID, stored := range g.profiles {
		if len(stored) != len(unit) {
			continue
		}
		score := dot(stored, unit)
		if score > bestScore {
			bestScore = score
			bestUser = userID
		}
	}
	if bestUser == "" || bestScore < g.threshold {
		return "", bestScore, false
	}
	return bestUser, bestScore, true
}

// Users lists every enrolled user id in unspecified order.
func (g *Gallery) Users() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, 0, len(g.profiles))
	for userID := range g.profiles {
		out = append(out, userID)
	}
	return out
}

// Enrolled reports whether a user has a stored voice identity.
func (g *Gallery) Enrolled(userID string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.profiles[userID]
	return ok
}

// Profile returns a copy of the stored profile for a user.
func (g *Gallery) Profile(userID string) (SpeakerProfile, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	stored, ok := g.profiles[userID]
	if !ok {
		return SpeakerProfile{}, false
	}
	return SpeakerProfile{UserID: userID, Vector: append([]float32{}, stored...)}, true
}

func normalizeUnit(vector []float32) ([]float32, error) {
	if len(vector) == 0 {
		return nil, ErrEmptyVector
	}
	var sum float64
	for _, v := range vector {
		sum += float64(v) * float64(v)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return nil, ErrEmptyVector
	}
	out := make([]float32, len(vector))
	inv := float32(1.0 / norm)
	for i, v := range vector {
		out[i] = v * inv
	}
	return out, nil
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
