package persona

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// TurnRole identifies who produced a cached turn.
type TurnRole string

const (
	RoleUser      TurnRole = "user"
	RoleAssistant TurnRole = "assistant"
)

// Turn is one conversation message accumulated for delta extraction.
type Turn struct {
	Role      TurnRole
	Content   string
	CreatedAt time.Time
}

// Cache accumulates raw conversation turns for one user's session, feeding
// the delta orchestrator. Created at session start, drained at flush time.
type Cache struct {
	mu       sync.Mutex
	userID   string
	turns    []Turn
	maxTurns int
	dirty    bool
}

func NewCache(userID string, maxTurns int) *Cache {
	if maxTurns <= 0 {
		maxTurns = 64
	}
	return &Cache{userID: userID, maxTurns: maxTurns}
}

func (c *Cache) UserID() string {
	return c.userID
}

// Add records a user or assistant turn; other roles are ignored. Turns are
// kept ordered by creation time and capped at maxTurns (oldest dropped).
func (c *Cache) Add(turn Turn) {
	if turn.Role != RoleUser && turn.Role != RoleAssistant {
		return
	}
	if strings.TrimSpace(turn.Content) == "" {
		return
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = append(c.turns, turn)
	sort.SliceStable(c.turns, func(i, j int) bool {
		return c.turns[i].CreatedAt.Before(c.turns[j].CreatedAt)
	})
	if len(c.turns) > c.maxTurns {
		c.turns = c.turns[len(c.turns)-c.maxTurns:]
	}
	c.dirty = true
}

// Transcript renders the pending turns as "role: content" lines.
func (c *Cache) Transcript() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.render()
}

// Drain returns the transcript and clears the pending turns. The dirty flag
// resets so the flush worker skips idle sessions.
func (c *Cache) Drain() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	transcript := c.render()
	c.turns = nil
	c.dirty = false
	return transcript
}

// render formats the pending turns; callers hold the lock.
func (c *Cache) render() string {
	var b strings.Builder
	for _, turn := range c.turns {
		b.WriteString(string(turn.Role))
		b.WriteString(": ")
		b.WriteString(strings.TrimSpace(turn.Content))
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

func (c *Cache) Dirty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dirty
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.turns)
}
