package persona

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"github.com/dotsetgreg/personakit/pkg/logger"
	"github.com/dotsetgreg/personakit/pkg/store"
)

// Config configures the persona service.
type Config struct {
	Collection     string
	VectorDim      int
	FlushSchedule  string
	MaxCachedTurns int
	ExtractTimeout time.Duration
	MatchThreshold float64
	BlendBeta      float64
}

// Service is the orchestrator for persona sessions: it caches conversation
// turns per user, runs scheduled profile flushes, and answers speaker
// identity queries. The service owns the store and closes it.
type Service struct {
	cfg       Config
	store     store.VectorStore
	profiler  *Profiler
	gallery   *Gallery
	scheduler *gronx.Gronx

	mu       sync.Mutex
	sessions map[string]*Cache

	stopCh chan struct{}
	wg     sync.WaitGroup

	closeOnce sync.Once
	closeErr  error
}

func NewService(cfg Config, st store.VectorStore, extractor DeltaExtractor) (*Service, error) {
	if st == nil {
		return nil, fmt.Errorf("persona service: nil store")
	}
	if extractor == nil {
		return nil, fmt.Errorf("persona service: nil extractor")
	}
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}
	if cfg.VectorDim <= 0 {
		return nil, fmt.Errorf("persona service: vector dim is required")
	}
	if cfg.FlushSchedule == "" {
		cfg.FlushSchedule = "* * * * *"
	}
	if cfg.MaxCachedTurns <= 0 {
		cfg.MaxCachedTurns = 64
	}
	if cfg.ExtractTimeout <= 0 {
		cfg.ExtractTimeout = DefaultExtractTimeout
	}
	if cfg.MatchThreshold <= 0 {
		cfg.MatchThreshold = DefaultMatchThreshold
	}
	if cfg.BlendBeta <= 0 {
		cfg.BlendBeta = DefaultBlendBeta
	}

	scheduler := gronx.New()
	if !scheduler.IsValid(cfg.FlushSchedule) {
		return nil, fmt.Errorf("persona service: invalid flush schedule %q", cfg.FlushSchedule)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := st.EnsureCollection(ctx, cfg.Collection, cfg.VectorDim); err != nil {
		return nil, fmt.Errorf("persona service: %w", err)
	}

	svc := &Service{
		cfg:   cfg,
		store: st,
		profiler: NewProfiler(st, extractor,
			WithCollection(cfg.Collection),
			WithExtractTimeout(cfg.ExtractTimeout),
		),
		gallery: NewGallery(
			WithThreshold(cfg.MatchThreshold),
			WithBlendBeta(cfg.BlendBeta),
		),
		scheduler: scheduler,
		sessions:  map[string]*Cache{},
		stopCh:    make(chan struct{}),
	}

	svc.wg.Add(1)
	go svc.runFlushWorker()
	return svc, nil
}

// Close stops the flush worker, flushes every dirty session once more, and
// closes the store.
func (s *Service) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopCh)
		s.wg.Wait()
		s.flushDirty()
		s.closeErr = s.store.Close()
	})
	return s.closeErr
}

func (s *Service) Profiler() *Profiler {
	return s.profiler
}

// InitSession opens a turn cache for a user. One session per user at a time.
func (s *Service) InitSession(userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("init session: empty user id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[userID]; ok {
		return fmt.Errorf("user %s: %w", userID, ErrSessionExists)
	}
	s.sessions[userID] = NewCache(userID, s.cfg.MaxCachedTurns)
	logger.InfoCF("persona", "Session opened", map[string]interface{}{"user_id": userID})
	return nil
}

// AddTurn records one conversation turn into the user's session cache.
func (s *Service) AddTurn(userID string, turn Turn) error {
	cache, err := s.session(userID)
	if err != nil {
		return err
	}
	cache.Add(turn)
	return nil
}

// UpdateUser drains the session cache and runs the full extract-apply-save
// cycle. With no pending turns it returns the stored profile untouched.
func (s *Service) UpdateUser(ctx context.Context, userID string) (Document, ApplyReport, error) {
	cache, err := s.session(userID)
	if err != nil {
		return nil, ApplyReport{}, err
	}
	transcript := cache.Drain()
	if transcript == "" {
		doc, _, err := s.profiler.LoadProfile(ctx, userID)
		return doc, ApplyReport{}, err
	}
	return s.profiler.Refresh(ctx, userID, transcript)
}

// Profile loads the stored profile without touching the session cache.
func (s *Service) Profile(ctx context.Context, userID string) (Document, error) {
	doc, _, err := s.profiler.LoadProfile(ctx, userID)
	return doc, err
}

// EndSession flushes pending turns and removes the session. The flush error
// is reported but the session is removed regardless, so a wedged extractor
// cannot pin a session open forever.
func (s *Service) EndSession(ctx context.Context, userID string) error {
	cache, err := s.session(userID)
	if err != nil {
		return err
	}

	var flushErr error
	if transcript := cache.Drain(); transcript != "" {
		_, _, flushErr = s.profiler.Refresh(ctx, userID, transcript)
	}

	s.mu.Lock()
	delete(s.sessions, userID)
	s.mu.Unlock()

	logger.InfoCF("persona", "Session closed", map[string]interface{}{"user_id": userID})
	return flushErr
}

// EnrollSpeaker registers a voice embedding for a new user.
func (s *Service) EnrollSpeaker(userID string, vector []float32) error {
	return s.gallery.Enroll(userID, vector)
}

// UpdateSpeaker blends a fresh embedding into an enrolled identity.
func (s *Service) UpdateSpeaker(userID string, vector []float32) error {
	return s.gallery.Update(userID, vector)
}

// MatchSpeaker attributes an utterance embedding to an enrolled user.
func (s *Service) MatchSpeaker(vector []float32) (string, float64, bool) {
	return s.gallery.Match(vector)
}

func (s *Service) session(userID string) (*Cache, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cache, ok := s.sessions[userID]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", userID, ErrNoSession)
	}
	return cache, nil
}

// runFlushWorker wakes every half minute and flushes dirty sessions whenever
// the cron schedule is due. Half-minute polling cannot skip a due minute.
func (s *Service) runFlushWorker() {
	defer s.wg.Done()
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case now := <-ticker.C:
			due, err := s.scheduler.IsDue(s.cfg.FlushSchedule, now)
			if err != nil {
				logger.WarnCF("persona", "Flush schedule check failed", map[string]interface{}{"error": err.Error()})
				continue
			}
			if due {
				s.flushDirty()
			}
		}
	}
}

// flushDirty persists every session with unconsumed turns. Per-user failures
// are logged and skipped so one bad extraction does not block the rest.
func (s *Service) flushDirty() {
	s.mu.Lock()
	caches := make([]*Cache, 0, len(s.sessions))
	for _, cache := range s.sessions {
		if cache.Dirty() {
			caches = append(caches, cache)
		}
	}
	s.mu.Unlock()

	for _, cache := range caches {
		transcript := cache.Drain()
		if transcript == "" {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ExtractTimeout+10*time.Second)
		_, report, err := s.profiler.Refresh(ctx, cache.UserID(), transcript)
		cancel()
		if err != nil {
			logger.WarnCF("persona", "Session flush failed", map[string]interface{}{
				"user_id": cache.UserID(),
				"error":   err.Error(),
			})
			continue
		}
		logger.DebugCF("persona", "Session flushed", map[string]interface{}{
			"user_id": cache.UserID(),
			"applied": report.AppliedCount(),
		})
	}
}
