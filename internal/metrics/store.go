// Package metrics keeps in-memory health records for runners and
// supervised jobs and derives operator alerts from them.
package metrics

import (
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/null-engine/nullengine/internal/domain"
)

const maxErrorLen = 400

// truncateRunes cuts s to at most n runes without splitting a character.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// TickReport describes one finished runner tick.
type TickReport struct {
	WorldID  string
	OK       bool
	Duration time.Duration
	Delay    time.Duration
}

// Store is the runtime metrics store. All methods are safe for concurrent
// use and hold the mutex only while touching the maps.
type Store struct {
	mu      sync.Mutex
	loops   map[string]*domain.LoopMetric
	runners map[string]*domain.RunnerMetric
	now     func() time.Time
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		loops:   make(map[string]*domain.LoopMetric),
		runners: make(map[string]*domain.RunnerMetric),
		now:     time.Now,
	}
}

func (s *Store) loopLocked(name string) *domain.LoopMetric {
	m, ok := s.loops[name]
	if !ok {
		m = &domain.LoopMetric{Name: name, Status: domain.LoopUnknown}
		s.loops[name] = m
	}
	return m
}

func (s *Store) runnerLocked(worldID string) *domain.RunnerMetric {
	m, ok := s.runners[worldID]
	if !ok {
		m = &domain.RunnerMetric{WorldID: worldID, Status: domain.RunnerStarting, SuccessRate: 1.0}
		s.runners[worldID] = m
	}
	return m
}

// LoopStarted marks a supervised job as running.
func (s *Store) LoopStarted(name string) {
	now := s.now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.loopLocked(name)
	m.Status = domain.LoopRunning
	m.LastStartedAt = &now
}

// LoopExited records a job that returned without error; it will be restarted.
func (s *Store) LoopExited(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.loopLocked(name)
	m.Status = domain.LoopExited
	m.RestartCount++
}

// LoopCancelled records a job stopped by shutdown.
func (s *Store) LoopCancelled(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loopLocked(name).Status = domain.LoopCancelled
}

// LoopError records a failed job; it will be restarted.
func (s *Store) LoopError(name string, err error) {
	now := s.now().UTC()
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	msg = truncateRunes(msg, maxErrorLen)
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.loopLocked(name)
	m.Status = domain.LoopError
	m.RestartCount++
	m.LastErrorAt = &now
	m.LastError = &msg
}

// RunnerStatus sets a runner's status without touching its counters.
func (s *Store) RunnerStatus(worldID, status string) {
	now := s.now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.runnerLocked(worldID)
	m.Status = status
	m.LastSeenAt = &now
}

// RunnerTick folds one tick into the runner's counters.
func (s *Store) RunnerTick(r TickReport) {
	now := s.now().UTC()
	durMs := r.Duration.Milliseconds()
	delayMs := r.Delay.Milliseconds()
	if delayMs < 0 {
		delayMs = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.runnerLocked(r.WorldID)
	m.TicksTotal++
	if !r.OK {
		m.TickFailures++
	}
	m.SuccessRate = float64(m.TicksTotal-m.TickFailures) / float64(m.TicksTotal)

	avg := float64(durMs)
	if m.AvgDurationMs != nil {
		avg = *m.AvgDurationMs + (float64(durMs)-*m.AvgDurationMs)/float64(m.TicksTotal)
	}
	m.AvgDurationMs = &avg
	m.LastDurationMs = &durMs
	m.LastTickDelayMs = &delayMs
	m.LastSeenAt = &now
	if r.OK {
		m.Status = domain.RunnerRunning
	} else {
		m.Status = domain.RunnerDegraded
	}
}

// Loops returns a snapshot of every job record sorted by name.
func (s *Store) Loops() []domain.LoopMetric {
	s.mu.Lock()
	out := make([]domain.LoopMetric, 0, len(s.loops))
	for _, m := range s.loops {
		out = append(out, copyLoop(*m))
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Runners returns a snapshot of every runner record sorted by world ID.
func (s *Store) Runners() []domain.RunnerMetric {
	s.mu.Lock()
	out := make([]domain.RunnerMetric, 0, len(s.runners))
	for _, m := range s.runners {
		out = append(out, copyRunner(*m))
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].WorldID < out[j].WorldID })
	return out
}

// Runner returns one runner record.
func (s *Store) Runner(worldID string) (domain.RunnerMetric, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.runners[worldID]
	if !ok {
		return domain.RunnerMetric{}, false
	}
	return copyRunner(*m), true
}

// Reset drops every record.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loops = make(map[string]*domain.LoopMetric)
	s.runners = make(map[string]*domain.RunnerMetric)
}

func copyLoop(m domain.LoopMetric) domain.LoopMetric {
	m.LastStartedAt = clonePtr(m.LastStartedAt)
	m.LastErrorAt = clonePtr(m.LastErrorAt)
	m.LastError = clonePtr(m.LastError)
	return m
}

func copyRunner(m domain.RunnerMetric) domain.RunnerMetric {
	m.LastDurationMs = clonePtr(m.LastDurationMs)
	m.AvgDurationMs = clonePtr(m.AvgDurationMs)
	m.LastTickDelayMs = clonePtr(m.LastTickDelayMs)
	m.LastSeenAt = clonePtr(m.LastSeenAt)
	return m
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
