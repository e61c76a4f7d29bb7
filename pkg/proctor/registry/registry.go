// Package registry maps exam session ids to their live monitors.
package registry

import (
	"errors"
	"sort"
	"sync"
	"time"

	"exam-proctor-be/internal/pkg/logger"
	"exam-proctor-be/pkg/proctor/monitor"

	"github.com/patrickmn/go-cache"
)

var (
	// ErrUnknownSession is returned for ids without a live monitor.
	ErrUnknownSession = errors.New("unknown session")
	// ErrNotSessionOwner is returned when a caller acts on another student's session.
	ErrNotSessionOwner = errors.New("session belongs to another student")
)

type Config struct {
	// IdleTimeout evicts monitors without ingestion activity. Zero disables it.
	IdleTimeout time.Duration
	// SweepInterval is how often expired monitors are purged.
	SweepInterval time.Duration
	Monitor       monitor.Config
}

type Registry struct {
	cfg    Config
	cache  *cache.Cache
	logger logger.ILogger
	now    func() time.Time

	// mu serialises create/touch/destroy so a stale handle can never be
	// written back over a newer monitor for the same id.
	mu sync.Mutex
}

type Option func(*Registry)

// WithClock overrides time.Now for monitor creation timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

func New(cfg Config, log logger.ILogger, opts ...Option) *Registry {
	ttl := cfg.IdleTimeout
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	sweep := cfg.SweepInterval
	if cfg.IdleTimeout <= 0 {
		sweep = 0
	}

	r := &Registry{
		cfg:    cfg,
		cache:  cache.New(ttl, sweep),
		logger: log,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}

	r.cache.OnEvicted(func(id string, v interface{}) {
		m, ok := v.(*monitor.Monitor)
		if !ok {
			return
		}
		m.Close()
		r.logger.Info("SessionRegistry", "Monitor released", map[string]interface{}{
			"session_id":    id,
			"last_activity": m.LastActivity(),
		})
	})
	return r
}

// Create returns the monitor for meta.SessionID, creating it when absent.
// created is false when an existing monitor was returned.
func (r *Registry) Create(meta monitor.Meta) (m *monitor.Monitor, created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.lookup(meta.SessionID); ok {
		return existing, false
	}
	// An expired entry may still sit in the cache until the next sweep.
	// Deleting it runs OnEvicted so the old monitor is closed and logged.
	r.cache.Delete(meta.SessionID)

	m = monitor.New(meta, r.cfg.Monitor, r.now())
	if err := r.cache.Add(meta.SessionID, m, cache.DefaultExpiration); err != nil {
		// Only reachable if an entry appeared without going through mu.
		if existing, ok := r.lookup(meta.SessionID); ok {
			return existing, false
		}
		r.cache.Set(meta.SessionID, m, cache.DefaultExpiration)
	}

	r.logger.Info("SessionRegistry", "Monitor created", map[string]interface{}{
		"session_id": meta.SessionID,
		"exam_id":    meta.ExamID,
	})
	return m, true
}

func (r *Registry) Get(id string) (*monitor.Monitor, error) {
	if m, ok := r.lookup(id); ok {
		return m, nil
	}
	return nil, ErrUnknownSession
}

// Touch refreshes the idle deadline of m. It never re-inserts a monitor
// that has been destroyed or replaced.
func (r *Registry) Touch(m *monitor.Monitor) {
	if r.cfg.IdleTimeout <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.lookup(m.SessionID())
	if !ok || current != m {
		return
	}
	_ = r.cache.Replace(m.SessionID(), m, cache.DefaultExpiration)
}

// Destroy removes the monitor for id. It reports whether one existed.
func (r *Registry) Destroy(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.lookup(id); !ok {
		// Drop an expired-but-unswept entry too.
		r.cache.Delete(id)
		return false
	}
	r.cache.Delete(id)
	return true
}

// Sweep purges monitors whose idle deadline has passed.
func (r *Registry) Sweep() {
	r.cache.DeleteExpired()
}

func (r *Registry) Count() int {
	return len(r.IDs())
}

// IDs lists live session ids in sorted order.
func (r *Registry) IDs() []string {
	items := r.cache.Items()
	ids := make([]string, 0, len(items))
	for id := range items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Registry) lookup(id string) (*monitor.Monitor, bool) {
	v, ok := r.cache.Get(id)
	if !ok {
		return nil, false
	}
	m, ok := v.(*monitor.Monitor)
	return m, ok
}
