package wizard

import (
	"context"
	"sync"
	"time"

	"github.com/ehr/carewizard/internal/platform/draft"
	"github.com/rs/zerolog"
)

// DefaultIdleTTL is how long an untouched session stays in memory.
const DefaultIdleTTL = 30 * time.Minute

// Manager owns the live sessions of a process, one per draft key.
type Manager struct {
	gate    *Gate
	store   *draft.Store
	opts    Options
	idleTTL time.Duration
	log     zerolog.Logger
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
	loading  map[string]*pendingOpen
}

// pendingOpen marks a key whose draft is being loaded. Callers opening the
// same key wait on done.
type pendingOpen struct {
	done chan struct{}
	s    *Session
}

func NewManager(gate *Gate, store *draft.Store, idleTTL time.Duration, opts Options) *Manager {
	if idleTTL <= 0 {
		idleTTL = DefaultIdleTTL
	}
	return &Manager{
		gate:     gate,
		store:    store,
		opts:     opts,
		idleTTL:  idleTTL,
		log:      opts.Logger.With().Str("component", "wizard").Logger(),
		now:      time.Now,
		sessions: make(map[string]*Session),
		loading:  make(map[string]*pendingOpen),
	}
}

func (m *Manager) Gate() *Gate { return m.gate }

func (m *Manager) Store() *draft.Store { return m.store }

// Open returns the live session for key, loading its draft on first use.
// The draft is read outside the manager lock; concurrent opens of the same
// key share one load.
func (m *Manager) Open(ctx context.Context, key string) *Session {
	m.mu.Lock()
	if s, ok := m.sessions[key]; ok {
		s.touch(m.now())
		m.mu.Unlock()
		return s
	}
	if p, ok := m.loading[key]; ok {
		m.mu.Unlock()
		<-p.done
		p.s.touch(m.now())
		return p.s
	}
	p := &pendingOpen{done: make(chan struct{})}
	m.loading[key] = p
	m.mu.Unlock()

	s := NewSession(ctx, key, m.gate, m.store, m.opts)
	s.touch(m.now())

	m.mu.Lock()
	m.sessions[key] = s
	delete(m.loading, key)
	p.s = s
	m.mu.Unlock()
	close(p.done)

	m.log.Debug().Str("draft_key", key).Bool("restored", s.restored).Msg("session opened")
	return s
}

// Lookup returns the live session for key without creating one.
func (m *Manager) Lookup(key string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[key]
	return s, ok
}

// Discard tears down the session for key. A pending draft write is
// cancelled; the stored draft is untouched.
func (m *Manager) Discard(key string) bool {
	m.mu.Lock()
	s, ok := m.sessions[key]
	delete(m.sessions, key)
	m.mu.Unlock()
	if ok {
		s.Close()
	}
	return ok
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep evicts sessions idle for longer than the TTL. Evicted sessions are
// flushed first, so reopening the key rehydrates the latest draft. Sessions
// holding the submission latch are never evicted.
func (m *Manager) Sweep() int {
	cutoff := m.now().Add(-m.idleTTL)

	m.mu.Lock()
	var evicted []*Session
	for key, s := range m.sessions {
		last, submitting := s.idleSince()
		if submitting || last.After(cutoff) {
			continue
		}
		delete(m.sessions, key)
		evicted = append(evicted, s)
	}
	m.mu.Unlock()

	for _, s := range evicted {
		s.Flush()
		s.Close()
		m.log.Debug().Str("draft_key", s.Key()).Msg("idle session evicted")
	}
	return len(evicted)
}

// Run sweeps periodically until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	interval := m.idleTTL / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				m.log.Info().Int("evicted", n).Msg("idle sessions swept")
			}
		}
	}
}

// Shutdown flushes and closes every session.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Flush()
		s.Close()
	}
	m.log.Info().Int("sessions", len(sessions)).Msg("wizard sessions flushed")
}
