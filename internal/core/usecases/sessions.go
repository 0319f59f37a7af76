package usecases

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/samirrijal/ecoleta/internal/core/domain"
	"github.com/samirrijal/ecoleta/internal/pkg/metrics"
)

// session is the part of a screen session the store manages.
type session interface {
	ID() string
	Close()
	lastActive() time.Time
}

// activity tracks when a session was last used.
type activity struct {
	unixNano atomic.Int64
}

func (a *activity) touch() { a.unixNano.Store(time.Now().UnixNano()) }

func (a *activity) lastActive() time.Time { return time.Unix(0, a.unixNano.Load()) }

// sessionStore keeps open sessions by id and closes the ones left idle.
type sessionStore[S session] struct {
	kind    string
	idleTTL time.Duration

	mu       sync.Mutex
	sessions map[string]S
}

func newSessionStore[S session](kind string, idleTTL time.Duration) *sessionStore[S] {
	if idleTTL <= 0 {
		idleTTL = 30 * time.Minute
	}
	return &sessionStore[S]{kind: kind, idleTTL: idleTTL, sessions: make(map[string]S)}
}

func newSessionID() string { return uuid.NewString() }

func (st *sessionStore[S]) put(s S) {
	st.mu.Lock()
	st.sessions[s.ID()] = s
	n := len(st.sessions)
	st.mu.Unlock()
	metrics.ActiveSessions.WithLabelValues(st.kind).Set(float64(n))
}

func (st *sessionStore[S]) get(id string) (S, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[id]
	if !ok {
		var zero S
		return zero, domain.ErrNotFound
	}
	return s, nil
}

// remove drops and closes the session; it reports whether it was present.
func (st *sessionStore[S]) remove(id string) bool {
	st.mu.Lock()
	s, ok := st.sessions[id]
	delete(st.sessions, id)
	n := len(st.sessions)
	st.mu.Unlock()
	if !ok {
		return false
	}
	s.Close()
	metrics.ActiveSessions.WithLabelValues(st.kind).Set(float64(n))
	return true
}

func (st *sessionStore[S]) len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

func (st *sessionStore[S]) each(fn func(S)) {
	st.mu.Lock()
	list := make([]S, 0, len(st.sessions))
	for _, s := range st.sessions {
		list = append(list, s)
	}
	st.mu.Unlock()
	for _, s := range list {
		fn(s)
	}
}

// sweep closes sessions idle since before now-idleTTL and returns how many.
func (st *sessionStore[S]) sweep(now time.Time) int {
	var expired []string
	st.each(func(s S) {
		if now.Sub(s.lastActive()) > st.idleTTL {
			expired = append(expired, s.ID())
		}
	})
	n := 0
	for _, id := range expired {
		if st.remove(id) {
			n++
		}
	}
	return n
}

func (st *sessionStore[S]) closeAll() {
	var ids []string
	st.each(func(s S) { ids = append(ids, s.ID()) })
	for _, id := range ids {
		st.remove(id)
	}
}

// run sweeps idle sessions until ctx is done, then closes the rest.
func (st *sessionStore[S]) run(ctx context.Context) {
	ticker := time.NewTicker(st.idleTTL / 2)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			if n := st.sweep(now); n > 0 {
				slog.Info("expired idle sessions", "kind", st.kind, "count", n)
			}
		case <-ctx.Done():
			st.closeAll()
			return
		}
	}
}
