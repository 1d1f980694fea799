// Package session implements the concurrency fabric spec §5 describes:
// strictly serial request handling within a session, independent
// handling across sessions, a bounded limit on in-flight requests, a
// separate bounded limit on in-flight external-server tool calls, and
// per-suspension-point deadlines (LLM, external tool, embedding, store).
//
// An activeSessions map of session_id -> context.CancelFunc plus
// RegisterSession/UnregisterSession/CancelSession handles cancellation,
// and Stop() drains gracefully with logging. Per-session serialization
// ensures a second utterance from the same session waits for the first
// to resolve or be explicitly cancelled.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/coretask-core/coretask/pkg/config"
)

// Manager enforces the concurrency model for one process: a bounded
// semaphore on in-flight requests, a separate bounded semaphore on
// in-flight external-server tool calls, and one mutex per session_id
// serializing that session's requests.
type Manager struct {
	cfg *config.SessionConfig

	requestSem  *semaphore.Weighted
	externalSem *semaphore.Weighted

	activeRequests int64
	activeExternal int64

	mu       sync.Mutex
	sessions map[string]*sessionSlot

	wg       sync.WaitGroup
	stopCh   chan struct{}
	stopOnce sync.Once
}

type sessionSlot struct {
	mu     sync.Mutex
	cancel context.CancelFunc
	refs   int
}

// NewManager builds a Manager from the given concurrency config.
func NewManager(cfg *config.SessionConfig) *Manager {
	return &Manager{
		cfg:         cfg,
		requestSem:  semaphore.NewWeighted(int64(cfg.MaxInFlightRequests)),
		externalSem: semaphore.NewWeighted(int64(cfg.MaxInFlightExternalCalls)),
		sessions:    make(map[string]*sessionSlot),
		stopCh:      make(chan struct{}),
	}
}

// Request is a handle on one acquired, serialized session turn. Callers
// must call Release when the request is done, successfully or not.
type Request struct {
	mgr       *Manager
	sessionID string
	slot      *sessionSlot
	ctx       context.Context
	cancel    context.CancelFunc
}

// Acquire blocks until the process-wide in-flight-request budget has
// room and this session's previous request (if any) has released, then
// returns a Request carrying a cancellable context registered for
// CancelSession. It returns early with an error if ctx is cancelled
// while waiting, or if the Manager has been stopped.
func (m *Manager) Acquire(ctx context.Context, sessionID string) (*Request, error) {
	acquireCtx, cancelAcquire := context.WithCancel(ctx)
	stopWatch := make(chan struct{})
	go func() {
		select {
		case <-m.stopCh:
			cancelAcquire()
		case <-stopWatch:
		}
	}()

	err := m.requestSem.Acquire(acquireCtx, 1)
	close(stopWatch)
	cancelAcquire()
	if err != nil {
		select {
		case <-m.stopCh:
			return nil, fmt.Errorf("session manager is stopped")
		default:
		}
		return nil, ctx.Err()
	}
	atomic.AddInt64(&m.activeRequests, 1)

	slot := m.slotFor(sessionID)
	slot.mu.Lock()

	reqCtx, cancel := context.WithCancel(ctx)
	slot.cancel = cancel

	m.wg.Add(1)
	return &Request{mgr: m, sessionID: sessionID, slot: slot, ctx: reqCtx, cancel: cancel}, nil
}

func (m *Manager) slotFor(sessionID string) *sessionSlot {
	m.mu.Lock()
	defer m.mu.Unlock()
	slot, ok := m.sessions[sessionID]
	if !ok {
		slot = &sessionSlot{}
		m.sessions[sessionID] = slot
	}
	slot.refs++
	return slot
}

// Context returns this request's cancellable context, a child of the
// context passed to Acquire.
func (r *Request) Context() context.Context {
	return r.ctx
}

// LLMContext derives a context bounded by the configured LLM deadline
// (spec §5: "LLM default 60s").
func (r *Request) LLMContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.ctx, r.mgr.cfg.LLMTimeout)
}

// EmbeddingContext derives a context bounded by the configured
// embedding-call deadline (spec §5: "embedding default 10s").
func (r *Request) EmbeddingContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.ctx, r.mgr.cfg.EmbeddingTimeout)
}

// StoreContext derives a context bounded by the configured store-call
// deadline (spec §5: "store default 5s").
func (r *Request) StoreContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.ctx, r.mgr.cfg.StoreTimeout)
}

// ExternalCall blocks until the process-wide in-flight-external-call
// budget has room, then returns a context bounded by the configured
// external-tool deadline (spec §5: "web-search/external-tool default
// 30s") and a release function the caller must invoke when the call
// completes. This is the only suspension point spec §5 bounds with its
// own semaphore, separate from the request-level one.
func (r *Request) ExternalCall() (context.Context, context.CancelFunc, error) {
	if err := r.mgr.externalSem.Acquire(r.ctx, 1); err != nil {
		return nil, nil, r.ctx.Err()
	}
	atomic.AddInt64(&r.mgr.activeExternal, 1)

	ctx, cancel := context.WithTimeout(r.ctx, r.mgr.cfg.ExternalToolTimeout)
	release := func() {
		cancel()
		r.mgr.externalSem.Release(1)
		atomic.AddInt64(&r.mgr.activeExternal, -1)
	}
	return ctx, release, nil
}

// Release ends this request's turn: it unblocks the next queued request
// for the same session and frees one slot in the in-flight-request
// budget. Safe to call exactly once per Request.
func (r *Request) Release() {
	r.cancel()

	r.mgr.mu.Lock()
	r.slot.refs--
	if r.slot.cancel != nil {
		r.slot.cancel = nil
	}
	if r.slot.refs == 0 {
		delete(r.mgr.sessions, r.sessionID)
	}
	r.mgr.mu.Unlock()

	r.slot.mu.Unlock()
	r.mgr.requestSem.Release(1)
	atomic.AddInt64(&r.mgr.activeRequests, -1)
	r.mgr.wg.Done()
}

// CancelSession cancels the in-flight request for sessionID, if any
// (spec §5: "a request carries a cancellation token"). Returns true if
// a request was found and cancelled.
func (m *Manager) CancelSession(sessionID string) bool {
	m.mu.Lock()
	slot, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if !ok {
		return false
	}
	m.mu.Lock()
	cancel := slot.cancel
	m.mu.Unlock()
	if cancel == nil {
		return false
	}
	cancel()
	return true
}

// Stats reports current utilization, for health endpoints.
type Stats struct {
	ActiveRequests      int
	RequestCapacity     int
	ActiveExternalCalls int
	ExternalCapacity    int
	ActiveSessions      int
}

// Stats returns a snapshot of current concurrency utilization.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	activeSessions := len(m.sessions)
	m.mu.Unlock()
	return Stats{
		ActiveRequests:      int(atomic.LoadInt64(&m.activeRequests)),
		RequestCapacity:     m.cfg.MaxInFlightRequests,
		ActiveExternalCalls: int(atomic.LoadInt64(&m.activeExternal)),
		ExternalCapacity:    m.cfg.MaxInFlightExternalCalls,
		ActiveSessions:      activeSessions,
	}
}

// Stop signals the manager is shutting down (new Acquire calls fail
// fast) and waits for all in-flight requests to release, logging if any
// are still active.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })

	stats := m.Stats()
	if stats.ActiveRequests > 0 {
		slog.Info("session manager waiting for in-flight requests to finish",
			"active_requests", stats.ActiveRequests)
	}
	m.wg.Wait()
	slog.Info("session manager stopped")
}
