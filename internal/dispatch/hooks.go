package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/example/ambulance-tracking/internal/models"
	"github.com/example/ambulance-tracking/internal/observability"
)

type EventKind string

const (
	EventRequested  EventKind = "requested"
	EventEnRoute    EventKind = "en_route"
	EventMoved      EventKind = "moved"
	EventETAChanged EventKind = "eta_changed"
	EventArrived    EventKind = "arrived"
	EventReset      EventKind = "reset"
)

// Event describes a transition after the session loop has applied it.
type Event struct {
	Kind     EventKind       `json:"kind"`
	Snapshot models.Snapshot `json:"snapshot"`
	// Previous holds the state that a reset discarded.
	Previous *models.Snapshot `json:"previous,omitempty"`
	At       time.Time        `json:"at"`
}

// Hook receives session events off the simulation goroutine.
type Hook interface {
	HandleEvent(ctx context.Context, ev Event) error
}

type HookFunc func(ctx context.Context, ev Event) error

func (f HookFunc) HandleEvent(ctx context.Context, ev Event) error { return f(ctx, ev) }

const (
	hookQueueSize    = 256
	hookTimeout      = 5 * time.Second
	hookDrainTimeout = 2 * time.Second
)

// critical events change what sinks bill and persist; they are queued even
// when the runner is over capacity.
func critical(k EventKind) bool {
	return k == EventRequested || k == EventArrived || k == EventReset
}

// hookRunner delivers events to hooks in order on its own goroutine so slow
// sinks never stall movement or ETA ticks.
type hookRunner struct {
	hooks        []Hook
	logger       *slog.Logger
	drainTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wake   chan struct{}
	done   chan struct{}

	mu      sync.Mutex
	pending []Event
	closed  bool
}

func newHookRunner(hooks []Hook, logger *slog.Logger, drainTimeout time.Duration) *hookRunner {
	if drainTimeout <= 0 {
		drainTimeout = hookDrainTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &hookRunner{
		hooks:        hooks,
		logger:       logger,
		drainTimeout: drainTimeout,
		ctx:          ctx,
		cancel:       cancel,
		wake:         make(chan struct{}, 1),
		done:         make(chan struct{}),
	}
	if len(hooks) == 0 {
		close(h.done)
		return h
	}
	go h.run()
	return h
}

func (h *hookRunner) run() {
	defer close(h.done)
	for {
		h.mu.Lock()
		if len(h.pending) == 0 {
			closed := h.closed
			h.mu.Unlock()
			if closed {
				return
			}
			<-h.wake
			continue
		}
		ev := h.pending[0]
		h.pending[0] = Event{}
		h.pending = h.pending[1:]
		h.mu.Unlock()

		if h.ctx.Err() != nil {
			observability.HookEventsDropped.WithLabelValues(string(ev.Kind)).Inc()
			continue
		}
		for _, hook := range h.hooks {
			ctx, cancel := context.WithTimeout(h.ctx, hookTimeout)
			if err := hook.HandleEvent(ctx, ev); err != nil {
				h.logger.Warn("dispatch hook failed", "event", ev.Kind, "error", err)
			}
			cancel()
		}
	}
}

// emit never blocks. Non-critical events are dropped when sinks lag.
func (h *hookRunner) emit(ev Event) {
	if len(h.hooks) == 0 {
		return
	}
	h.mu.Lock()
	if h.closed || (len(h.pending) >= hookQueueSize && !critical(ev.Kind)) {
		h.mu.Unlock()
		observability.HookEventsDropped.WithLabelValues(string(ev.Kind)).Inc()
		h.logger.Warn("dispatch hook queue full, event dropped", "event", ev.Kind)
		return
	}
	h.pending = append(h.pending, ev)
	h.mu.Unlock()
	h.signal()
}

func (h *hookRunner) signal() {
	select {
	case h.wake <- struct{}{}:
	default:
	}
}

// close delivers pending events for at most drainTimeout. After that the
// in-flight hook's context is cancelled, the rest are dropped and close
// returns without waiting further.
func (h *hookRunner) close() {
	defer h.cancel()
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	h.signal()

	timer := time.NewTimer(h.drainTimeout)
	defer timer.Stop()
	select {
	case <-h.done:
	case <-timer.C:
		h.mu.Lock()
		left := len(h.pending)
		h.mu.Unlock()
		h.logger.Warn("dispatch hooks did not drain in time", "pending", left, "timeout", h.drainTimeout)
	}
}
