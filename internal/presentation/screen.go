package presentation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/example/ambulance-tracking/internal/dispatch"
	"github.com/example/ambulance-tracking/internal/location"
	"github.com/example/ambulance-tracking/internal/models"
)

// MapSurface draws frames. The screen only writes to it.
type MapSurface interface {
	Draw(ctx context.Context, f Frame) error
}

type MountConfig struct {
	Location      location.Provider
	Surface       MapSurface
	Dispatch      dispatch.Options
	PulsePhase    time.Duration
	EmergencyLine string
	Logger        *slog.Logger
}

// Screen is a mounted tracking screen. It owns the dispatch controller and
// the marker pulse; Close releases both.
type Screen struct {
	ctrl          *dispatch.Controller
	surface       MapSurface
	emergencyLine string
	logger        *slog.Logger

	pulse  Pulse
	cancel context.CancelFunc
	unsub  func()
	done   chan struct{}
	once   sync.Once

	mu   sync.RWMutex
	last Frame
}

// Mount locates the user and starts the screen. When the location cannot be
// obtained nothing keeps running and the error is returned.
func Mount(ctx context.Context, cfg MountConfig) (*Screen, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Dispatch.Logger == nil {
		cfg.Dispatch.Logger = cfg.Logger
	}
	if cfg.Dispatch.Clock == nil {
		cfg.Dispatch.Clock = dispatch.RealClock
	}
	if cfg.PulsePhase <= 0 {
		cfg.PulsePhase = PulsePhase
	}

	ctrl := dispatch.New(cfg.Dispatch)
	if err := ctrl.LocateUser(ctx, cfg.Location); err != nil {
		_ = ctrl.Close()
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s := &Screen{
		ctrl:          ctrl,
		surface:       cfg.Surface,
		emergencyLine: cfg.EmergencyLine,
		logger:        cfg.Logger.With("session_id", ctrl.ID()),
		cancel:        cancel,
		done:          make(chan struct{}),
	}
	snaps, unsub := ctrl.Subscribe()
	s.unsub = unsub
	pulse := cfg.Dispatch.Clock.NewTicker(cfg.PulsePhase)
	snap := ctrl.Snapshot()
	s.render(snap)
	go s.run(runCtx, snap, snaps, pulse)
	return s, nil
}

func (s *Screen) run(ctx context.Context, snap models.Snapshot, snaps <-chan models.Snapshot, pulse dispatch.Ticker) {
	defer close(s.done)
	defer pulse.Stop()
	s.draw(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-snaps:
			if !ok {
				return
			}
			snap = next
			s.render(snap)
		case <-pulse.C():
			s.pulse.Advance()
			s.render(snap)
		}
		s.draw(ctx)
	}
}

func (s *Screen) render(snap models.Snapshot) {
	f := Render(snap, s.pulse.Opacity(), s.emergencyLine)
	s.mu.Lock()
	s.last = f
	s.mu.Unlock()
}

func (s *Screen) draw(ctx context.Context) {
	if s.surface == nil {
		return
	}
	if err := s.surface.Draw(ctx, s.Frame()); err != nil {
		s.logger.Warn("map draw failed", "error", err)
	}
}

// Frame returns the most recently rendered frame.
func (s *Screen) Frame() Frame {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

func (s *Screen) SessionID() string { return s.ctrl.ID() }

func (s *Screen) Snapshot() models.Snapshot { return s.ctrl.Snapshot() }

func (s *Screen) Select(ctx context.Context, t models.EmergencyType) error {
	return s.ctrl.SelectEmergencyType(ctx, t)
}

func (s *Screen) Confirm(ctx context.Context) (models.Snapshot, error) {
	return s.ctrl.Confirm(ctx)
}

func (s *Screen) Reset(ctx context.Context) error { return s.ctrl.Reset(ctx) }

// Close unmounts the screen. The pulse stops first, then the dispatch
// session is torn down.
func (s *Screen) Close() error {
	var err error
	s.once.Do(func() {
		s.cancel()
		<-s.done
		s.unsub()
		err = s.ctrl.Close()
	})
	return err
}
