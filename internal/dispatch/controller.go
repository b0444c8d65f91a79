// Package dispatch runs one ambulance tracking session.
//
// A Controller owns the session state on a single goroutine. User commands,
// movement ticks and ETA ticks are all serialized through that goroutine's
// select loop, so every Snapshot is a consistent combination of fields.
//
// Lifecycle: idle -> requested -> en_route -> arrived, and back to idle on
// Reset, on a new Confirm, or on Close. The ETA countdown and the movement
// simulation run on independent tickers; arrival is decided by movement only.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/ambulance-tracking/internal/eta"
	"github.com/example/ambulance-tracking/internal/geo"
	"github.com/example/ambulance-tracking/internal/location"
	"github.com/example/ambulance-tracking/internal/models"
	"github.com/example/ambulance-tracking/internal/observability"
	"github.com/example/ambulance-tracking/internal/sim"
)

var ErrClosed = errors.New("dispatch session closed")

type Options struct {
	SessionID         string
	UserID            string
	Clock             Clock
	Logger            *slog.Logger
	MovementPeriod    time.Duration
	ETAPeriod         time.Duration
	InitialETAMinutes int
	Unit              models.UnitInfo
	Hooks             []Hook
	// HookDrainTimeout bounds how long Close waits for queued hook events.
	HookDrainTimeout time.Duration
}

func (o *Options) applyDefaults() {
	if o.SessionID == "" {
		o.SessionID = uuid.NewString()
	}
	if o.Clock == nil {
		o.Clock = RealClock
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.MovementPeriod <= 0 {
		o.MovementPeriod = sim.MovementPeriod
	}
	if o.ETAPeriod <= 0 {
		o.ETAPeriod = eta.CountdownPeriod
	}
	if o.InitialETAMinutes <= 0 {
		o.InitialETAMinutes = eta.InitialMinutes
	}
}

// session is only touched by the loop goroutine.
type session struct {
	status    models.Status
	selection models.EmergencyType
	userLoc   *models.GeoPoint
	locErr    error

	request     models.DispatchRequest
	dispatchID  string
	vehicle     *models.GeoPoint
	countdown   eta.Countdown
	ticks       int
	requestedAt time.Time
	arrivedAt   time.Time

	movement Ticker
	etaTick  Ticker
}

type Controller struct {
	opts   Options
	logger *slog.Logger
	hooks  *hookRunner

	st session

	cmds      chan func()
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	final     models.Snapshot

	subsMu     sync.Mutex
	subs       map[int]chan models.Snapshot
	nextSub    int
	subsClosed bool
}

// New starts the session loop. Callers must Close the controller to release
// its tickers and goroutines.
func New(opts Options) *Controller {
	opts.applyDefaults()
	c := &Controller{
		opts:   opts,
		logger: opts.Logger.With("session_id", opts.SessionID),
		cmds:   make(chan func()),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
		subs:   make(map[int]chan models.Snapshot),
	}
	c.st.status = models.StatusIdle
	c.hooks = newHookRunner(opts.Hooks, c.logger, opts.HookDrainTimeout)
	observability.SessionsActive.Inc()
	go c.run()
	return c
}

func (c *Controller) ID() string { return c.opts.SessionID }

func (c *Controller) run() {
	defer close(c.done)
	for {
		select {
		case <-c.quit:
			c.shutdown()
			return
		case fn := <-c.cmds:
			fn()
		case <-tickC(c.st.movement):
			c.onMovementTick()
		case <-tickC(c.st.etaTick):
			c.onETATick()
		}
	}
}

func (c *Controller) shutdown() {
	if c.st.status.Active() {
		c.reset("unmount")
	}
	c.stopTickers()
	c.final = c.snapshot()
	c.subsMu.Lock()
	c.subsClosed = true
	for id, ch := range c.subs {
		close(ch)
		delete(c.subs, id)
	}
	c.subsMu.Unlock()
	c.hooks.close()
	observability.SessionsActive.Dec()
	c.logger.Debug("dispatch session closed")
}

// do runs fn on the loop goroutine and waits for its result.
func (c *Controller) do(ctx context.Context, fn func() error) error {
	errc := make(chan error, 1)
	select {
	case c.cmds <- func() { errc <- fn() }:
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	return <-errc
}

// Close unmounts the session: pending dispatch is reset, all tickers are
// stopped and queued hook events get up to HookDrainTimeout to be delivered.
func (c *Controller) Close() error {
	c.closeOnce.Do(func() { close(c.quit) })
	<-c.done
	return nil
}

// Done is closed once the session loop has exited.
func (c *Controller) Done() <-chan struct{} { return c.done }

// LocateUser asks the provider for permission and a position fix. A denied
// permission is remembered and fails every later Confirm.
func (c *Controller) LocateUser(ctx context.Context, p location.Provider) error {
	perm, err := p.RequestPermission(ctx)
	if err != nil {
		return c.failLocation(ctx, fmt.Errorf("%w: %v", models.ErrLocationUnavailable, err))
	}
	if perm != location.Granted {
		return c.failLocation(ctx, models.ErrLocationPermissionDenied)
	}
	pt, err := p.CurrentPosition(ctx)
	if err != nil {
		if !errors.Is(err, models.ErrLocationUnavailable) {
			err = fmt.Errorf("%w: %v", models.ErrLocationUnavailable, err)
		}
		return c.failLocation(ctx, err)
	}
	return c.SetUserLocation(ctx, pt)
}

func (c *Controller) failLocation(ctx context.Context, cause error) error {
	if err := c.do(ctx, func() error {
		if errors.Is(cause, models.ErrLocationPermissionDenied) {
			c.st.locErr = cause
		}
		return nil
	}); err != nil {
		return err
	}
	observability.DispatchRejections.WithLabelValues(rejectionReason(cause)).Inc()
	c.logger.Warn("user location not available", "error", cause)
	return cause
}

// SetUserLocation records the user's position. A running dispatch keeps
// heading to the location it was confirmed with.
func (c *Controller) SetUserLocation(ctx context.Context, p models.GeoPoint) error {
	return c.do(ctx, func() error {
		if c.st.locErr != nil {
			return c.st.locErr
		}
		pt := p
		c.st.userLoc = &pt
		c.publish(c.snapshot())
		return nil
	})
}

func (c *Controller) SelectEmergencyType(ctx context.Context, t models.EmergencyType) error {
	if !t.Valid() {
		return models.ErrInvalidEmergencyType
	}
	return c.do(ctx, func() error {
		c.st.selection = t
		c.publish(c.snapshot())
		return nil
	})
}

// Confirm validates the current selection and location and starts a new
// dispatch, replacing any dispatch already in progress. On a validation
// error the session is left untouched.
func (c *Controller) Confirm(ctx context.Context) (models.Snapshot, error) {
	var out models.Snapshot
	err := c.do(ctx, func() error {
		var err error
		out, err = c.confirm()
		return err
	})
	return out, err
}

func (c *Controller) confirm() (models.Snapshot, error) {
	if c.st.locErr != nil {
		observability.DispatchRejections.WithLabelValues(rejectionReason(c.st.locErr)).Inc()
		return c.snapshot(), c.st.locErr
	}
	req, err := models.NewDispatchRequest(c.st.selection, c.st.userLoc)
	if err != nil {
		observability.DispatchRejections.WithLabelValues(rejectionReason(err)).Inc()
		c.logger.Info("dispatch request rejected", "error", err)
		return c.snapshot(), err
	}
	if c.st.status.Active() {
		c.reset("replaced")
	}

	now := c.opts.Clock.Now()
	start := sim.Start(req.Origin)
	c.st.request = req
	c.st.selection = req.EmergencyType
	c.st.dispatchID = uuid.NewString()
	c.st.vehicle = &start
	c.st.countdown = eta.NewCountdown(c.opts.InitialETAMinutes)
	c.st.ticks = 0
	c.st.requestedAt = now
	c.st.arrivedAt = time.Time{}
	c.st.status = models.StatusRequested
	c.emit(EventRequested, nil)

	c.st.movement = c.opts.Clock.NewTicker(c.opts.MovementPeriod)
	c.st.etaTick = c.opts.Clock.NewTicker(c.opts.ETAPeriod)
	c.st.status = models.StatusEnRoute
	c.emit(EventEnRoute, nil)

	observability.DispatchesTotal.WithLabelValues(string(req.EmergencyType)).Inc()
	c.logger.Info("ambulance dispatched",
		"dispatch_id", c.st.dispatchID,
		"emergency_type", req.EmergencyType,
		"eta_minutes", c.st.countdown.Remaining,
	)
	return c.snapshot(), nil
}

// Reset returns the session to idle and cancels both tickers.
func (c *Controller) Reset(ctx context.Context) error {
	return c.do(ctx, func() error {
		if c.st.status.Active() {
			c.reset("user")
			return nil
		}
		c.st.selection = ""
		c.publish(c.snapshot())
		return nil
	})
}

func (c *Controller) reset(reason string) {
	prev := c.snapshot()
	c.stopTickers()
	c.st.status = models.StatusIdle
	c.st.selection = ""
	c.st.request = models.DispatchRequest{}
	c.st.dispatchID = ""
	c.st.vehicle = nil
	c.st.countdown = eta.Countdown{}
	c.st.ticks = 0
	c.st.requestedAt = time.Time{}
	c.st.arrivedAt = time.Time{}
	c.emit(EventReset, &prev)
	c.logger.Info("dispatch session reset", "reason", reason, "previous_status", prev.Status)
}

func (c *Controller) stopTickers() {
	if c.st.movement != nil {
		c.st.movement.Stop()
		c.st.movement = nil
	}
	if c.st.etaTick != nil {
		c.st.etaTick.Stop()
		c.st.etaTick = nil
	}
}

func (c *Controller) onMovementTick() {
	if c.st.vehicle == nil || c.st.status != models.StatusEnRoute {
		c.st.movement.Stop()
		c.st.movement = nil
		return
	}
	next, snapped := sim.Step(*c.st.vehicle, c.st.request.Origin)
	c.st.vehicle = &next
	c.st.ticks++
	observability.MovementTicks.Inc()
	if !snapped {
		c.emit(EventMoved, nil)
		return
	}
	c.st.movement.Stop()
	c.st.movement = nil
	c.st.status = models.StatusArrived
	c.st.arrivedAt = c.opts.Clock.Now()
	observability.ArrivalsTotal.Inc()
	observability.TimeToArrival.Observe(c.st.arrivedAt.Sub(c.st.requestedAt).Seconds())
	c.emit(EventArrived, nil)
	c.logger.Info("ambulance arrived",
		"dispatch_id", c.st.dispatchID,
		"ticks", c.st.ticks,
		"eta_minutes", c.st.countdown.Remaining,
	)
}

func (c *Controller) onETATick() {
	if !c.st.status.Active() {
		c.st.etaTick.Stop()
		c.st.etaTick = nil
		return
	}
	before := c.st.countdown.Remaining
	if after := c.st.countdown.Tick(); after != before {
		c.emit(EventETAChanged, nil)
	}
}

// Snapshot returns the current session state. After Close it returns the
// state captured at shutdown.
func (c *Controller) Snapshot() models.Snapshot {
	var out models.Snapshot
	if err := c.do(context.Background(), func() error {
		out = c.snapshot()
		return nil
	}); err != nil {
		return c.final
	}
	return out
}

func (c *Controller) snapshot() models.Snapshot {
	s := models.Snapshot{
		SessionID:     c.opts.SessionID,
		UserID:        c.opts.UserID,
		DispatchID:    c.st.dispatchID,
		Status:        c.st.status,
		EmergencyType: c.st.selection,
		Ticks:         c.st.ticks,
		RequestedAt:   c.st.requestedAt,
		ArrivedAt:     c.st.arrivedAt,
	}
	if c.st.userLoc != nil {
		o := *c.st.userLoc
		s.Origin = &o
	}
	if !c.st.status.Active() {
		return s
	}
	target := c.st.request.Origin
	s.Origin = &target
	if c.st.vehicle != nil {
		v := *c.st.vehicle
		s.Vehicle = &v
		s.DistanceMeters = geo.Distance(v, target)
	}
	remaining := c.st.countdown.Remaining
	s.ETAMinutes = &remaining
	s.InitialETAMinutes = c.st.countdown.Initial
	unit := c.opts.Unit
	s.Unit = &unit
	return s
}

func (c *Controller) emit(kind EventKind, prev *models.Snapshot) {
	s := c.snapshot()
	c.publish(s)
	c.hooks.emit(Event{Kind: kind, Snapshot: s, Previous: prev, At: c.opts.Clock.Now()})
}

// Subscribe returns a channel carrying the latest snapshot after every
// change. Slow readers only see the most recent value. The channel is
// closed by cancel or when the session closes.
func (c *Controller) Subscribe() (<-chan models.Snapshot, func()) {
	ch := make(chan models.Snapshot, 1)
	c.subsMu.Lock()
	if c.subsClosed {
		c.subsMu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.subsMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.subsMu.Lock()
			defer c.subsMu.Unlock()
			if sub, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(sub)
			}
		})
	}
}

func (c *Controller) publish(s models.Snapshot) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	for _, ch := range c.subs {
		select {
		case ch <- s:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- s:
		default:
		}
	}
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, models.ErrMissingEmergencyType):
		return "missing_emergency_type"
	case errors.Is(err, models.ErrMissingUserLocation):
		return "missing_user_location"
	case errors.Is(err, models.ErrLocationPermissionDenied):
		return "location_permission_denied"
	case errors.Is(err, models.ErrLocationUnavailable):
		return "location_unavailable"
	case errors.Is(err, models.ErrInvalidEmergencyType):
		return "invalid_emergency_type"
	default:
		return "other"
	}
}
