// Package tracking fans dispatch session events out to the vehicle index,
// the event stream, the dispatch log and billing.
package tracking

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/example/ambulance-tracking/internal/dispatch"
	"github.com/example/ambulance-tracking/internal/geo"
	"github.com/example/ambulance-tracking/internal/ingest"
	"github.com/example/ambulance-tracking/internal/models"
	"github.com/example/ambulance-tracking/internal/observability"
	"github.com/example/ambulance-tracking/internal/payments"
	"github.com/example/ambulance-tracking/internal/storage"
)

// subject returns the snapshot the event is about. Reset events describe
// the dispatch they discarded.
func subject(ev dispatch.Event) models.Snapshot {
	if ev.Kind == dispatch.EventReset && ev.Previous != nil {
		return *ev.Previous
	}
	return ev.Snapshot
}

// ToDispatchEvent converts a session event into its wire form.
func ToDispatchEvent(ev dispatch.Event) models.DispatchEvent {
	s := subject(ev)
	out := models.DispatchEvent{
		Kind:          string(ev.Kind),
		SessionID:     ev.Snapshot.SessionID,
		DispatchID:    s.DispatchID,
		UserID:        ev.Snapshot.UserID,
		Status:        ev.Snapshot.Status,
		EmergencyType: s.EmergencyType,
		At:            ev.At,
	}
	if ev.Kind != dispatch.EventReset {
		out.Vehicle = ev.Snapshot.Vehicle
		out.ETAMinutes = ev.Snapshot.ETAMinutes
	}
	if s.Unit != nil {
		out.Plate = s.Unit.Vehicle
	}
	return out
}

// GeoSink mirrors the simulated ambulance into a vehicle index.
type GeoSink struct {
	Index geo.Index
}

func (g GeoSink) HandleEvent(_ context.Context, ev dispatch.Event) error {
	switch ev.Kind {
	case dispatch.EventEnRoute, dispatch.EventMoved, dispatch.EventArrived:
		s := ev.Snapshot
		if s.Vehicle == nil || s.DispatchID == "" {
			return nil
		}
		v := models.Vehicle{ID: s.DispatchID, SessionID: s.SessionID, Loc: *s.Vehicle, Status: s.Status, Updated: ev.At}
		if s.Unit != nil {
			v.Plate = s.Unit.Vehicle
		}
		g.Index.Upsert(v)
	case dispatch.EventReset:
		if prev := subject(ev); prev.DispatchID != "" {
			g.Index.Remove(prev.DispatchID)
		}
	}
	return nil
}

// EventSink publishes every lifecycle event.
type EventSink struct {
	Publisher ingest.Publisher
}

func (e EventSink) HandleEvent(ctx context.Context, ev dispatch.Event) error {
	err := e.Publisher.PublishEvent(ctx, ToDispatchEvent(ev))
	result := "ok"
	if err != nil {
		result = "error"
	}
	observability.EventsPublished.WithLabelValues(string(ev.Kind), result).Inc()
	return err
}

// StoreSink records each dispatch and its outcome.
type StoreSink struct {
	Store storage.DispatchStore
}

func (st StoreSink) HandleEvent(ctx context.Context, ev dispatch.Event) error {
	switch ev.Kind {
	case dispatch.EventRequested:
		s := ev.Snapshot
		if s.Origin == nil || s.Vehicle == nil {
			return nil
		}
		return st.Store.SaveDispatch(ctx, &models.Dispatch{
			ID:            s.DispatchID,
			SessionID:     s.SessionID,
			UserID:        s.UserID,
			EmergencyType: s.EmergencyType,
			Origin:        *s.Origin,
			Start:         *s.Vehicle,
			Status:        models.DispatchEnRoute,
			CreatedAt:     ev.At,
			UpdatedAt:     ev.At,
		})
	case dispatch.EventArrived:
		return st.update(ctx, ev.Snapshot.DispatchID, func(d *models.Dispatch) {
			at := ev.At
			d.Status = models.DispatchArrived
			d.ArrivedAt = &at
			d.UpdatedAt = ev.At
		})
	case dispatch.EventReset:
		prev := subject(ev)
		return st.update(ctx, prev.DispatchID, func(d *models.Dispatch) {
			d.Status = models.DispatchCancelled
			if prev.Status == models.StatusArrived {
				d.Status = models.DispatchCompleted
			}
			d.UpdatedAt = ev.At
		})
	}
	return nil
}

func (st StoreSink) update(ctx context.Context, id string, fn func(*models.Dispatch)) error {
	if id == "" {
		return nil
	}
	d, err := st.Store.GetDispatch(ctx, id)
	if err != nil {
		return err
	}
	fn(d)
	return st.Store.UpdateDispatch(ctx, d)
}

// BillingSink holds the call-out fee when a dispatch is requested, captures
// it on arrival and releases it when the dispatch is reset before arrival.
type BillingSink struct {
	billing  payments.Billing
	store    storage.DispatchStore
	amount   int64
	currency string
	logger   *slog.Logger

	mu    sync.Mutex
	holds map[string]string
}

// NewBillingSink builds a billing hook. store is optional; when set the
// payment reference is written onto the dispatch record.
func NewBillingSink(b payments.Billing, store storage.DispatchStore, amount int64, currency string, logger *slog.Logger) *BillingSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &BillingSink{
		billing:  b,
		store:    store,
		amount:   amount,
		currency: currency,
		logger:   logger,
		holds:    make(map[string]string),
	}
}

func (b *BillingSink) HandleEvent(ctx context.Context, ev dispatch.Event) error {
	switch ev.Kind {
	case dispatch.EventRequested:
		id := ev.Snapshot.DispatchID
		ref, err := b.billing.Hold(ctx, b.amount, b.currency, id)
		if err != nil {
			return err
		}
		b.mu.Lock()
		b.holds[id] = ref
		b.mu.Unlock()
		if b.store == nil {
			return nil
		}
		d, err := b.store.GetDispatch(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		d.PaymentRef = ref
		return b.store.UpdateDispatch(ctx, d)
	case dispatch.EventArrived:
		ref, ok := b.take(ev.Snapshot.DispatchID)
		if !ok {
			return nil
		}
		if err := b.billing.Capture(ctx, ref); err != nil {
			return err
		}
		b.logger.Info("call-out fee captured", "dispatch_id", ev.Snapshot.DispatchID, "payment_ref", ref)
	case dispatch.EventReset:
		prev := subject(ev)
		ref, ok := b.take(prev.DispatchID)
		if !ok {
			return nil
		}
		return b.billing.Cancel(ctx, ref)
	}
	return nil
}

// Pending reports the hold reference for a dispatch that has neither been
// captured nor released.
func (b *BillingSink) Pending(dispatchID string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ref, ok := b.holds[dispatchID]
	return ref, ok
}

func (b *BillingSink) take(id string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ref, ok := b.holds[id]
	delete(b.holds, id)
	return ref, ok
}
