package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/ambulance-tracking/internal/models"
	"github.com/redis/go-redis/v9"
)

// fakeUpdater implements RedisUpdater for tests
type fakeUpdater struct {
	failGeo  int // number of times to fail GeoAdd before succeeding
	failH    int // number of times to fail HSet before succeeding
	geoCalls int
	hCalls   int
	removed  []string
	lastLoc  *redis.GeoLocation
	lastMeta map[string]interface{}
}

func (f *fakeUpdater) GeoAdd(ctx context.Context, key string, loc *redis.GeoLocation) error {
	f.geoCalls++
	if f.geoCalls <= f.failGeo {
		return errors.New("geo fail")
	}
	f.lastLoc = loc
	return nil
}

func (f *fakeUpdater) HSet(ctx context.Context, key string, values map[string]interface{}) error {
	f.hCalls++
	if f.hCalls <= f.failH {
		return errors.New("hset fail")
	}
	f.lastMeta = values
	return nil
}

func (f *fakeUpdater) Remove(ctx context.Context, key, member, metaKey string) error {
	f.removed = append(f.removed, member, metaKey)
	return nil
}

func movedEvent() models.DispatchEvent {
	return models.DispatchEvent{
		Kind:       "moved",
		SessionID:  "s1",
		DispatchID: "d1",
		Status:     models.StatusEnRoute,
		Vehicle:    &models.GeoPoint{Latitude: 1, Longitude: 2},
		Plate:      "MEG 1234",
		At:         time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestApplyEventWithRetry_SucceedsAfterRetries(t *testing.T) {
	f := &fakeUpdater{failGeo: 1, failH: 1}
	ctx := context.Background()
	start := time.Now()
	applied, err := applyEventWithRetry(ctx, f, "ambulances_geo", movedEvent(), 3, 10*time.Millisecond)
	if err != nil || !applied {
		t.Fatalf("expected success, got applied=%v err=%v", applied, err)
	}
	if f.geoCalls < 2 || f.hCalls < 2 {
		t.Fatalf("expected retries, got geo=%d h=%d", f.geoCalls, f.hCalls)
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Fatalf("expected at least one backoff")
	}
	if f.lastLoc.Name != "d1" || f.lastLoc.Latitude != 1 || f.lastLoc.Longitude != 2 {
		t.Fatalf("unexpected geo member %+v", f.lastLoc)
	}
	if f.lastMeta["plate"] != "MEG 1234" || f.lastMeta["status"] != "en_route" || f.lastMeta["updated"] != "2024-05-01T12:00:00Z" {
		t.Fatalf("unexpected metadata %v", f.lastMeta)
	}
}

func TestApplyEventWithRetry_FailsWhenExhausted(t *testing.T) {
	f := &fakeUpdater{failGeo: 5, failH: 0}
	ctx := context.Background()
	if _, err := applyEventWithRetry(ctx, f, "ambulances_geo", movedEvent(), 3, 5*time.Millisecond); err == nil {
		t.Fatalf("expected error after retries")
	}
	if f.geoCalls != 3 {
		t.Fatalf("expected 3 attempts, got %d", f.geoCalls)
	}
}

func TestApplyEventWithRetry_ResetRemovesVehicle(t *testing.T) {
	f := &fakeUpdater{}
	ev := models.DispatchEvent{Kind: "reset", SessionID: "s1", DispatchID: "d1", Status: models.StatusIdle}
	applied, err := applyEventWithRetry(context.Background(), f, "ambulances_geo", ev, 3, time.Millisecond)
	if err != nil || !applied {
		t.Fatalf("expected removal, got applied=%v err=%v", applied, err)
	}
	if len(f.removed) != 2 || f.removed[0] != "d1" || f.removed[1] != "ambulance:meta:d1" {
		t.Fatalf("unexpected removal %v", f.removed)
	}
}

func TestApplyEventWithRetry_IgnoresOtherKinds(t *testing.T) {
	f := &fakeUpdater{}
	for _, kind := range []string{"requested", "eta_changed"} {
		ev := movedEvent()
		ev.Kind = kind
		applied, err := applyEventWithRetry(context.Background(), f, "ambulances_geo", ev, 3, time.Millisecond)
		if err != nil || applied {
			t.Fatalf("%s: expected no-op, got applied=%v err=%v", kind, applied, err)
		}
	}
	if f.geoCalls != 0 || f.hCalls != 0 {
		t.Fatalf("expected no redis calls, got geo=%d h=%d", f.geoCalls, f.hCalls)
	}
}
