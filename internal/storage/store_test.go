package storage

import (
	"context"
	"errors"
	"io/fs"
	"testing"
	"time"

	"github.com/example/ambulance-tracking/internal/models"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	d := &models.Dispatch{ID: "d1", SessionID: "s1", EmergencyType: models.EmergencyStroke, Status: models.DispatchEnRoute, CreatedAt: time.Now()}
	if err := m.SaveDispatch(ctx, d); err != nil {
		t.Fatal(err)
	}
	d.Status = models.DispatchArrived
	if got, _ := m.GetDispatch(ctx, "d1"); got.Status != models.DispatchEnRoute {
		t.Fatal("store must keep its own copy")
	}
	if err := m.UpdateDispatch(ctx, d); err != nil {
		t.Fatal(err)
	}
	got, err := m.GetDispatch(ctx, "d1")
	if err != nil || got.Status != models.DispatchArrived {
		t.Fatalf("unexpected dispatch %+v, err=%v", got, err)
	}
}

func TestMemoryStoreMissing(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	if _, err := m.GetDispatch(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := m.UpdateDispatch(ctx, &models.Dispatch{ID: "nope"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMigrationsBundled(t *testing.T) {
	names, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil || len(names) == 0 {
		t.Fatalf("expected bundled migrations, got %v (err=%v)", names, err)
	}
}
