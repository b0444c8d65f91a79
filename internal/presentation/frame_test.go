package presentation

import (
	"testing"
	"time"

	"github.com/example/ambulance-tracking/internal/models"
)

func intPtr(v int) *int { return &v }

func TestRenderWhileLocating(t *testing.T) {
	f := Render(models.Snapshot{SessionID: "s1", Status: models.StatusIdle}, PulseHigh, "10111")
	if f.Panel.Notice != "Fetching your location..." {
		t.Fatalf("unexpected notice %q", f.Panel.Notice)
	}
	if len(f.Markers) != 0 || f.Viewport != nil {
		t.Fatalf("expected empty map, got %+v", f)
	}
}

func TestRenderIdleShowsSelector(t *testing.T) {
	origin := models.GeoPoint{Latitude: -1.95, Longitude: 30.06}
	f := Render(models.Snapshot{Status: models.StatusIdle, Origin: &origin, EmergencyType: models.EmergencyStroke}, PulseLow, "10111")

	if len(f.Markers) != 1 || f.Markers[0].Kind != MarkerUser || f.Markers[0].Point != origin {
		t.Fatalf("expected only the user marker, got %+v", f.Markers)
	}
	if f.Viewport == nil || f.Viewport.Center != origin || f.Viewport.LatitudeDelta != DefaultLatitudeDelta {
		t.Fatalf("unexpected viewport %+v", f.Viewport)
	}
	if len(f.Panel.Options) != 4 {
		t.Fatalf("expected 4 options, got %d", len(f.Panel.Options))
	}
	for _, o := range f.Panel.Options {
		if o.Selected != (o.Type == models.EmergencyStroke) {
			t.Fatalf("wrong selection flag on %s", o.Type)
		}
	}
	if f.Panel.Options[0].Label != "Heart Attack" || f.Panel.Options[0].Icon != "heart-pulse" {
		t.Fatalf("unexpected first option %+v", f.Panel.Options[0])
	}
	if f.Panel.Action != "Request Ambulance" || f.Panel.ETAText != "" {
		t.Fatalf("unexpected idle panel %+v", f.Panel)
	}
}

func TestRenderEnRoute(t *testing.T) {
	origin := models.GeoPoint{}
	vehicle := models.GeoPoint{Latitude: -0.005, Longitude: -0.01}
	unit := &models.UnitInfo{ParamedicTeam: "Dr. Alice & Team", Hospital: "King Faisal Hospital", Vehicle: "MEG 1234"}
	f := Render(models.Snapshot{
		Status:            models.StatusEnRoute,
		Origin:            &origin,
		Vehicle:           &vehicle,
		ETAMinutes:        intPtr(6),
		InitialETAMinutes: 8,
		Unit:              unit,
	}, PulseLow, "10111")

	if len(f.Markers) != 2 {
		t.Fatalf("expected user and ambulance markers, got %d", len(f.Markers))
	}
	amb := f.Markers[1]
	if amb.Kind != MarkerAmbulance || amb.Point != vehicle || amb.Opacity != PulseLow {
		t.Fatalf("unexpected ambulance marker %+v", amb)
	}
	if f.Panel.ETAText != "Ambulance ETA: 6 mins" {
		t.Fatalf("unexpected eta text %q", f.Panel.ETAText)
	}
	if f.Panel.ProgressPercent != 25 {
		t.Fatalf("expected 25%% progress, got %v", f.Panel.ProgressPercent)
	}
	if f.Panel.Unit == nil || f.Panel.Unit.Hospital != "King Faisal Hospital" {
		t.Fatalf("expected unit info, got %+v", f.Panel.Unit)
	}
	if f.Panel.EmergencyLine != "tel:10111" || f.Panel.Action != "Contact Paramedics" {
		t.Fatalf("unexpected panel %+v", f.Panel)
	}
	if len(f.Panel.Options) != 0 {
		t.Fatal("selector must be hidden while a dispatch is active")
	}
}

func TestRenderArrivedKeepsETA(t *testing.T) {
	origin := models.GeoPoint{}
	f := Render(models.Snapshot{
		Status:            models.StatusArrived,
		Origin:            &origin,
		Vehicle:           &origin,
		ETAMinutes:        intPtr(3),
		InitialETAMinutes: 8,
	}, PulseHigh, "")
	if f.Panel.Notice == "" {
		t.Fatal("expected arrival notice")
	}
	if f.Panel.ETAText != "Ambulance ETA: 3 mins" {
		t.Fatalf("eta should be shown as counted, got %q", f.Panel.ETAText)
	}
	if f.Panel.EmergencyLine != "" {
		t.Fatalf("expected no emergency line, got %q", f.Panel.EmergencyLine)
	}
}

func TestPulseAlternates(t *testing.T) {
	var p Pulse
	if p.Opacity() != PulseLow {
		t.Fatalf("expected pulse to start low, got %v", p.Opacity())
	}
	if got := p.Advance(); got != PulseHigh {
		t.Fatalf("expected high after one phase, got %v", got)
	}
	if got := p.Advance(); got != PulseLow {
		t.Fatalf("expected low after two phases, got %v", got)
	}
}

func TestOpacityAt(t *testing.T) {
	cases := []struct {
		at   time.Duration
		want float64
	}{
		{0, PulseLow},
		{PulsePhase / 2, 0.65},
		{PulsePhase, PulseHigh},
		{PulsePhase + PulsePhase/2, 0.65},
		{2 * PulsePhase, PulseLow},
		{5 * PulsePhase, PulseHigh},
	}
	for _, tc := range cases {
		got := OpacityAt(tc.at)
		if diff := got - tc.want; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("OpacityAt(%s) = %v, want %v", tc.at, got, tc.want)
		}
	}
}
