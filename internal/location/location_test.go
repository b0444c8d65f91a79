package location

import (
	"context"
	"errors"
	"testing"

	"github.com/example/ambulance-tracking/internal/models"
)

func TestProviders(t *testing.T) {
	ctx := context.Background()
	pt := models.GeoPoint{Latitude: 1, Longitude: 2}
	boom := errors.New("gps off")

	tests := []struct {
		name     string
		p        Provider
		perm     Permission
		wantErr  error
		wantSpot models.GeoPoint
	}{
		{"static", Static{Point: pt}, Granted, nil, pt},
		{"denied", DeniedProvider{}, Denied, models.ErrLocationPermissionDenied, models.GeoPoint{}},
		{"unavailable default", Unavailable{}, Granted, models.ErrLocationUnavailable, models.GeoPoint{}},
		{"unavailable custom", Unavailable{Err: boom}, Granted, boom, models.GeoPoint{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			perm, err := tc.p.RequestPermission(ctx)
			if err != nil || perm != tc.perm {
				t.Fatalf("permission = %q err=%v, want %q", perm, err, tc.perm)
			}
			got, err := tc.p.CurrentPosition(ctx)
			if !errors.Is(err, tc.wantErr) || got != tc.wantSpot {
				t.Fatalf("position = %+v err=%v, want %+v err=%v", got, err, tc.wantSpot, tc.wantErr)
			}
		})
	}
}
