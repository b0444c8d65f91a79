package location

import (
	"context"

	"github.com/example/ambulance-tracking/internal/models"
)

type Permission string

const (
	Granted Permission = "granted"
	Denied  Permission = "denied"
)

// Provider is the device location service. Both calls happen once, when a
// tracking screen mounts.
type Provider interface {
	RequestPermission(ctx context.Context) (Permission, error)
	CurrentPosition(ctx context.Context) (models.GeoPoint, error)
}

// Static grants permission and always reports the same position.
type Static struct{ Point models.GeoPoint }

func (s Static) RequestPermission(context.Context) (Permission, error) { return Granted, nil }

func (s Static) CurrentPosition(context.Context) (models.GeoPoint, error) { return s.Point, nil }

// DeniedProvider refuses permission.
type DeniedProvider struct{}

func (DeniedProvider) RequestPermission(context.Context) (Permission, error) { return Denied, nil }

func (DeniedProvider) CurrentPosition(context.Context) (models.GeoPoint, error) {
	return models.GeoPoint{}, models.ErrLocationPermissionDenied
}

// Unavailable grants permission but cannot produce a fix.
type Unavailable struct{ Err error }

func (Unavailable) RequestPermission(context.Context) (Permission, error) { return Granted, nil }

func (u Unavailable) CurrentPosition(context.Context) (models.GeoPoint, error) {
	if u.Err != nil {
		return models.GeoPoint{}, u.Err
	}
	return models.GeoPoint{}, models.ErrLocationUnavailable
}
