package models

import "errors"

var (
	ErrLocationPermissionDenied = errors.New("location permission denied")
	ErrLocationUnavailable      = errors.New("location unavailable")
	ErrMissingEmergencyType     = errors.New("emergency type not selected")
	ErrMissingUserLocation      = errors.New("user location not available")
	ErrInvalidEmergencyType     = errors.New("invalid emergency type")
)
