package models

import (
	"strings"
	"time"
)

type GeoPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type EmergencyType string

const (
	EmergencyHeartAttack EmergencyType = "heart_attack"
	EmergencyAccident    EmergencyType = "accident"
	EmergencyStroke      EmergencyType = "stroke"
	EmergencyOther       EmergencyType = "other"
)

// EmergencyTypes lists the selectable types in display order.
var EmergencyTypes = []EmergencyType{EmergencyHeartAttack, EmergencyAccident, EmergencyStroke, EmergencyOther}

func (t EmergencyType) Label() string {
	switch t {
	case EmergencyHeartAttack:
		return "Heart Attack"
	case EmergencyAccident:
		return "Accident"
	case EmergencyStroke:
		return "Stroke"
	case EmergencyOther:
		return "Other"
	default:
		return ""
	}
}

func (t EmergencyType) Valid() bool { return t.Label() != "" }

// ParseEmergencyType accepts either the wire value or the display label.
func ParseEmergencyType(s string) (EmergencyType, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.ReplaceAll(norm, " ", "_")
	t := EmergencyType(norm)
	if !t.Valid() {
		return "", ErrInvalidEmergencyType
	}
	return t, nil
}

type DispatchRequest struct {
	EmergencyType EmergencyType `json:"emergency_type"`
	Origin        GeoPoint      `json:"origin"`
}

// NewDispatchRequest is the only way to build a DispatchRequest; both the
// emergency type and the user's location must be known.
func NewDispatchRequest(t EmergencyType, origin *GeoPoint) (DispatchRequest, error) {
	if t == "" {
		return DispatchRequest{}, ErrMissingEmergencyType
	}
	if !t.Valid() {
		return DispatchRequest{}, ErrInvalidEmergencyType
	}
	if origin == nil {
		return DispatchRequest{}, ErrMissingUserLocation
	}
	return DispatchRequest{EmergencyType: t, Origin: *origin}, nil
}

type Status string

const (
	StatusIdle      Status = "idle"
	StatusRequested Status = "requested"
	StatusEnRoute   Status = "en_route"
	StatusArrived   Status = "arrived"
)

// Active reports whether a dispatch is in progress or has arrived.
func (s Status) Active() bool { return s != StatusIdle && s != "" }

type UnitInfo struct {
	ParamedicTeam string `json:"paramedic_team"`
	Hospital      string `json:"hospital"`
	Vehicle       string `json:"vehicle"`
}

// Snapshot is a consistent copy of a dispatch session taken on the
// session's own goroutine.
type Snapshot struct {
	SessionID         string        `json:"session_id"`
	UserID            string        `json:"user_id,omitempty"`
	DispatchID        string        `json:"dispatch_id,omitempty"`
	Status            Status        `json:"status"`
	EmergencyType     EmergencyType `json:"emergency_type,omitempty"`
	Origin            *GeoPoint     `json:"origin,omitempty"`
	Vehicle           *GeoPoint     `json:"vehicle,omitempty"`
	ETAMinutes        *int          `json:"eta_minutes,omitempty"`
	InitialETAMinutes int           `json:"initial_eta_minutes"`
	Unit              *UnitInfo     `json:"unit,omitempty"`
	Ticks             int           `json:"ticks"`
	DistanceMeters    float64       `json:"distance_meters"`
	RequestedAt       time.Time     `json:"requested_at,omitzero"`
	ArrivedAt         time.Time     `json:"arrived_at,omitzero"`
}

// Dispatch is the persisted record of one confirmed request.
type Dispatch struct {
	ID            string
	SessionID     string
	UserID        string
	EmergencyType EmergencyType
	Origin        GeoPoint
	Start         GeoPoint
	Status        string // en_route, arrived, cancelled, completed
	PaymentRef    string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	ArrivedAt     *time.Time
}

const (
	DispatchEnRoute   = "en_route"
	DispatchArrived   = "arrived"
	DispatchCancelled = "cancelled"
	DispatchCompleted = "completed"
)

// Vehicle is the last published position of a simulated ambulance.
type Vehicle struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Plate     string    `json:"plate"`
	Loc       GeoPoint  `json:"loc"`
	Status    Status    `json:"status"`
	Updated   time.Time `json:"updated"`
}

// DispatchEvent is the wire form of a session lifecycle event on the
// dispatch-events topic.
type DispatchEvent struct {
	Kind          string        `json:"kind"`
	SessionID     string        `json:"session_id"`
	DispatchID    string        `json:"dispatch_id,omitempty"`
	UserID        string        `json:"user_id,omitempty"`
	Status        Status        `json:"status"`
	EmergencyType EmergencyType `json:"emergency_type,omitempty"`
	Vehicle       *GeoPoint     `json:"vehicle,omitempty"`
	Plate         string        `json:"plate,omitempty"`
	ETAMinutes    *int          `json:"eta_minutes,omitempty"`
	At            time.Time     `json:"at"`
}
