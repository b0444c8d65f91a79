package presentation

import (
	"fmt"

	"github.com/example/ambulance-tracking/internal/eta"
	"github.com/example/ambulance-tracking/internal/models"
)

type MarkerKind string

const (
	MarkerUser      MarkerKind = "user"
	MarkerAmbulance MarkerKind = "ambulance"
)

type Marker struct {
	Kind    MarkerKind      `json:"kind"`
	Point   models.GeoPoint `json:"point"`
	Icon    string          `json:"icon"`
	Opacity float64         `json:"opacity"`
}

type Viewport struct {
	Center         models.GeoPoint `json:"center"`
	LatitudeDelta  float64         `json:"latitude_delta"`
	LongitudeDelta float64         `json:"longitude_delta"`
}

const (
	DefaultLatitudeDelta  = 0.0922
	DefaultLongitudeDelta = 0.0421
)

type Option struct {
	Type     models.EmergencyType `json:"type"`
	Label    string               `json:"label"`
	Icon     string               `json:"icon"`
	Selected bool                 `json:"selected"`
}

type Panel struct {
	Title           string           `json:"title"`
	Notice          string           `json:"notice,omitempty"`
	Options         []Option         `json:"options,omitempty"`
	Action          string           `json:"action,omitempty"`
	ETAText         string           `json:"eta_text,omitempty"`
	ProgressPercent float64          `json:"progress_percent"`
	Unit            *models.UnitInfo `json:"unit,omitempty"`
	EmergencyLine   string           `json:"emergency_line,omitempty"`
}

// Frame is everything the map surface needs to draw one state of the screen.
type Frame struct {
	SessionID string        `json:"session_id"`
	Status    models.Status `json:"status"`
	Markers   []Marker      `json:"markers"`
	Viewport  *Viewport     `json:"viewport,omitempty"`
	Panel     Panel         `json:"panel"`
}

func optionIcon(t models.EmergencyType) string {
	switch t {
	case models.EmergencyHeartAttack:
		return "heart-pulse"
	case models.EmergencyAccident:
		return "car-brake-alert"
	case models.EmergencyStroke:
		return "brain"
	default:
		return "alert"
	}
}

// Render maps a session snapshot to a frame. opacity only affects the
// ambulance marker.
func Render(s models.Snapshot, opacity float64, emergencyLine string) Frame {
	f := Frame{
		SessionID: s.SessionID,
		Status:    s.Status,
		Markers:   []Marker{},
		Panel:     Panel{Title: "Emergency Assistance"},
	}
	if s.Origin == nil {
		f.Panel.Notice = "Fetching your location..."
		return f
	}
	f.Viewport = &Viewport{Center: *s.Origin, LatitudeDelta: DefaultLatitudeDelta, LongitudeDelta: DefaultLongitudeDelta}
	f.Markers = append(f.Markers, Marker{Kind: MarkerUser, Point: *s.Origin, Icon: "person-pin", Opacity: 1})

	if !s.Status.Active() {
		for _, t := range models.EmergencyTypes {
			f.Panel.Options = append(f.Panel.Options, Option{
				Type:     t,
				Label:    t.Label(),
				Icon:     optionIcon(t),
				Selected: t == s.EmergencyType,
			})
		}
		f.Panel.Action = "Request Ambulance"
		return f
	}

	if s.Vehicle != nil {
		f.Markers = append(f.Markers, Marker{Kind: MarkerAmbulance, Point: *s.Vehicle, Icon: "ambulance", Opacity: opacity})
	}
	if s.ETAMinutes != nil {
		f.Panel.ETAText = fmt.Sprintf("Ambulance ETA: %d mins", *s.ETAMinutes)
		f.Panel.ProgressPercent = eta.Progress(*s.ETAMinutes, s.InitialETAMinutes)
	}
	if s.Status == models.StatusArrived {
		f.Panel.Notice = "The ambulance has arrived"
	}
	f.Panel.Unit = s.Unit
	f.Panel.Action = "Contact Paramedics"
	if emergencyLine != "" {
		f.Panel.EmergencyLine = "tel:" + emergencyLine
	}
	return f
}
