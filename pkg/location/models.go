package location

import (
	"errors"
	"time"
)

// Priority expresses the accuracy preference of a location request.
type Priority int

const (
	// PriorityHighAccuracy asks for the most precise fixes the source can deliver.
	PriorityHighAccuracy Priority = iota
	// PriorityBalanced accepts coarser fixes.
	PriorityBalanced
)

const (
	// DefaultInterval is the nominal time between two fixes.
	DefaultInterval = 1000 * time.Millisecond
	// DefaultFastestInterval is the minimum time between two delivered fixes.
	DefaultFastestInterval = 50 * time.Millisecond
)

// Location represents the geographical coordinates of a device
type Location struct {
	Latitude  float64
	Longitude float64
	Accuracy  float64
	Time      time.Time
}

// Request describes how often and how precisely fixes should be delivered.
type Request struct {
	Interval        time.Duration
	FastestInterval time.Duration
	Priority        Priority
}

// DefaultRequest returns a high accuracy request at the nominal 1s / 50ms rates.
func DefaultRequest() Request {
	return Request{
		Interval:        DefaultInterval,
		FastestInterval: DefaultFastestInterval,
		Priority:        PriorityHighAccuracy,
	}
}

// ParsePriority maps a configuration value to a Priority.
func ParsePriority(s string) Priority {
	if s == "balanced" {
		return PriorityBalanced
	}
	return PriorityHighAccuracy
}

var (
	ErrInvalidLatitude  = errors.New("latitude must be between -90 and 90")
	ErrInvalidLongitude = errors.New("longitude must be between -180 and 180")
	ErrNoFix            = errors.New("no valid GPS data found")
)

// Validate checks that the coordinates are within range.
func (l Location) Validate() error {
	if l.Latitude < -90 || l.Latitude > 90 {
		return ErrInvalidLatitude
	}
	if l.Longitude < -180 || l.Longitude > 180 {
		return ErrInvalidLongitude
	}
	return nil
}
