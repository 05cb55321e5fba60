package models

import (
	"strconv"
	"time"
)

// LocationRecord is the payload exchanged with the location endpoint. Field names
// match the server's expected JSON keys.
type LocationRecord struct {
	Latitude  float64 `json:"Latitude"`
	Longitude float64 `json:"Longitude"`
	Message   string  `json:"message"`
}

// LatitudeText formats the latitude the way it is shown on screen.
func (r LocationRecord) LatitudeText() string {
	return strconv.FormatFloat(r.Latitude, 'f', -1, 64)
}

// LongitudeText formats the longitude the way it is shown on screen.
func (r LocationRecord) LongitudeText() string {
	return strconv.FormatFloat(r.Longitude, 'f', -1, 64)
}

// Location represents a geographical location with associated metadata
type Location struct {
	DeviceID  string    `json:"device_id"`
	Timestamp time.Time `json:"timestamp"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Accuracy  float64   `json:"accuracy"`
}
