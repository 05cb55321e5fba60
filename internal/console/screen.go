package console

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/benmeehan/gps-streamer/internal/models"
)

// Title is the first line of the screen.
const Title = "Begin GPS Coordinates Streaming"

// Lines returns the text shown for a snapshot.
func Lines(snap models.Snapshot) []string {
	state := "stopped"
	switch {
	case snap.Active:
		state = "streaming"
	case snap.Required:
		state = "paused"
	}

	lines := []string{
		Title + " [" + state + "]",
		"Latitude : " + snap.Record.LatitudeText(),
		"Longitude : " + snap.Record.LongitudeText(),
		"Status : " + snap.Record.Message,
	}
	if snap.Notice.Text != "" {
		lines = append(lines, "> "+snap.Notice.Text)
	}
	return lines
}

// Screen redraws the lines on a writer whenever they change.
type Screen struct {
	mu      sync.Mutex
	out     io.Writer
	last    string
	version uint64
}

// NewScreen creates a Screen writing to out.
func NewScreen(out io.Writer) *Screen {
	return &Screen{out: out}
}

// Render writes the snapshot unless it is older than the frame on screen or identical to it.
func (s *Screen) Render(snap models.Snapshot) {
	frame := strings.Join(Lines(snap), "\n")

	s.mu.Lock()
	defer s.mu.Unlock()
	if snap.Version < s.version || frame == s.last {
		return
	}
	s.version = snap.Version
	s.last = frame
	fmt.Fprintf(s.out, "\n%s\n", frame)
}
