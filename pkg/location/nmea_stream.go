package location

import (
	"bufio"
	"context"
	"io"
	"strings"
	"time"

	"github.com/adrianmo/go-nmea"
)

// sentenceToLocation extracts a fix from a GGA or RMC sentence. The boolean is false
// for any other sentence or, under high accuracy, for a sentence without a valid fix.
func sentenceToLocation(sentence nmea.Sentence, priority Priority) (Location, bool) {
	switch s := sentence.(type) {
	case nmea.GGA:
		if priority == PriorityHighAccuracy && s.FixQuality == nmea.Invalid {
			return Location{}, false
		}
		return Location{
			Latitude:  s.Latitude,
			Longitude: s.Longitude,
			Accuracy:  s.HDOP, // HDOP as a proxy for accuracy
		}, true
	case nmea.RMC:
		if priority == PriorityHighAccuracy && s.Validity != nmea.ValidRMC {
			return Location{}, false
		}
		return Location{
			Latitude:  s.Latitude,
			Longitude: s.Longitude,
		}, true
	default:
		return Location{}, false
	}
}

// streamNMEA reads NMEA lines from r and hands every usable fix to listener, honouring
// the fastest interval of req. It returns nil when ctx is cancelled or r is exhausted.
// pace, when set, is waited after each delivered fix.
func streamNMEA(ctx context.Context, r io.Reader, req Request, listener Listener, pace time.Duration) error {
	gate := newThrottle(req.FastestInterval)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "$") {
			continue
		}
		sentence, err := nmea.Parse(line)
		if err != nil {
			// Unsupported sentence types and line noise are routine on a serial link.
			continue
		}

		loc, ok := sentenceToLocation(sentence, req.Priority)
		if !ok || loc.Validate() != nil || !gate.allow() {
			continue
		}
		loc.Time = time.Now()
		listener(loc)

		if pace > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(pace):
			}
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
