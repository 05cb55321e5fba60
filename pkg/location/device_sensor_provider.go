package location

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/tarm/serial"
)

// DeviceSensorProvider is responsible for retrieving location data from a GPS device connected via serial port.
type DeviceSensorProvider struct {
	port     string // Serial port to which the GPS device is connected
	baudRate int    // Baud rate for the serial communication

	mu   sync.Mutex
	open io.Closer
}

// NewDeviceSensorProvider creates a new instance of DeviceSensorProvider with the specified port and baud rate.
func NewDeviceSensorProvider(port string, baudRate int) *DeviceSensorProvider {
	return &DeviceSensorProvider{
		port:     port,
		baudRate: baudRate,
	}
}

// RequestLocationUpdates opens the serial port and streams fixes until ctx is cancelled.
func (d *DeviceSensorProvider) RequestLocationUpdates(ctx context.Context, req Request, listener Listener) error {
	c := &serial.Config{Name: d.port, Baud: d.baudRate, ReadTimeout: time.Second}
	s, err := serial.OpenPort(c)
	if err != nil {
		return fmt.Errorf("failed to open GPS port %s: %w", d.port, err)
	}
	d.setOpen(s)
	defer d.setOpen(nil)
	defer s.Close()

	// Closing the port unblocks a pending read once the subscription is cancelled.
	stop := context.AfterFunc(ctx, func() { s.Close() })
	defer stop()

	return streamNMEA(ctx, idleReader{ctx: ctx, r: s}, req, listener, 0)
}

// idleReader hides the io.EOF a serial port reports when its read timeout expires
// without data, so a quiet receiver does not end the stream before ctx is done.
type idleReader struct {
	ctx context.Context
	r   io.Reader
}

func (r idleReader) Read(p []byte) (int, error) {
	for {
		n, err := r.r.Read(p)
		if n > 0 {
			return n, nil
		}
		if !errors.Is(err, io.EOF) {
			return 0, err
		}
		if r.ctx.Err() != nil {
			return 0, io.EOF
		}
	}
}

// Close releases the serial port if a subscription is still holding it.
func (d *DeviceSensorProvider) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.open == nil {
		return nil
	}
	err := d.open.Close()
	d.open = nil
	return err
}

func (d *DeviceSensorProvider) setOpen(c io.Closer) {
	d.mu.Lock()
	d.open = c
	d.mu.Unlock()
}

// ReplayProvider replays a recorded NMEA log, one fix per request interval.
type ReplayProvider struct {
	path string
	loop bool
}

// NewReplayProvider creates a provider reading NMEA sentences from path.
func NewReplayProvider(path string, loop bool) *ReplayProvider {
	return &ReplayProvider{path: path, loop: loop}
}

// RequestLocationUpdates replays the log until it ends (or forever when looping) or ctx is cancelled.
func (p *ReplayProvider) RequestLocationUpdates(ctx context.Context, req Request, listener Listener) error {
	for {
		f, err := os.Open(p.path)
		if err != nil {
			return fmt.Errorf("failed to open NMEA log %s: %w", p.path, err)
		}
		err = streamNMEA(ctx, f, req, listener, req.Interval)
		f.Close()
		if err != nil {
			return err
		}
		if !p.loop || ctx.Err() != nil {
			return nil
		}
	}
}

// Close is a no-op; the log file is closed after each pass.
func (p *ReplayProvider) Close() error {
	return nil
}
