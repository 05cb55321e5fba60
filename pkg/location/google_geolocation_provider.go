package location

import (
	"context"
	"time"

	"googlemaps.github.io/maps"
)

// geolocator is the subset of *maps.Client used by GoogleGeolocationProvider.
type geolocator interface {
	Geolocate(ctx context.Context, r *maps.GeolocationRequest) (*maps.GeolocationResult, error)
}

// GoogleGeolocationProvider uses the Google Maps API to get location data.
type GoogleGeolocationProvider struct {
	client     geolocator // Maps API client for making geolocation requests
	modemIndex int        // ModemManager index used for cell tower lookup
	timeout    time.Duration

	// Overridable for tests
	wifiScan func(ctx context.Context) ([]maps.WiFiAccessPoint, error)
	cellScan func(ctx context.Context, modemIndex int) ([]maps.CellTower, error)
}

// NewGoogleGeolocationProvider creates a new GoogleGeolocationProvider instance.
func NewGoogleGeolocationProvider(apiKey string, modemIndex int) (*GoogleGeolocationProvider, error) {
	c, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}

	return newGoogleGeolocationProvider(c, modemIndex), nil
}

func newGoogleGeolocationProvider(client geolocator, modemIndex int) *GoogleGeolocationProvider {
	return &GoogleGeolocationProvider{
		client:     client,
		modemIndex: modemIndex,
		timeout:    10 * time.Second,
		wifiScan:   getWiFiAccessPoints,
		cellScan:   getCellTowers,
	}
}

// RequestLocationUpdates polls the Geolocation API every req.Interval until ctx is cancelled.
// A failed lookup ends the subscription with that error.
func (g *GoogleGeolocationProvider) RequestLocationUpdates(ctx context.Context, req Request, listener Listener) error {
	interval := req.Interval
	if interval < req.FastestInterval {
		interval = req.FastestInterval
	}
	if interval <= 0 {
		interval = DefaultInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		loc, err := g.getLocation(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if loc.Validate() == nil {
			listener(loc)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// getLocation retrieves the device's location using Google Maps Geolocation API.
func (g *GoogleGeolocationProvider) getLocation(ctx context.Context) (Location, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	// Missing nmcli/mmcli or a device without a modem only narrows the request;
	// the API still answers from the IP address.
	wifiAPs, _ := g.wifiScan(ctx)
	cellTowers, _ := g.cellScan(ctx, g.modemIndex)

	req := &maps.GeolocationRequest{
		ConsiderIP:       true,
		WiFiAccessPoints: wifiAPs,
		CellTowers:       cellTowers,
	}

	resp, err := g.client.Geolocate(ctx, req)
	if err != nil {
		return Location{}, err
	}

	return Location{
		Latitude:  resp.Location.Lat,
		Longitude: resp.Location.Lng,
		Accuracy:  resp.Accuracy,
		Time:      time.Now(),
	}, nil
}

// Close is a no-op; the Maps client holds no resources.
func (g *GoogleGeolocationProvider) Close() error {
	return nil
}
