package service_registry

import (
	"errors"
	"fmt"

	"github.com/benmeehan/gps-streamer/internal/constants"
	"github.com/benmeehan/gps-streamer/internal/registry"
	"github.com/benmeehan/gps-streamer/internal/services"
	"github.com/benmeehan/gps-streamer/internal/utils"
	"github.com/benmeehan/gps-streamer/pkg/identity"
	"github.com/benmeehan/gps-streamer/pkg/location"
	"github.com/benmeehan/gps-streamer/pkg/mqtt"
	"github.com/benmeehan/gps-streamer/pkg/permission"
	"github.com/benmeehan/gps-streamer/pkg/uploader"
	"github.com/rs/zerolog"
)

// ServiceRegistry manages the lifecycle of various services in the system.
type ServiceRegistry struct {
	services    map[string]registry.Service // Stores registered services
	serviceKeys []string                    // Maintains order of service registration
	mqttClient  mqtt.MQTTClient
	permissions permission.ManagerInterface
	notifier    services.Notifier
	Logger      zerolog.Logger
}

// NewServiceRegistry initializes a new service registry with dependencies. mqttClient
// may be nil when the mirror is disabled.
func NewServiceRegistry(mqttClient mqtt.MQTTClient, permissions permission.ManagerInterface,
	notifier services.Notifier, logger zerolog.Logger) *ServiceRegistry {
	return &ServiceRegistry{
		services:    make(map[string]registry.Service),
		mqttClient:  mqttClient,
		permissions: permissions,
		notifier:    notifier,
		Logger:      logger,
	}
}

// RegisterService adds a new service to the registry.
func (sr *ServiceRegistry) RegisterService(name string, svc registry.Service) {
	if _, exists := sr.services[name]; exists {
		sr.Logger.Warn().Msgf("Service %s is already registered", name)
		return
	}
	sr.services[name] = svc
	sr.serviceKeys = append(sr.serviceKeys, name)
	sr.Logger.Info().Msgf("Registered service: %s", name)
}

// StartServices initiates all registered services in order.
// If a service fails to start, it stops already started services.
func (sr *ServiceRegistry) StartServices() error {
	startedServices := []string{}

	for _, name := range sr.serviceKeys {
		svc := sr.services[name]
		sr.Logger.Info().Msgf("Starting service: %s", name)
		if err := svc.Start(); err != nil {
			sr.Logger.Error().Err(err).Msgf("Failed to start service: %s", name)

			sr.Logger.Warn().Msg("Stopping already started services due to startup failure...")
			for i := len(startedServices) - 1; i >= 0; i-- {
				_ = sr.services[startedServices[i]].Stop()
			}
			return fmt.Errorf("failed to start %s: %w", name, err)
		}
		startedServices = append(startedServices, name)
	}

	return nil
}

// StopServices stops all services in reverse order.
func (sr *ServiceRegistry) StopServices() error {
	var stopErrors []error
	for i := len(sr.serviceKeys) - 1; i >= 0; i-- {
		name := sr.serviceKeys[i]
		if err := sr.services[name].Stop(); err != nil {
			stopErrors = append(stopErrors, fmt.Errorf("failed to stop %s: %w", name, err))
		}
	}
	if len(stopErrors) > 0 {
		for _, e := range stopErrors {
			sr.Logger.Error().Err(e).Msg("Service stop failure")
		}
		return errors.Join(stopErrors...)
	}
	return nil
}

// RegisterServices builds the streamer and, when enabled, the MQTT mirror. The streamer is
// returned so the console can drive it.
func (sr *ServiceRegistry) RegisterServices(config *utils.Config, deviceInfo identity.DeviceInfoInterface) (*services.StreamerService, error) {
	provider, err := NewLocationProvider(config)
	if err != nil {
		sr.Logger.Error().Err(err).Msg("Failed to create location provider")
		return nil, err
	}

	streamer := services.NewStreamerService(
		services.StreamerConfig{
			Request: location.Request{
				Interval:        config.Location.Interval,
				FastestInterval: config.Location.FastestInterval,
				Priority:        location.ParsePriority(config.Location.Priority),
			},
			Trigger:        config.Uploader.Trigger,
			UploadInterval: config.Uploader.Interval,
			AutoBegin:      config.Uploader.AutoBegin,
		},
		provider,
		uploader.NewHTTPUploader(config.Uploader.BaseURL, config.Uploader.Timeout),
		sr.permissions,
		sr.notifier,
		sr.Logger.With().Str("service", "streamer").Logger(),
	)
	sr.RegisterService("streamer", streamer)

	if config.Mirror.Enabled {
		if sr.mqttClient == nil {
			return nil, errors.New("mirror enabled without an MQTT client")
		}
		sr.RegisterService("mirror", services.NewMirrorService(
			config.Mirror.Topic,
			config.Mirror.Interval,
			config.Mirror.QOS,
			deviceInfo,
			sr.mqttClient,
			streamer,
			sr.Logger.With().Str("service", "mirror").Logger(),
		))
	}

	sr.Logger.Info().Msgf("Registered services in order: %v", sr.serviceKeys)
	return streamer, nil
}

// NewLocationProvider selects the location source named in the configuration.
func NewLocationProvider(config *utils.Config) (location.Provider, error) {
	switch config.Location.Provider {
	case constants.ProviderSerial:
		return location.NewDeviceSensorProvider(config.Location.GPSDevicePort, config.Location.GPSDeviceBaudRate), nil
	case constants.ProviderReplay:
		return location.NewReplayProvider(config.Location.ReplayFile, config.Location.ReplayLoop), nil
	case constants.ProviderGoogle:
		provider, err := location.NewGoogleGeolocationProvider(config.Location.MapsAPIKey, config.Location.ModemIndex)
		if err != nil {
			return nil, fmt.Errorf("failed to create Google Geolocation provider: %w", err)
		}
		return provider, nil
	default:
		return nil, fmt.Errorf("unknown location provider %q", config.Location.Provider)
	}
}
