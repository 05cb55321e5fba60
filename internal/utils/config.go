package utils

import (
	"errors"
	"fmt"
	"time"

	"github.com/benmeehan/gps-streamer/internal/constants"
	"github.com/benmeehan/gps-streamer/pkg/file"
	"github.com/benmeehan/gps-streamer/pkg/permission"
)

// Config represents the structure of the configuration file.
type Config struct {
	Logging struct {
		Level      string `yaml:"level"`        // zerolog level name
		Console    bool   `yaml:"console"`      // Human readable output on stderr instead of JSON
		File       string `yaml:"file"`         // Optional log file, rotated by size
		MaxSizeMB  int    `yaml:"max_size_mb"`  // Rotate after this many megabytes
		MaxBackups int    `yaml:"max_backups"`  // Rotated files to keep
		MaxAgeDays int    `yaml:"max_age_days"` // Days to keep rotated files
	} `yaml:"logging"`

	Identity struct {
		DeviceFile string `yaml:"device_file"` // Path to the device identity file
	} `yaml:"identity"`

	Permissions struct {
		Granted []string `yaml:"granted"` // Permissions granted at startup
		Prompt  bool     `yaml:"prompt"`  // Ask on the console for missing permissions
	} `yaml:"permissions"`

	Location struct {
		Provider          string        `yaml:"provider"`         // serial, replay or google
		Interval          time.Duration `yaml:"interval"`         // Nominal time between fixes
		FastestInterval   time.Duration `yaml:"fastest_interval"` // Minimum time between delivered fixes
		Priority          string        `yaml:"priority"`         // high_accuracy or balanced
		GPSDevicePort     string        `yaml:"gps_device_port"`  // UNIX Port where the GPS sensor is mounted
		GPSDeviceBaudRate int           `yaml:"gps_baud_rate"`    // The Baud rate for GPS sensor
		ReplayFile        string        `yaml:"replay_file"`      // NMEA log replayed by the replay provider
		ReplayLoop        bool          `yaml:"replay_loop"`      // Restart the log when it ends
		MapsAPIKey        string        `yaml:"maps_api_key"`     // Google maps API Key
		ModemIndex        int           `yaml:"modem_index"`      // ModemManager modem used for cell lookup
	} `yaml:"location"`

	Uploader struct {
		BaseURL   string        `yaml:"base_url"`   // e.g. http://172.16.211.165:8000/dron/
		Timeout   time.Duration `yaml:"timeout"`    // Per request timeout, 0 for none
		Trigger   string        `yaml:"trigger"`    // per_fix or interval
		Interval  time.Duration `yaml:"interval"`   // Upload period for the interval trigger
		AutoBegin bool          `yaml:"auto_begin"` // Begin streaming at startup
	} `yaml:"uploader"`

	Mirror struct {
		Enabled       bool          `yaml:"enabled"`        // Enable/disable the MQTT mirror
		Broker        string        `yaml:"broker"`         // MQTT broker address
		ClientID      string        `yaml:"client_id"`      // MQTT client ID prefix
		CACertificate string        `yaml:"ca_certificate"` // Path to the CA certificate, empty for plain TCP
		Topic         string        `yaml:"topic"`          // MQTT topic for mirrored fixes
		QOS           int           `yaml:"qos"`            // MQTT QoS level
		Interval      time.Duration `yaml:"interval"`       // Interval between mirror messages
	} `yaml:"mirror"`
}

// LoadConfig loads the YAML configuration from the specified file, applies defaults and validates it.
func LoadConfig(filename string, fileClient file.FileOperations) (*Config, error) {
	var config Config
	if err := fileClient.ReadYamlFile(filename, &config); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", filename, err)
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", filename, err)
	}
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = 10
	}
	if c.Identity.DeviceFile == "" {
		c.Identity.DeviceFile = "device.json"
	}
	if c.Location.Provider == "" {
		c.Location.Provider = constants.ProviderSerial
	}
	if c.Location.Interval == 0 {
		c.Location.Interval = 1000 * time.Millisecond
	}
	if c.Location.FastestInterval == 0 {
		c.Location.FastestInterval = 50 * time.Millisecond
	}
	if c.Location.Priority == "" {
		c.Location.Priority = "high_accuracy"
	}
	if c.Location.GPSDeviceBaudRate == 0 {
		c.Location.GPSDeviceBaudRate = 9600
	}
	if c.Uploader.Trigger == "" {
		c.Uploader.Trigger = constants.TriggerPerFix
	}
	if c.Uploader.Interval == 0 {
		c.Uploader.Interval = c.Location.Interval
	}
	if c.Mirror.ClientID == "" {
		c.Mirror.ClientID = "gps-streamer"
	}
	if c.Mirror.Interval == 0 {
		c.Mirror.Interval = 5 * time.Second
	}
}

// Validate reports the first configuration error found.
func (c *Config) Validate() error {
	if c.Uploader.BaseURL == "" {
		return errors.New("uploader.base_url is required")
	}
	switch c.Uploader.Trigger {
	case constants.TriggerPerFix, constants.TriggerInterval:
	default:
		return fmt.Errorf("unknown uploader.trigger %q", c.Uploader.Trigger)
	}

	switch c.Location.Provider {
	case constants.ProviderSerial:
		if c.Location.GPSDevicePort == "" {
			return errors.New("location.gps_device_port is required for the serial provider")
		}
	case constants.ProviderReplay:
		if c.Location.ReplayFile == "" {
			return errors.New("location.replay_file is required for the replay provider")
		}
	case constants.ProviderGoogle:
		if c.Location.MapsAPIKey == "" {
			return errors.New("location.maps_api_key is required for the google provider")
		}
	default:
		return fmt.Errorf("unknown location.provider %q", c.Location.Provider)
	}

	if c.Location.FastestInterval > c.Location.Interval {
		return errors.New("location.fastest_interval must not exceed location.interval")
	}

	if _, err := c.GrantedPermissions(); err != nil {
		return err
	}

	if c.Mirror.Enabled && (c.Mirror.Broker == "" || c.Mirror.Topic == "") {
		return errors.New("mirror.broker and mirror.topic are required when the mirror is enabled")
	}
	return nil
}

// GrantedPermissions parses permissions.granted.
func (c *Config) GrantedPermissions() ([]permission.Permission, error) {
	perms := make([]permission.Permission, 0, len(c.Permissions.Granted))
	for _, name := range c.Permissions.Granted {
		p, err := permission.Parse(name)
		if err != nil {
			return nil, fmt.Errorf("permissions.granted: %w", err)
		}
		perms = append(perms, p)
	}
	return perms, nil
}
