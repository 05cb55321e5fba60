package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/benmeehan/gps-streamer/internal/models"
	"github.com/benmeehan/gps-streamer/pkg/identity"
	"github.com/benmeehan/gps-streamer/pkg/mqtt"
	"github.com/rs/zerolog"
)

// FixSource exposes the latest fix held by the streamer.
type FixSource interface {
	LatestFix() (models.Location, uint64)
}

// MirrorService republishes the latest fix to an MQTT topic on a fixed interval.
type MirrorService struct {
	// Configuration fields
	topic    string
	interval time.Duration
	qos      int

	// Dependencies
	deviceInfo identity.DeviceInfoInterface
	mqttClient mqtt.MQTTClient
	source     FixSource
	logger     zerolog.Logger

	// Internal state management
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastSeq uint64
}

// NewMirrorService creates a new MirrorService instance with the provided configuration.
func NewMirrorService(topic string, interval time.Duration, qos int, deviceInfo identity.DeviceInfoInterface,
	mqttClient mqtt.MQTTClient, source FixSource, logger zerolog.Logger) *MirrorService {
	return &MirrorService{
		topic:      topic,
		interval:   interval,
		qos:        qos,
		deviceInfo: deviceInfo,
		mqttClient: mqttClient,
		source:     source,
		logger:     logger,
	}
}

// Start launches the publishing loop.
func (m *MirrorService) Start() error {
	if m.ctx != nil {
		m.logger.Warn().Msg("MirrorService is already running")
		return errors.New("mirror service is already running")
	}

	m.ctx, m.cancel = context.WithCancel(context.Background())

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.runMirrorLoop()
	}()

	m.logger.Info().
		Str("topic", m.topic).
		Dur("interval", m.interval).
		Int("qos", m.qos).
		Msg("MirrorService started")
	return nil
}

// Stop gracefully stops the MirrorService, ensuring the loop has exited.
func (m *MirrorService) Stop() error {
	if m.ctx == nil {
		m.logger.Warn().Msg("MirrorService is not running")
		return errors.New("mirror service is not running")
	}

	m.cancel()
	m.wg.Wait()

	m.ctx = nil
	m.cancel = nil

	m.logger.Info().Msg("MirrorService stopped")
	return nil
}

func (m *MirrorService) runMirrorLoop() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := m.publishLatestFix(); err != nil {
				m.logger.Error().Err(err).Msg("Failed to mirror location")
			}
		case <-m.ctx.Done():
			return
		}
	}
}

// publishLatestFix publishes the held fix unless it was already published or there is none yet.
func (m *MirrorService) publishLatestFix() error {
	fix, seq := m.source.LatestFix()
	if seq == 0 || seq == m.lastSeq {
		return nil
	}

	fix.DeviceID = m.deviceInfo.GetDeviceID()
	if fix.Timestamp.IsZero() {
		fix.Timestamp = time.Now()
	}

	payload, err := json.Marshal(fix)
	if err != nil {
		return err
	}

	token := m.mqttClient.Publish(m.topic, byte(m.qos), false, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		return err
	}

	m.lastSeq = seq
	m.logger.Debug().Str("topic", m.topic).Uint64("seq", seq).Msg("Location mirrored")
	return nil
}
