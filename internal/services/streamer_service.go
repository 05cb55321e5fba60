package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benmeehan/gps-streamer/internal/constants"
	"github.com/benmeehan/gps-streamer/internal/models"
	"github.com/benmeehan/gps-streamer/pkg/location"
	"github.com/benmeehan/gps-streamer/pkg/permission"
	"github.com/benmeehan/gps-streamer/pkg/uploader"
	"github.com/rs/zerolog"
)

// Notifier shows transient notices to the operator.
type Notifier interface {
	Notify(notice models.Notice)
}

// StreamerConfig holds the tunables of the StreamerService.
type StreamerConfig struct {
	Request        location.Request
	Trigger        string        // constants.TriggerPerFix or constants.TriggerInterval
	UploadInterval time.Duration // used by constants.TriggerInterval
	AutoBegin      bool
}

// StreamerService subscribes to a location provider, keeps the latest fix and uploads it.
type StreamerService struct {
	config      StreamerConfig
	provider    location.Provider
	uploader    uploader.Uploader
	permissions permission.ManagerInterface
	notifier    Notifier
	logger      zerolog.Logger

	mu        sync.Mutex
	record    models.LocationRecord
	fix       location.Location
	seq       uint64 // number of fixes applied so far
	notice    models.Notice
	required  bool // updates were begun; resume should resubscribe
	running   bool
	session   *session
	version   uint64 // bumped by every publish
	observers []func(models.Snapshot)
}

// session ties one location subscription to its upload pump. Cancelling it
// unsubscribes and aborts the upload in flight.
type session struct {
	cancel  context.CancelFunc
	pending chan pendingUpload
	subDone chan struct{}
	done    chan struct{}
}

type pendingUpload struct {
	seq    uint64
	record models.LocationRecord
}

// NewStreamerService creates a StreamerService. Nothing is subscribed until Begin.
func NewStreamerService(config StreamerConfig, provider location.Provider, uploader uploader.Uploader,
	permissions permission.ManagerInterface, notifier Notifier, logger zerolog.Logger) *StreamerService {
	if config.Trigger == "" {
		config.Trigger = constants.TriggerPerFix
	}
	if config.UploadInterval <= 0 {
		config.UploadInterval = config.Request.Interval
	}

	s := &StreamerService{
		config:      config,
		provider:    provider,
		uploader:    uploader,
		permissions: permissions,
		notifier:    notifier,
		logger:      logger,
	}
	permissions.OnRevoke(s.onPermissionRevoked)
	return s
}

// Start marks the service running and begins updates when configured to. A failed
// permission prompt during auto begin counts as a denial.
func (s *StreamerService) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Warn().Msg("StreamerService is already running")
		return errors.New("streamer service is already running")
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info().
		Str("trigger", s.config.Trigger).
		Dur("interval", s.config.Request.Interval).
		Dur("fastest_interval", s.config.Request.FastestInterval).
		Msg("StreamerService started")

	if s.config.AutoBegin {
		if err := s.Begin(context.Background()); err != nil {
			// Nobody answered the prompt (no console attached): keep running without updates.
			s.logger.Warn().Err(err).Msg("Auto begin could not obtain location permissions")
			s.notify(constants.NoticePermissionDenied, false)
		}
	}
	return nil
}

// Stop unsubscribes, aborts pending uploads and closes the provider.
func (s *StreamerService) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		s.logger.Warn().Msg("StreamerService is not running")
		return errors.New("streamer service is not running")
	}
	s.running = false
	s.mu.Unlock()

	s.Pause()

	if err := s.provider.Close(); err != nil {
		s.logger.Error().Err(err).Msg("Failed to close location provider")
		return err
	}

	s.logger.Info().Msg("StreamerService stopped")
	return nil
}

// Begin starts location updates, asking for the location permissions first when they
// are missing. Without the permissions nothing is subscribed and nothing is uploaded.
func (s *StreamerService) Begin(ctx context.Context) error {
	if s.permissions.Granted(permission.Location...) {
		s.startLocationUpdates()
		return nil
	}

	granted, err := s.permissions.Request(ctx, permission.Location...)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to request location permissions")
		return err
	}
	if !granted {
		s.logger.Warn().Msg("Location permissions denied")
		s.notify(constants.NoticePermissionDenied, false)
		return nil
	}

	s.startLocationUpdates()
	s.notify(constants.NoticePermissionGranted, false)
	return nil
}

// Pause unsubscribes from the provider and cancels any upload in flight. Updates that
// were begun are resumed by Resume.
func (s *StreamerService) Pause() {
	s.mu.Lock()
	sess := s.session
	s.session = nil
	s.mu.Unlock()

	if sess == nil {
		return
	}
	sess.cancel()
	<-sess.done

	s.logger.Info().Msg("Location updates paused")
	s.publish()
}

// Resume resubscribes when updates had been begun. If the permissions were lost in
// the meantime the begun flag is cleared, so the next Begin prompts again.
func (s *StreamerService) Resume() {
	s.mu.Lock()
	required := s.required
	s.mu.Unlock()
	if !required {
		return
	}

	if !s.permissions.Granted(permission.Location...) {
		s.mu.Lock()
		s.required = false
		s.mu.Unlock()
		s.logger.Warn().Msg("Location permissions missing on resume, updates not restarted")
		s.publish()
		return
	}
	s.startLocationUpdates()
}

// Snapshot returns the state the screen shows.
func (s *StreamerService) Snapshot() models.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// LatestFix returns the held fix and the number of fixes applied so far (0 when none).
func (s *StreamerService) LatestFix() (models.Location, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.Location{
		Timestamp: s.fix.Time,
		Latitude:  s.record.Latitude,
		Longitude: s.record.Longitude,
		Accuracy:  s.fix.Accuracy,
	}, s.seq
}

// OnChange registers fn to receive a snapshot after every state change. Observers run
// on the goroutine that made the change, so they may see snapshots out of order; the
// Version field orders them.
func (s *StreamerService) OnChange(fn func(models.Snapshot)) {
	s.mu.Lock()
	s.observers = append(s.observers, fn)
	s.mu.Unlock()
}

func (s *StreamerService) snapshotLocked() models.Snapshot {
	return models.Snapshot{
		Record:   s.record,
		Notice:   s.notice,
		Active:   s.session != nil,
		Required: s.required,
		Version:  s.version,
	}
}

// startLocationUpdates subscribes once; calling it while subscribed is a no-op.
func (s *StreamerService) startLocationUpdates() {
	s.mu.Lock()
	s.required = true
	if s.session != nil {
		s.mu.Unlock()
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	sess := &session{
		cancel:  cancel,
		pending: make(chan pendingUpload, 1),
		subDone: make(chan struct{}),
		done:    make(chan struct{}),
	}
	s.session = sess
	s.mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer close(sess.subDone)
		s.runSubscription(ctx, sess)
	}()
	go func() {
		defer wg.Done()
		if s.config.Trigger == constants.TriggerInterval {
			s.runIntervalUploads(ctx, sess)
		} else {
			s.runFixUploads(ctx, sess)
		}
	}()
	go func() {
		wg.Wait()
		cancel()
		s.mu.Lock()
		if s.session == sess {
			s.session = nil
		}
		s.mu.Unlock()
		close(sess.done)
		s.publish()
	}()

	s.logger.Info().Msg("Location updates started")
	s.publish()
}

func (s *StreamerService) runSubscription(ctx context.Context, sess *session) {
	err := s.provider.RequestLocationUpdates(ctx, s.config.Request, func(loc location.Location) {
		s.onFix(sess, loc)
	})
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("Location subscription failed")
		s.notify(fmt.Sprintf(constants.NoticeUpdatesStopped, err.Error()), true)
		return
	}
	s.logger.Info().Msg("Location provider has no more fixes")
}

// onFix replaces the held record with the new fix (last write wins).
func (s *StreamerService) onFix(sess *session, loc location.Location) {
	s.mu.Lock()
	if s.session != sess {
		s.mu.Unlock()
		return
	}
	s.seq++
	s.fix = loc
	s.record = models.LocationRecord{Latitude: loc.Latitude, Longitude: loc.Longitude}
	p := pendingUpload{seq: s.seq, record: s.record}
	s.mu.Unlock()

	s.logger.Debug().
		Float64("latitude", loc.Latitude).
		Float64("longitude", loc.Longitude).
		Uint64("seq", p.seq).
		Msg("Location fix received")

	if s.config.Trigger != constants.TriggerInterval {
		offerLatest(sess.pending, p)
	}
	s.publish()
}

// offerLatest puts p into the single-slot mailbox, replacing an upload that has not started yet.
func offerLatest(ch chan pendingUpload, p pendingUpload) {
	for {
		select {
		case ch <- p:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// runFixUploads is the single writer towards the backend: one upload at a time, newest fix first.
func (s *StreamerService) runFixUploads(ctx context.Context, sess *session) {
	for {
		select {
		case <-ctx.Done():
			return
		case p := <-sess.pending:
			s.upload(ctx, p)
		case <-sess.subDone:
			select {
			case p := <-sess.pending:
				s.upload(ctx, p)
			default:
			}
			return
		}
	}
}

// runIntervalUploads uploads the held record on every tick when it changed since the last upload.
func (s *StreamerService) runIntervalUploads(ctx context.Context, sess *session) {
	ticker := time.NewTicker(s.config.UploadInterval)
	defer ticker.Stop()

	var last uint64
	flush := func() {
		s.mu.Lock()
		p := pendingUpload{seq: s.seq, record: s.record}
		s.mu.Unlock()
		if p.seq == 0 || p.seq == last {
			return
		}
		last = p.seq
		s.upload(ctx, p)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			flush()
		case <-sess.subDone:
			flush()
			return
		}
	}
}

func (s *StreamerService) upload(ctx context.Context, p pendingUpload) {
	resp, err := s.uploader.PostLocation(ctx, p.record)
	if err != nil {
		if ctx.Err() != nil {
			s.logger.Debug().Uint64("seq", p.seq).Msg("Upload cancelled")
			return
		}

		message := err.Error()
		s.mu.Lock()
		// A newer fix owns the record by now; the error belongs to an older one.
		if s.seq == p.seq {
			s.record.Message = message
		}
		s.mu.Unlock()

		s.logger.Error().Err(err).Uint64("seq", p.seq).Msg("Failed to upload location")
		s.notify(fmt.Sprintf(constants.NoticeUploadError, message), true)
		return
	}

	s.logger.Info().
		Int("code", resp.Code).
		Uint64("seq", p.seq).
		Interface("record", p.record).
		Msg("Location uploaded")
	s.notify(constants.NoticeDataPosted, false)
	s.notify(fmt.Sprintf(constants.NoticeResponseCode, resp.Code), true)
}

func (s *StreamerService) onPermissionRevoked(perm permission.Permission) {
	s.mu.Lock()
	s.required = false
	s.mu.Unlock()

	s.Pause()
	s.logger.Warn().Str("permission", string(perm)).Msg("Location permission revoked")
	s.notify(fmt.Sprintf(constants.NoticePermissionRevoked, perm), true)
}

func (s *StreamerService) notify(text string, long bool) {
	notice := models.Notice{Text: text, Long: long, At: time.Now()}
	s.mu.Lock()
	s.notice = notice
	s.mu.Unlock()

	if s.notifier != nil {
		s.notifier.Notify(notice)
	}
	s.publish()
}

func (s *StreamerService) publish() {
	s.mu.Lock()
	s.version++
	snap := s.snapshotLocked()
	observers := append([]func(models.Snapshot){}, s.observers...)
	s.mu.Unlock()

	for _, fn := range observers {
		fn(snap)
	}
}
