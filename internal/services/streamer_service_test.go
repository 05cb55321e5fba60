package services_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benmeehan/gps-streamer/internal/console"
	"github.com/benmeehan/gps-streamer/internal/constants"
	"github.com/benmeehan/gps-streamer/internal/mocks"
	"github.com/benmeehan/gps-streamer/internal/models"
	"github.com/benmeehan/gps-streamer/internal/services"
	"github.com/benmeehan/gps-streamer/pkg/location"
	"github.com/benmeehan/gps-streamer/pkg/permission"
	"github.com/benmeehan/gps-streamer/pkg/uploader"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type streamerFixture struct {
	streamer    *services.StreamerService
	provider    *mocks.Provider
	uploader    *mocks.Uploader
	notifier    *mocks.Notifier
	prompter    *mocks.Prompter
	permissions *permission.Manager
}

func newStreamerFixture(t *testing.T, config services.StreamerConfig, granted ...permission.Permission) *streamerFixture {
	t.Helper()
	f := &streamerFixture{
		provider: mocks.NewProvider(),
		uploader: new(mocks.Uploader),
		notifier: new(mocks.Notifier),
		prompter: new(mocks.Prompter),
	}
	f.notifier.On("Notify", mock.Anything).Return()
	f.permissions = permission.NewManager(f.prompter, granted...)
	if config.Request == (location.Request{}) {
		config.Request = location.DefaultRequest()
	}
	f.streamer = services.NewStreamerService(config, f.provider, f.uploader, f.permissions, f.notifier, zerolog.Nop())
	t.Cleanup(f.streamer.Pause)
	return f
}

func (f *streamerFixture) deliver(t *testing.T, lat, lon float64) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.True(t, f.provider.Deliver(ctx, location.Location{Latitude: lat, Longitude: lon}), "fix not consumed")
}

func (f *streamerFixture) noticeIs(text string) func() bool {
	return func() bool { return f.streamer.Snapshot().Notice.Text == text }
}

func TestStreamer_PermissionDenied_NoSubscriptionNoUpload(t *testing.T) {
	f := newStreamerFixture(t, services.StreamerConfig{})
	f.prompter.On("Ask", mock.Anything, mock.Anything).Return(false, nil)

	err := f.streamer.Begin(context.Background())

	require.NoError(t, err)
	assert.Equal(t, constants.NoticePermissionDenied, f.streamer.Snapshot().Notice.Text)
	assert.False(t, f.streamer.Snapshot().Active)
	assert.Equal(t, 0, f.provider.Subscriptions())
	f.prompter.AssertNumberOfCalls(t, "Ask", 2)
	f.uploader.AssertNotCalled(t, "PostLocation", mock.Anything, mock.Anything)

	// Still denied: the next Begin prompts again.
	require.NoError(t, f.streamer.Begin(context.Background()))
	f.prompter.AssertNumberOfCalls(t, "Ask", 4)
	assert.Equal(t, 0, f.provider.Subscriptions())
}

func TestStreamer_PermissionPromptGranted(t *testing.T) {
	f := newStreamerFixture(t, services.StreamerConfig{})
	f.prompter.On("Ask", mock.Anything, mock.Anything).Return(true, nil)

	require.NoError(t, f.streamer.Begin(context.Background()))

	assert.Equal(t, constants.NoticePermissionGranted, f.streamer.Snapshot().Notice.Text)
	assert.True(t, f.streamer.Snapshot().Active)
	assert.Eventually(t, func() bool { return f.provider.Active() == 1 }, waitFor, tick)
	assert.Equal(t, location.DefaultRequest(), f.provider.Requests()[0])
}

func TestStreamer_PromptError(t *testing.T) {
	f := newStreamerFixture(t, services.StreamerConfig{})
	f.prompter.On("Ask", mock.Anything, mock.Anything).Return(false, errors.New("stdin closed"))

	err := f.streamer.Begin(context.Background())

	assert.ErrorContains(t, err, "stdin closed")
	assert.Equal(t, 0, f.provider.Subscriptions())
}

func TestStreamer_BeginTwiceSubscribesOnce(t *testing.T) {
	f := newStreamerFixture(t, services.StreamerConfig{}, permission.Location...)

	require.NoError(t, f.streamer.Begin(context.Background()))
	require.NoError(t, f.streamer.Begin(context.Background()))

	assert.Eventually(t, func() bool { return f.provider.Active() == 1 }, waitFor, tick)
	assert.Equal(t, 1, f.provider.Subscriptions())
	f.prompter.AssertNotCalled(t, "Ask", mock.Anything, mock.Anything)
}

func TestStreamer_FixIsDisplayedAndUploaded(t *testing.T) {
	f := newStreamerFixture(t, services.StreamerConfig{}, permission.Location...)
	f.uploader.On("PostLocation", mock.Anything, mock.Anything).Return(uploader.Response{Code: 200}, nil)
	require.NoError(t, f.streamer.Begin(context.Background()))

	f.deliver(t, 12.34, 56.78)

	lines := console.Lines(f.streamer.Snapshot())
	assert.Contains(t, lines, "Latitude : 12.34")
	assert.Contains(t, lines, "Longitude : 56.78")

	require.Eventually(t, f.noticeIs("Response Code : 200"), waitFor, tick)
	f.uploader.AssertCalled(t, "PostLocation", mock.Anything, models.LocationRecord{Latitude: 12.34, Longitude: 56.78})
	f.notifier.AssertCalled(t, "Notify", mock.MatchedBy(func(n models.Notice) bool {
		return n.Text == constants.NoticeDataPosted
	}))
}

func TestStreamer_LastWriteWins(t *testing.T) {
	f := newStreamerFixture(t, services.StreamerConfig{}, permission.Location...)
	f.uploader.On("PostLocation", mock.Anything, mock.Anything).Return(uploader.Response{Code: 201}, nil)
	require.NoError(t, f.streamer.Begin(context.Background()))

	fixes := [][2]float64{{1, 2}, {3, 4}, {-33.8688, 151.2093}}
	for _, fix := range fixes {
		f.deliver(t, fix[0], fix[1])
		record := f.streamer.Snapshot().Record
		assert.Equal(t, fix[0], record.Latitude)
		assert.Equal(t, fix[1], record.Longitude)
	}

	latest, seq := f.streamer.LatestFix()
	assert.Equal(t, uint64(3), seq)
	assert.Equal(t, -33.8688, latest.Latitude)
}

func TestStreamer_UploadFailureSetsMessage(t *testing.T) {
	f := newStreamerFixture(t, services.StreamerConfig{}, permission.Location...)
	uploadErr := errors.New(`Post "http://172.16.211.165:8000/dron/locationUpdate/": dial tcp 172.16.211.165:8000: connect: connection refused`)
	f.uploader.On("PostLocation", mock.Anything, mock.Anything).Return(uploader.Response{}, uploadErr)
	require.NoError(t, f.streamer.Begin(context.Background()))

	f.deliver(t, 12.34, 56.78)

	require.Eventually(t, func() bool {
		return f.streamer.Snapshot().Record.Message == uploadErr.Error()
	}, waitFor, tick)
	assert.Equal(t, "Error:"+uploadErr.Error(), f.streamer.Snapshot().Notice.Text)
	assert.Contains(t, console.Lines(f.streamer.Snapshot()), "Status : "+uploadErr.Error())
}

func TestStreamer_CoalescesFixesDuringUpload(t *testing.T) {
	f := newStreamerFixture(t, services.StreamerConfig{}, permission.Location...)

	started := make(chan struct{})
	release := make(chan struct{})
	var mu sync.Mutex
	var uploaded []models.LocationRecord
	record := func(args mock.Arguments) {
		mu.Lock()
		uploaded = append(uploaded, args.Get(1).(models.LocationRecord))
		mu.Unlock()
	}
	f.uploader.On("PostLocation", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		record(args)
		close(started)
		<-release
	}).Return(uploader.Response{Code: 200}, nil).Once()
	f.uploader.On("PostLocation", mock.Anything, mock.Anything).Run(record).Return(uploader.Response{Code: 200}, nil)

	require.NoError(t, f.streamer.Begin(context.Background()))
	f.deliver(t, 1, 1)
	<-started
	f.deliver(t, 2, 2)
	f.deliver(t, 3, 3)
	close(release)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(uploaded) == 2
	}, waitFor, tick)
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []models.LocationRecord{
		{Latitude: 1, Longitude: 1},
		{Latitude: 3, Longitude: 3},
	}, uploaded)
}

func TestStreamer_StaleFailureDoesNotTouchNewerFix(t *testing.T) {
	f := newStreamerFixture(t, services.StreamerConfig{}, permission.Location...)

	started := make(chan struct{})
	release := make(chan struct{})
	f.uploader.On("PostLocation", mock.Anything, models.LocationRecord{Latitude: 1, Longitude: 1}).Run(func(mock.Arguments) {
		close(started)
		<-release
	}).Return(uploader.Response{}, errors.New("timeout"))
	f.uploader.On("PostLocation", mock.Anything, models.LocationRecord{Latitude: 2, Longitude: 2}).
		Return(uploader.Response{Code: 200}, nil)

	require.NoError(t, f.streamer.Begin(context.Background()))
	f.deliver(t, 1, 1)
	<-started
	f.deliver(t, 2, 2)
	close(release)

	require.Eventually(t, f.noticeIs("Response Code : 200"), waitFor, tick)
	assert.Empty(t, f.streamer.Snapshot().Record.Message)
	f.notifier.AssertCalled(t, "Notify", mock.MatchedBy(func(n models.Notice) bool { return n.Text == "Error:timeout" }))
}

func TestStreamer_PauseCancelsInFlightUploadAndResumeResubscribes(t *testing.T) {
	f := newStreamerFixture(t, services.StreamerConfig{}, permission.Location...)

	started := make(chan struct{})
	f.uploader.On("PostLocation", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		close(started)
		<-args.Get(0).(context.Context).Done()
	}).Return(uploader.Response{}, context.Canceled).Once()

	require.NoError(t, f.streamer.Begin(context.Background()))
	f.deliver(t, 12.34, 56.78)
	<-started

	f.streamer.Pause()

	assert.Equal(t, 0, f.provider.Active())
	snap := f.streamer.Snapshot()
	assert.False(t, snap.Active)
	assert.True(t, snap.Required)
	assert.Empty(t, snap.Record.Message)
	f.notifier.AssertNotCalled(t, "Notify", mock.MatchedBy(func(n models.Notice) bool {
		return n.Text == "Error:"+context.Canceled.Error()
	}))

	f.streamer.Resume()

	assert.Eventually(t, func() bool { return f.provider.Active() == 1 }, waitFor, tick)
	assert.Equal(t, 2, f.provider.Subscriptions())
}

func TestStreamer_ResumeWithoutBeginDoesNothing(t *testing.T) {
	f := newStreamerFixture(t, services.StreamerConfig{}, permission.Location...)

	f.streamer.Resume()

	assert.Equal(t, 0, f.provider.Subscriptions())
	assert.False(t, f.streamer.Snapshot().Active)
}

func TestStreamer_RevokeStopsUpdatesAndRequiresNewBegin(t *testing.T) {
	f := newStreamerFixture(t, services.StreamerConfig{}, permission.Location...)
	require.NoError(t, f.streamer.Begin(context.Background()))
	assert.Eventually(t, func() bool { return f.provider.Active() == 1 }, waitFor, tick)

	f.permissions.Revoke(permission.FineLocation)

	assert.Equal(t, 0, f.provider.Active())
	snap := f.streamer.Snapshot()
	assert.False(t, snap.Active)
	assert.False(t, snap.Required)
	assert.Equal(t, "Permission revoked: fine_location", snap.Notice.Text)

	f.streamer.Resume()
	assert.Equal(t, 1, f.provider.Subscriptions())

	f.prompter.On("Ask", mock.Anything, permission.FineLocation).Return(false, nil)
	require.NoError(t, f.streamer.Begin(context.Background()))
	f.prompter.AssertCalled(t, "Ask", mock.Anything, permission.FineLocation)
	assert.Equal(t, 1, f.provider.Subscriptions())
}

func TestStreamer_IntervalTriggerUploadsOnlyChanges(t *testing.T) {
	f := newStreamerFixture(t, services.StreamerConfig{
		Trigger:        constants.TriggerInterval,
		UploadInterval: 10 * time.Millisecond,
	}, permission.Location...)
	f.uploader.On("PostLocation", mock.Anything, mock.Anything).Return(uploader.Response{Code: 200}, nil)

	require.NoError(t, f.streamer.Begin(context.Background()))
	time.Sleep(30 * time.Millisecond)
	f.uploader.AssertNotCalled(t, "PostLocation", mock.Anything, mock.Anything)

	f.deliver(t, 12.34, 56.78)
	require.Eventually(t, f.noticeIs("Response Code : 200"), waitFor, tick)
	time.Sleep(50 * time.Millisecond)

	f.uploader.AssertNumberOfCalls(t, "PostLocation", 1)
}

func TestStreamer_ProviderFailureEndsSession(t *testing.T) {
	f := newStreamerFixture(t, services.StreamerConfig{}, permission.Location...)
	require.NoError(t, f.streamer.Begin(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.True(t, f.provider.Fail(ctx, errors.New("open /dev/ttyUSB0: no such file or directory")))

	require.Eventually(t, func() bool { return !f.streamer.Snapshot().Active }, waitFor, tick)
	assert.Equal(t, "Location updates stopped: open /dev/ttyUSB0: no such file or directory",
		f.streamer.Snapshot().Notice.Text)
	assert.True(t, f.streamer.Snapshot().Required)
}

func TestStreamer_StartStop(t *testing.T) {
	f := newStreamerFixture(t, services.StreamerConfig{AutoBegin: true}, permission.Location...)

	require.NoError(t, f.streamer.Start())
	assert.EqualError(t, f.streamer.Start(), "streamer service is already running")
	assert.Eventually(t, func() bool { return f.provider.Active() == 1 }, waitFor, tick)

	require.NoError(t, f.streamer.Stop())
	assert.Equal(t, 0, f.provider.Active())
	assert.True(t, f.provider.Closed())
	assert.EqualError(t, f.streamer.Stop(), "streamer service is not running")
}

func TestStreamer_AutoBeginWithoutConsoleStartsDenied(t *testing.T) {
	f := newStreamerFixture(t, services.StreamerConfig{AutoBegin: true})
	f.prompter.On("Ask", mock.Anything, mock.Anything).Return(false, console.ErrInputClosed)

	require.NoError(t, f.streamer.Start())

	snap := f.streamer.Snapshot()
	assert.Equal(t, constants.NoticePermissionDenied, snap.Notice.Text)
	assert.False(t, snap.Active)
	assert.Equal(t, 0, f.provider.Subscriptions())
	require.NoError(t, f.streamer.Stop())
}

func TestStreamer_OnChangeObservesFixes(t *testing.T) {
	f := newStreamerFixture(t, services.StreamerConfig{}, permission.Location...)
	f.uploader.On("PostLocation", mock.Anything, mock.Anything).Return(uploader.Response{Code: 200}, nil)

	var mu sync.Mutex
	var seen []models.Snapshot
	f.streamer.OnChange(func(s models.Snapshot) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})

	require.NoError(t, f.streamer.Begin(context.Background()))
	f.deliver(t, 12.34, 56.78)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, seen)
	assert.True(t, seen[0].Active)
	found := false
	for _, s := range seen {
		if s.Record.Latitude == 12.34 {
			found = true
		}
	}
	assert.True(t, found)
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestStreamer_ScreenEndsOnNewestStateWhenObserversRace(t *testing.T) {
	f := newStreamerFixture(t, services.StreamerConfig{}, permission.Location...)
	f.uploader.On("PostLocation", mock.Anything, mock.Anything).Return(uploader.Response{Code: 200}, nil)

	var out lockedBuffer
	screen := console.NewScreen(&out)
	var slowed atomic.Bool
	f.streamer.OnChange(func(snap models.Snapshot) {
		// The first snapshot of the fix reaches the screen after the later ones.
		if snap.Record.Latitude == 1 && slowed.CompareAndSwap(false, true) {
			time.Sleep(200 * time.Millisecond)
		}
		screen.Render(snap)
	})

	require.NoError(t, f.streamer.Begin(context.Background()))
	f.deliver(t, 1, 1)

	want := "> " + fmt.Sprintf(constants.NoticeResponseCode, 200) + "\n"
	require.Eventually(t, func() bool { return strings.HasSuffix(out.String(), want) }, waitFor, tick)
	assert.True(t, slowed.Load())
	assert.Contains(t, out.String(), "Latitude : 1\n")
}
