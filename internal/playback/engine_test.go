package playback

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syncwatch/server/internal/room"
)

type fakePlayer struct {
	mu       sync.Mutex
	position float64
	status   Status
	seeks    []float64
	plays    int
	pauses   int
	loads    []string
}

func (p *fakePlayer) Position() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position
}

func (p *fakePlayer) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *fakePlayer) SeekTo(seconds float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seeks = append(p.seeks, seconds)
	p.position = seconds
}

func (p *fakePlayer) Play() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.plays++
	p.status = StatusPlaying
}

func (p *fakePlayer) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pauses++
	p.status = StatusPaused
}

func (p *fakePlayer) Load(videoId string, at float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loads = append(p.loads, videoId)
	p.position = at
	p.status = StatusUnstarted
}

func (p *fakePlayer) set(position float64, status Status) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.position = position
	p.status = status
}

type published struct {
	isPlaying bool
	position  float64
}

type fakePublisher struct {
	mu        sync.Mutex
	published []published
}

func (f *fakePublisher) PublishPlayerState(ctx context.Context, roomId string, isPlaying bool, position float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, published{isPlaying: isPlaying, position: position})
	return nil
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

type fakeQueue struct {
	mu       sync.Mutex
	length   int
	advances int
}

func (q *fakeQueue) Advance(ctx context.Context, roomId string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.advances++
	q.length--
	return nil
}

func (q *fakeQueue) Length(ctx context.Context, roomId string) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.length, nil
}

func (q *fakeQueue) advanceCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.advances
}

type fixedAuthClock struct {
	now int64
}

func (c *fixedAuthClock) Now() int64 { return c.now }

type testEngine struct {
	engine *Engine
	player *fakePlayer
	pub    *fakePublisher
	queue  *fakeQueue
	auth   *fixedAuthClock
	clock  *clockwork.FakeClock
}

func newTestEngine(t *testing.T) *testEngine {
	t.Helper()

	te := &testEngine{
		player: &fakePlayer{},
		pub:    &fakePublisher{},
		queue:  &fakeQueue{},
		auth:   &fixedAuthClock{},
		clock:  clockwork.NewFakeClock(),
	}
	te.engine = NewEngine(te.player, te.pub, te.queue, te.auth, te.clock, slog.Default(), &Config{
		RoomId: "room-1",
	})

	return te
}

// loadVideo applies an initial remote state and lets the resulting
// suppression window expire, so subsequent assertions see a settled engine.
func (te *testEngine) loadVideo(t *testing.T, st room.PlayerState) {
	t.Helper()

	te.engine.ApplyRemote(context.Background(), &st)
	te.clock.Advance(time.Second)
	te.player.seeks = nil
	te.player.loads = nil
	te.player.plays = 0
	te.player.pauses = 0
}

func TestApplyRemoteDriftCorrection(t *testing.T) {
	const t0 = int64(1_700_000_000_000)

	tests := []struct {
		name     string
		local    float64
		wantSeek []float64
	}{
		{"within threshold slightly ahead", 13.2, nil},
		{"within threshold slightly behind", 12.0, nil},
		{"exactly at expected", 13.0, nil},
		{"far behind", 9.0, []float64{13.0}},
		{"far ahead", 20.0, []float64{13.0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			te := newTestEngine(t)
			st := room.PlayerState{VideoId: "abc", IsPlaying: true, Timestamp: 10, UpdatedAt: t0}
			te.auth.now = t0
			te.loadVideo(t, st)

			// 3s of authoritative time elapse: expected = 10 + 3 = 13.0
			te.auth.now = t0 + 3000
			te.player.set(tt.local, StatusPlaying)

			te.engine.ApplyRemote(context.Background(), &st)
			assert.Equal(t, tt.wantSeek, te.player.seeks)
		})
	}
}

func TestApplyRemoteAlignsPlayPause(t *testing.T) {
	te := newTestEngine(t)
	st := room.PlayerState{VideoId: "abc", IsPlaying: false, Timestamp: 5, UpdatedAt: 1000}
	te.auth.now = 1000
	te.loadVideo(t, st)

	// remote says paused, player is playing
	te.player.set(5, StatusPlaying)
	te.engine.ApplyRemote(context.Background(), &st)
	assert.Equal(t, 1, te.player.pauses)
	assert.Equal(t, 0, te.player.plays)

	te.clock.Advance(time.Second)

	// remote says playing, player is paused
	playing := st
	playing.IsPlaying = true
	te.engine.ApplyRemote(context.Background(), &playing)
	assert.Equal(t, 1, te.player.plays)
}

func TestApplyRemoteLoadsNewVideo(t *testing.T) {
	te := newTestEngine(t)
	te.auth.now = 2000

	st := room.PlayerState{VideoId: "abc", IsPlaying: true, Timestamp: 0, UpdatedAt: 2000}
	te.engine.ApplyRemote(context.Background(), &st)
	require.Equal(t, []string{"abc"}, te.player.loads)

	// same video again does not reload
	te.clock.Advance(time.Second)
	te.engine.ApplyRemote(context.Background(), &st)
	assert.Equal(t, []string{"abc"}, te.player.loads)

	next := room.PlayerState{VideoId: "xyz", IsPlaying: true, Timestamp: 0, UpdatedAt: 2000}
	te.engine.ApplyRemote(context.Background(), &next)
	assert.Equal(t, []string{"abc", "xyz"}, te.player.loads)
}

func TestLocalEventSuppressedAfterCommand(t *testing.T) {
	te := newTestEngine(t)
	st := room.PlayerState{VideoId: "abc", IsPlaying: true, Timestamp: 0, UpdatedAt: 1000}
	te.auth.now = 1000

	// the apply issues commands, opening the suppression window
	te.engine.ApplyRemote(context.Background(), &st)

	require.NoError(t, te.engine.HandleLocalEvent(context.Background(), EventPlaying))
	assert.Equal(t, 0, te.pub.count(), "commanded transition must not be re-published")

	// a genuine user action after the window closes is published
	te.clock.Advance(time.Second)
	te.player.set(42, StatusPlaying)
	require.NoError(t, te.engine.HandleLocalEvent(context.Background(), EventPlaying))
	require.Equal(t, 1, te.pub.count())
	assert.Equal(t, published{isPlaying: true, position: 42}, te.pub.published[0])
}

func TestLocalPauseIsPublished(t *testing.T) {
	te := newTestEngine(t)
	te.player.set(17.5, StatusPaused)

	require.NoError(t, te.engine.HandleLocalEvent(context.Background(), EventPaused))
	require.Equal(t, 1, te.pub.count())
	assert.Equal(t, published{isPlaying: false, position: 17.5}, te.pub.published[0])
}

func TestEndedWithEmptyQueueParksPlayer(t *testing.T) {
	te := newTestEngine(t)
	te.player.set(180, StatusEnded)

	require.NoError(t, te.engine.HandleLocalEvent(context.Background(), EventEnded))
	assert.Equal(t, 0, te.queue.advanceCount())
	require.Equal(t, 1, te.pub.count())
	assert.Equal(t, published{isPlaying: false, position: 0}, te.pub.published[0])
}

func TestEndedWithPendingQueueAdvancesOnce(t *testing.T) {
	te := newTestEngine(t)
	te.queue.length = 2
	te.player.set(180, StatusEnded)

	require.NoError(t, te.engine.HandleLocalEvent(context.Background(), EventEnded))
	// duplicate delivery of the same end-of-video
	require.NoError(t, te.engine.HandleLocalEvent(context.Background(), EventEnded))

	assert.Equal(t, 1, te.queue.advanceCount(), "exactly one advance per actual end-of-video")
	assert.Equal(t, 0, te.pub.count())
}

func TestWatchdogCatchesMissedEnded(t *testing.T) {
	te := newTestEngine(t)
	te.queue.length = 1
	te.player.set(180, StatusEnded)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		te.engine.RunWatchdog(ctx)
		close(done)
	}()

	te.clock.BlockUntil(1)
	te.clock.Advance(time.Second)

	require.Eventually(t, func() bool {
		return te.queue.advanceCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	// further ticks must not advance again
	te.clock.Advance(time.Second)
	te.clock.Advance(time.Second)
	assert.Equal(t, 1, te.queue.advanceCount())

	cancel()
	<-done
}
