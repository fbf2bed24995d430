package presence

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syncwatch/server/internal/room"
	redisstore "github.com/syncwatch/server/internal/store/redis"
)

type fakeAuthClock struct {
	mu  sync.Mutex
	now int64
}

func (c *fakeAuthClock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeAuthClock) set(now int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

func newTestTracker(t *testing.T) (*Tracker, *room.StateStore, *fakeAuthClock, *clockwork.FakeClock) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rc := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rc.Close() })

	state := room.NewStateStore(redisstore.NewStore(rc, clockwork.NewRealClock(), slog.Default()))
	auth := &fakeAuthClock{now: 1_700_000_000_000}
	clock := clockwork.NewFakeClock()

	return NewTracker(state, auth, clock, slog.Default(), 0), state, auth, clock
}

func TestJoinMarksParticipantOnline(t *testing.T) {
	tr, state, auth, _ := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.Join(ctx, &JoinParams{
		SessionId: "sess-1",
		RoomId:    "r1",
		UserId:    "u1",
		Name:      "alice",
	}))

	participants, err := state.Participants(ctx, "r1")
	require.NoError(t, err)
	require.Contains(t, participants, "u1")
	assert.Equal(t, "alice", participants["u1"].Name)
	assert.True(t, participants["u1"].Online)
	assert.Equal(t, auth.Now(), participants["u1"].LastActive)
}

func TestLeaveFlipsParticipantOffline(t *testing.T) {
	tr, state, _, _ := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.Join(ctx, &JoinParams{
		SessionId: "sess-1",
		RoomId:    "r1",
		UserId:    "u1",
		Name:      "alice",
	}))

	tr.Leave(ctx, "sess-1")

	participants, err := state.Participants(ctx, "r1")
	require.NoError(t, err)
	require.Contains(t, participants, "u1")
	assert.False(t, participants["u1"].Online)
	assert.Equal(t, "alice", participants["u1"].Name, "offline flip must not drop other fields")
}

func TestTouchRefreshesLastActive(t *testing.T) {
	tr, state, auth, _ := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.Join(ctx, &JoinParams{
		SessionId: "sess-1",
		RoomId:    "r1",
		UserId:    "u1",
		Name:      "alice",
	}))

	auth.set(auth.Now() + 60_000)
	require.NoError(t, tr.Touch(ctx, "r1", "u1"))

	participants, err := state.Participants(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, auth.Now(), participants["u1"].LastActive)
}

func TestHeartbeatTouchesOnInterval(t *testing.T) {
	tr, state, auth, clock := newTestTracker(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, tr.Join(ctx, &JoinParams{
		SessionId: "sess-1",
		RoomId:    "r1",
		UserId:    "u1",
		Name:      "alice",
	}))
	joined := auth.Now()

	done := make(chan struct{})
	go func() {
		tr.RunHeartbeat(ctx, "r1", "u1")
		close(done)
	}()

	clock.BlockUntil(1)
	auth.set(joined + 25_000)
	clock.Advance(defaultHeartbeatInterval)

	require.Eventually(t, func() bool {
		participants, err := state.Participants(ctx, "r1")
		if err != nil {
			return false
		}
		return participants["u1"].LastActive == joined+25_000
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

func TestOnlineFiltersOfflineParticipants(t *testing.T) {
	tr, _, _, _ := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.Join(ctx, &JoinParams{SessionId: "sess-1", RoomId: "r1", UserId: "u1", Name: "alice"}))
	require.NoError(t, tr.Join(ctx, &JoinParams{SessionId: "sess-2", RoomId: "r1", UserId: "u2", Name: "bob"}))
	tr.Leave(ctx, "sess-2")

	online, err := tr.Online(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, online, 1)
	assert.Contains(t, online, "u1")
}
