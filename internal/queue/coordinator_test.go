package queue

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syncwatch/server/internal/room"
	redisstore "github.com/syncwatch/server/internal/store/redis"
	"github.com/syncwatch/server/pkg/ytvideodata"
)

type fakeMetadata struct {
	data map[string]*ytvideodata.VideoData
	err  error
}

func (m *fakeMetadata) Get(ctx context.Context, videoId string) (*ytvideodata.VideoData, error) {
	if m.err != nil {
		return nil, m.err
	}
	if data, ok := m.data[videoId]; ok {
		return data, nil
	}

	return nil, ytvideodata.ErrVideoNotFound
}

type fixedAuthClock struct {
	now int64
}

func (c *fixedAuthClock) Now() int64 { return c.now }

func newTestCoordinator(t *testing.T) (*Coordinator, *fakeMetadata, *fixedAuthClock) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rc := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rc.Close() })

	state := room.NewStateStore(redisstore.NewStore(rc, clockwork.NewRealClock(), slog.Default()))
	meta := &fakeMetadata{data: make(map[string]*ytvideodata.VideoData)}
	auth := &fixedAuthClock{now: 1_700_000_000_000}

	return NewCoordinator(state, meta, auth, slog.Default()), meta, auth
}

func videoIds(items []room.QueueItem) []string {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.VideoId)
	}

	return ids
}

func TestAddRejectsInvalidURL(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	_, err := c.Add(ctx, &AddParams{RoomId: "r1", VideoURL: "https://example.com/not-a-video", AddedBy: "u1"})
	assert.ErrorIs(t, err, ErrInvalidVideoURL)

	length, err := c.Length(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 0, length, "rejected url must not leave a queue entry")
}

func TestAddResolvesMetadata(t *testing.T) {
	c, meta, auth := newTestCoordinator(t)
	ctx := context.Background()

	meta.data["dQw4w9WgXcQ"] = &ytvideodata.VideoData{
		Title:        "Never Gonna Give You Up",
		ThumbnailURL: "https://i.ytimg.com/vi/dQw4w9WgXcQ/hqdefault.jpg",
	}

	item, err := c.Add(ctx, &AddParams{
		RoomId:   "r1",
		VideoURL: "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		AddedBy:  "u1",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, item.Id)
	assert.Equal(t, "dQw4w9WgXcQ", item.VideoId)
	assert.Equal(t, "Never Gonna Give You Up", item.Title)
	assert.Equal(t, "https://i.ytimg.com/vi/dQw4w9WgXcQ/hqdefault.jpg", item.Thumbnail)
	assert.Equal(t, auth.now, item.AddedAt)
}

func TestAddUsesPlaceholderWhenMetadataFails(t *testing.T) {
	c, meta, _ := newTestCoordinator(t)
	ctx := context.Background()

	meta.err = errors.New("metadata service unreachable")

	item, err := c.Add(ctx, &AddParams{
		RoomId:   "r1",
		VideoURL: "https://youtu.be/dQw4w9WgXcQ",
		AddedBy:  "u1",
	})
	require.NoError(t, err, "metadata failure must not fail the add")
	assert.Equal(t, "Video chưa xác định", item.Title)
	assert.Empty(t, item.Thumbnail)
}

func TestAddPreservesInsertionOrder(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	for _, id := range []string{"aaaaaaaaaaa", "bbbbbbbbbbb", "ccccccccccc"} {
		_, err := c.Add(ctx, &AddParams{RoomId: "r1", VideoURL: "https://youtu.be/" + id, AddedBy: "u1"})
		require.NoError(t, err)
	}

	items, err := c.Items(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, []string{"aaaaaaaaaaa", "bbbbbbbbbbb", "ccccccccccc"}, videoIds(items))
}

func TestRemoveIsIdempotent(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	item, err := c.Add(ctx, &AddParams{RoomId: "r1", VideoURL: "https://youtu.be/aaaaaaaaaaa", AddedBy: "u1"})
	require.NoError(t, err)

	require.NoError(t, c.Remove(ctx, "r1", item.Id))
	require.NoError(t, c.Remove(ctx, "r1", item.Id), "double remove must be a no-op")

	length, err := c.Length(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 0, length)
}

func TestAdvancePromotesHead(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	for _, id := range []string{"aaaaaaaaaaa", "bbbbbbbbbbb"} {
		_, err := c.Add(ctx, &AddParams{RoomId: "r1", VideoURL: "https://youtu.be/" + id, AddedBy: "u1"})
		require.NoError(t, err)
	}

	require.NoError(t, c.Advance(ctx, "r1"))

	player, err := c.state.Player(ctx, "r1")
	require.NoError(t, err)
	require.NotNil(t, player)
	assert.Equal(t, "aaaaaaaaaaa", player.VideoId)
	assert.True(t, player.IsPlaying)
	assert.Equal(t, 0.0, player.Timestamp)

	items, err := c.Items(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, []string{"bbbbbbbbbbb"}, videoIds(items))

	history, err := c.state.History(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "aaaaaaaaaaa", history[0].VideoId)
}

func TestAdvanceEmptyQueue(t *testing.T) {
	c, _, _ := newTestCoordinator(t)

	err := c.Advance(context.Background(), "r1")
	assert.ErrorIs(t, err, ErrQueueEmpty)
}

func TestAdvanceLosingRacerBacksOff(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	item, err := c.Add(ctx, &AddParams{RoomId: "r1", VideoURL: "https://youtu.be/aaaaaaaaaaa", AddedBy: "u1"})
	require.NoError(t, err)

	// simulate the winner consuming the head between our listing and delete
	require.NoError(t, c.state.SetPlayer(ctx, "r1", room.PlayerState{VideoId: "winner00000", IsPlaying: true}))
	require.NoError(t, c.state.DeleteQueueItem(ctx, "r1", item.Id))

	require.NoError(t, c.Remove(ctx, "r1", item.Id))

	player, err := c.state.Player(ctx, "r1")
	require.NoError(t, err)
	require.NotNil(t, player)
	assert.Equal(t, "winner00000", player.VideoId, "loser must not overwrite the winner's player state")
}

func TestMoveSwapsAdjacentItems(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	var ids []string
	for _, id := range []string{"aaaaaaaaaaa", "bbbbbbbbbbb", "ccccccccccc"} {
		item, err := c.Add(ctx, &AddParams{RoomId: "r1", VideoURL: "https://youtu.be/" + id, AddedBy: "u1"})
		require.NoError(t, err)
		ids = append(ids, item.Id)
	}

	require.NoError(t, c.Move(ctx, "r1", ids[2], DirectionUp))

	items, err := c.Items(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, []string{"aaaaaaaaaaa", "ccccccccccc", "bbbbbbbbbbb"}, videoIds(items))

	// keys stay put, only payloads moved
	assert.Equal(t, ids[1], items[1].Id)
	assert.Equal(t, ids[2], items[2].Id)
}

func TestMoveAtEdgesIsNoop(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	var ids []string
	for _, id := range []string{"aaaaaaaaaaa", "bbbbbbbbbbb"} {
		item, err := c.Add(ctx, &AddParams{RoomId: "r1", VideoURL: "https://youtu.be/" + id, AddedBy: "u1"})
		require.NoError(t, err)
		ids = append(ids, item.Id)
	}

	require.NoError(t, c.Move(ctx, "r1", ids[0], DirectionUp))
	require.NoError(t, c.Move(ctx, "r1", ids[1], DirectionDown))
	require.NoError(t, c.Move(ctx, "r1", "missing", DirectionUp))

	items, err := c.Items(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, []string{"aaaaaaaaaaa", "bbbbbbbbbbb"}, videoIds(items))
}

func TestMoveRejectsUnknownDirection(t *testing.T) {
	c, _, _ := newTestCoordinator(t)

	err := c.Move(context.Background(), "r1", "whatever", Direction("sideways"))
	assert.ErrorIs(t, err, ErrInvalidDirection)
}
