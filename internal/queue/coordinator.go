// Package queue maintains the ordered pending-items list shared by a room.
// Ordering is solely a function of store key order; keys are immutable, so
// reordering swaps item payloads between adjacent keys instead of moving
// keys.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/syncwatch/server/internal/room"
	"github.com/syncwatch/server/pkg/videoid"
	"github.com/syncwatch/server/pkg/ytvideodata"
)

var (
	ErrInvalidVideoURL  = errors.New("invalid video url")
	ErrQueueEmpty       = errors.New("queue is empty")
	ErrInvalidDirection = errors.New("invalid move direction")
)

// placeholderTitle is shown when the metadata lookup fails; an unreachable
// metadata service must never fail the add itself.
const placeholderTitle = "Video chưa xác định"

type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

type iMetadata interface {
	Get(ctx context.Context, videoId string) (*ytvideodata.VideoData, error)
}

type iAuthClock interface {
	Now() int64
}

type Coordinator struct {
	state     *room.StateStore
	meta      iMetadata
	authClock iAuthClock
	logger    *slog.Logger
}

func NewCoordinator(state *room.StateStore, meta iMetadata, authClock iAuthClock, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		state:     state,
		meta:      meta,
		authClock: authClock,
		logger:    logger,
	}
}

type AddParams struct {
	RoomId   string
	VideoURL string
	AddedBy  string
}

// Add validates the URL, resolves metadata best-effort and appends the item
// under a store-generated monotonic key. Nothing is written when the URL
// does not contain a valid video id.
func (c *Coordinator) Add(ctx context.Context, params *AddParams) (room.QueueItem, error) {
	id, ok := videoid.Extract(params.VideoURL)
	if !ok {
		return room.QueueItem{}, ErrInvalidVideoURL
	}

	item := room.QueueItem{
		VideoId: id,
		Title:   placeholderTitle,
		AddedBy: params.AddedBy,
		AddedAt: c.authClock.Now(),
	}

	data, err := c.meta.Get(ctx, id)
	if err != nil {
		c.logger.InfoContext(ctx, "metadata lookup failed, using placeholder", "video_id", id, "error", err)
	} else {
		item.Title = data.Title
		item.Thumbnail = data.ThumbnailURL
	}

	key, err := c.state.AppendQueueItem(ctx, params.RoomId, item)
	if err != nil {
		return room.QueueItem{}, fmt.Errorf("failed to add queue item: %w", err)
	}
	item.Id = key

	return item, nil
}

// Remove deletes by key. Removing an absent key is a no-op: a concurrent
// advance may already have consumed it.
func (c *Coordinator) Remove(ctx context.Context, roomId, itemId string) error {
	if err := c.state.DeleteQueueItem(ctx, roomId, itemId); err != nil {
		if errors.Is(err, room.ErrNotFound) {
			return nil
		}

		return fmt.Errorf("failed to remove queue item: %w", err)
	}

	return nil
}

func (c *Coordinator) Items(ctx context.Context, roomId string) ([]room.QueueItem, error) {
	return c.state.QueueItems(ctx, roomId)
}

func (c *Coordinator) Length(ctx context.Context, roomId string) (int, error) {
	return c.state.QueueLength(ctx, roomId)
}

// Advance pops the head item into the shared player state and records it in
// the room history. The head delete happens first and exactly once: when two
// clients race, the loser observes the missing key and backs off, leaving
// the winner's player write to stand (last-write-wins either way).
func (c *Coordinator) Advance(ctx context.Context, roomId string) error {
	items, err := c.state.QueueItems(ctx, roomId)
	if err != nil {
		return fmt.Errorf("failed to read queue: %w", err)
	}
	if len(items) == 0 {
		return ErrQueueEmpty
	}

	head := items[0]
	if err := c.state.DeleteQueueItem(ctx, roomId, head.Id); err != nil {
		if errors.Is(err, room.ErrNotFound) {
			// another client advanced concurrently
			return nil
		}

		return fmt.Errorf("failed to pop queue head: %w", err)
	}

	if err := c.state.SetPlayer(ctx, roomId, room.PlayerState{
		VideoId:   head.VideoId,
		IsPlaying: true,
		Timestamp: 0,
		Title:     head.Title,
		Thumbnail: head.Thumbnail,
		AddedBy:   head.AddedBy,
	}); err != nil {
		return fmt.Errorf("failed to promote queue head: %w", err)
	}

	if err := c.state.AppendHistory(ctx, roomId, room.HistoryItem{
		VideoId:  head.VideoId,
		Title:    head.Title,
		AddedBy:  head.AddedBy,
		PlayedAt: c.authClock.Now(),
	}); err != nil {
		c.logger.WarnContext(ctx, "failed to record history", "room_id", roomId, "error", err)
	}

	return nil
}

// Move swaps the payloads of itemId and its neighbor in the given direction.
// Keys stay where they are; moving the first item up or the last item down
// is a no-op.
func (c *Coordinator) Move(ctx context.Context, roomId, itemId string, direction Direction) error {
	if direction != DirectionUp && direction != DirectionDown {
		return ErrInvalidDirection
	}

	items, err := c.state.QueueItems(ctx, roomId)
	if err != nil {
		return fmt.Errorf("failed to read queue: %w", err)
	}

	idx := -1
	for i, item := range items {
		if item.Id == itemId {
			idx = i
			break
		}
	}
	if idx == -1 {
		return nil
	}

	other := idx - 1
	if direction == DirectionDown {
		other = idx + 1
	}
	if other < 0 || other >= len(items) {
		return nil
	}

	a, b := items[idx], items[other]
	if err := c.state.SetQueueItemPayload(ctx, roomId, a.Id, b); err != nil {
		return fmt.Errorf("failed to swap queue items: %w", err)
	}
	if err := c.state.SetQueueItemPayload(ctx, roomId, b.Id, a); err != nil {
		return fmt.Errorf("failed to swap queue items: %w", err)
	}

	return nil
}
