package playback

import (
	"context"

	"github.com/syncwatch/server/internal/room"
)

// StatePublisher publishes engine output as a shallow merge on the shared
// player document, so unrelated fields (video metadata) survive and the
// store stamps updated_at with its own clock.
type StatePublisher struct {
	state *room.StateStore
}

func NewStatePublisher(state *room.StateStore) *StatePublisher {
	return &StatePublisher{state: state}
}

func (p *StatePublisher) PublishPlayerState(ctx context.Context, roomId string, isPlaying bool, position float64) error {
	return p.state.MergePlayer(ctx, roomId, map[string]any{
		"is_playing": isPlaying,
		"timestamp":  position,
	})
}
