// Package presence keeps the participant documents of a room in sync with
// who is actually connected. The online flag is authoritative only together
// with last_active: a participant whose heartbeat stalls is treated as gone
// even before the disconnect write lands.
package presence

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/syncwatch/server/internal/room"
)

const defaultHeartbeatInterval = 25 * time.Second

type iAuthClock interface {
	Now() int64
}

type Tracker struct {
	state             *room.StateStore
	authClock         iAuthClock
	clock             clockwork.Clock
	logger            *slog.Logger
	heartbeatInterval time.Duration
}

func NewTracker(state *room.StateStore, authClock iAuthClock, clock clockwork.Clock, logger *slog.Logger, heartbeatInterval time.Duration) *Tracker {
	if heartbeatInterval <= 0 {
		heartbeatInterval = defaultHeartbeatInterval
	}

	return &Tracker{
		state:             state,
		authClock:         authClock,
		clock:             clock,
		logger:            logger,
		heartbeatInterval: heartbeatInterval,
	}
}

type JoinParams struct {
	SessionId string
	RoomId    string
	UserId    string
	Name      string
}

// Join marks the participant online and schedules the offline flip before
// announcing presence, so a connection dying mid-join still gets cleaned up.
func (t *Tracker) Join(ctx context.Context, params *JoinParams) error {
	t.state.ScheduleParticipantOffline(params.SessionId, params.RoomId, params.UserId)

	if err := t.state.SetParticipant(ctx, params.RoomId, params.UserId, room.Participant{
		Name:       params.Name,
		Online:     true,
		LastActive: t.authClock.Now(),
	}); err != nil {
		return fmt.Errorf("failed to join room: %w", err)
	}

	return nil
}

// Leave runs the scheduled disconnect writes for the session immediately,
// covering the graceful-close path.
func (t *Tracker) Leave(ctx context.Context, sessionId string) {
	t.state.RunDisconnect(ctx, sessionId)
}

// Touch refreshes the participant's liveness stamp.
func (t *Tracker) Touch(ctx context.Context, roomId, userId string) error {
	if err := t.state.MergeParticipant(ctx, roomId, userId, map[string]any{
		"online":      true,
		"last_active": t.authClock.Now(),
	}); err != nil {
		return fmt.Errorf("failed to refresh presence: %w", err)
	}

	return nil
}

// RunHeartbeat touches the participant on a fixed interval until the context
// is cancelled.
func (t *Tracker) RunHeartbeat(ctx context.Context, roomId, userId string) {
	ticker := t.clock.NewTicker(t.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if err := t.Touch(ctx, roomId, userId); err != nil {
				t.logger.WarnContext(ctx, "failed to send heartbeat", "room_id", roomId, "user_id", userId, "error", err)
			}
		}
	}
}

// Online returns the participants currently marked online.
func (t *Tracker) Online(ctx context.Context, roomId string) (map[string]room.Participant, error) {
	participants, err := t.state.Participants(ctx, roomId)
	if err != nil {
		return nil, err
	}

	online := make(map[string]room.Participant, len(participants))
	for id, p := range participants {
		if p.Online {
			online[id] = p
		}
	}

	return online, nil
}
