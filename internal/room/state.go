// Package room is the typed accessor layer over the shared document store.
// It owns the room document paths and the closed set of document shapes; the
// store itself remains the single source of truth, every client only holds a
// disposable cached copy reconciled via subscription push.
package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/syncwatch/server/internal/store"
)

var ErrNotFound = store.ErrNotFound

type StateStore struct {
	s store.Store
}

func NewStateStore(s store.Store) *StateStore {
	return &StateStore{s: s}
}

func playerPath(roomId string) string {
	return "rooms/" + roomId + "/player"
}

func queuePath(roomId string) string {
	return "rooms/" + roomId + "/queue"
}

func queueItemPath(roomId, itemId string) string {
	return queuePath(roomId) + "/" + itemId
}

func historyPath(roomId string) string {
	return "rooms/" + roomId + "/history"
}

func messagesPath(roomId string) string {
	return "rooms/" + roomId + "/messages"
}

func settingsPath(roomId string) string {
	return "rooms/" + roomId + "/settings"
}

func participantPath(roomId, userId string) string {
	return "rooms/" + roomId + "/participants/" + userId
}

func participantsPath(roomId string) string {
	return "rooms/" + roomId + "/participants"
}

// player

func (st *StateStore) Player(ctx context.Context, roomId string) (*PlayerState, error) {
	raw, err := st.s.Read(ctx, playerPath(roomId))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to read player: %w", err)
	}

	var player PlayerState
	if err := json.Unmarshal(raw, &player); err != nil {
		return nil, fmt.Errorf("failed to decode player: %w", err)
	}

	return &player, nil
}

func (st *StateStore) SetPlayer(ctx context.Context, roomId string, player PlayerState) error {
	if err := st.s.Write(ctx, playerPath(roomId), player); err != nil {
		return fmt.Errorf("failed to set player: %w", err)
	}

	return nil
}

func (st *StateStore) MergePlayer(ctx context.Context, roomId string, fields map[string]any) error {
	if err := st.s.Merge(ctx, playerPath(roomId), fields); err != nil {
		return fmt.Errorf("failed to merge player: %w", err)
	}

	return nil
}

// InitPlayer writes the default player state only if the room has none yet,
// so joining an existing room never clobbers it.
func (st *StateStore) InitPlayer(ctx context.Context, roomId, defaultVideoId string) error {
	player, err := st.Player(ctx, roomId)
	if err != nil {
		return err
	}
	if player != nil {
		return nil
	}

	return st.SetPlayer(ctx, roomId, PlayerState{
		VideoId:   defaultVideoId,
		IsPlaying: false,
		Timestamp: 0,
	})
}

// SubscribePlayer pushes the full player document on every write. A nil
// element means the document is absent.
func (st *StateStore) SubscribePlayer(ctx context.Context, roomId string) <-chan *PlayerState {
	out := make(chan *PlayerState, 16)

	go func() {
		defer close(out)
		for snap := range st.s.Subscribe(ctx, playerPath(roomId)) {
			var player *PlayerState
			if snap.Doc != nil {
				player = &PlayerState{}
				if err := json.Unmarshal(snap.Doc, player); err != nil {
					continue
				}
			}

			select {
			case out <- player:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}

// queue

func (st *StateStore) AppendQueueItem(ctx context.Context, roomId string, item QueueItem) (string, error) {
	key, err := st.s.Append(ctx, queuePath(roomId), item)
	if err != nil {
		return "", fmt.Errorf("failed to append queue item: %w", err)
	}

	return key, nil
}

func (st *StateStore) QueueItem(ctx context.Context, roomId, itemId string) (QueueItem, error) {
	raw, err := st.s.Read(ctx, queueItemPath(roomId, itemId))
	if err != nil {
		return QueueItem{}, fmt.Errorf("failed to read queue item: %w", err)
	}

	var item QueueItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return QueueItem{}, fmt.Errorf("failed to decode queue item: %w", err)
	}
	item.Id = itemId

	return item, nil
}

// QueueItems returns the pending list in key order, which is insertion order
// unless payloads were swapped by a reorder.
func (st *StateStore) QueueItems(ctx context.Context, roomId string) ([]QueueItem, error) {
	keys, err := st.s.ListKeys(ctx, queuePath(roomId))
	if err != nil {
		return nil, fmt.Errorf("failed to list queue: %w", err)
	}

	items := make([]QueueItem, 0, len(keys))
	for _, key := range keys {
		item, err := st.QueueItem(ctx, roomId, key)
		if err != nil {
			// a concurrent advance or remove may have raced the listing
			if errors.Is(err, store.ErrNotFound) {
				continue
			}

			return nil, err
		}

		items = append(items, item)
	}

	return items, nil
}

func (st *StateStore) QueueLength(ctx context.Context, roomId string) (int, error) {
	keys, err := st.s.ListKeys(ctx, queuePath(roomId))
	if err != nil {
		return 0, fmt.Errorf("failed to list queue: %w", err)
	}

	return len(keys), nil
}

func (st *StateStore) DeleteQueueItem(ctx context.Context, roomId, itemId string) error {
	return st.s.Delete(ctx, queueItemPath(roomId, itemId))
}

// SetQueueItemPayload replaces the payload stored under an existing key. The
// key itself is immutable; this is the primitive the reorder swap is built
// on.
func (st *StateStore) SetQueueItemPayload(ctx context.Context, roomId, itemId string, item QueueItem) error {
	if err := st.s.Write(ctx, queueItemPath(roomId, itemId), item); err != nil {
		return fmt.Errorf("failed to set queue item: %w", err)
	}

	return nil
}

// SubscribeQueue pushes the full ordered queue on every queue mutation.
func (st *StateStore) SubscribeQueue(ctx context.Context, roomId string) <-chan []QueueItem {
	out := make(chan []QueueItem, 16)

	go func() {
		defer close(out)
		for range st.s.Subscribe(ctx, queuePath(roomId)) {
			items, err := st.QueueItems(ctx, roomId)
			if err != nil {
				continue
			}

			select {
			case out <- items:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}

// history

func (st *StateStore) AppendHistory(ctx context.Context, roomId string, item HistoryItem) error {
	if _, err := st.s.Append(ctx, historyPath(roomId), item); err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}

	return nil
}

func (st *StateStore) History(ctx context.Context, roomId string) ([]HistoryItem, error) {
	keys, err := st.s.ListKeys(ctx, historyPath(roomId))
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}

	items := make([]HistoryItem, 0, len(keys))
	for _, key := range keys {
		raw, err := st.s.Read(ctx, historyPath(roomId)+"/"+key)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}

			return nil, fmt.Errorf("failed to read history item: %w", err)
		}

		var item HistoryItem
		if err := json.Unmarshal(raw, &item); err != nil {
			return nil, fmt.Errorf("failed to decode history item: %w", err)
		}

		items = append(items, item)
	}

	return items, nil
}

// messages

func (st *StateStore) AppendMessage(ctx context.Context, roomId string, msg Message) error {
	if _, err := st.s.Append(ctx, messagesPath(roomId), msg); err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}

	return nil
}

func (st *StateStore) Messages(ctx context.Context, roomId string) ([]Message, error) {
	keys, err := st.s.ListKeys(ctx, messagesPath(roomId))
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	msgs := make([]Message, 0, len(keys))
	for _, key := range keys {
		raw, err := st.s.Read(ctx, messagesPath(roomId)+"/"+key)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}

			return nil, fmt.Errorf("failed to read message: %w", err)
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, fmt.Errorf("failed to decode message: %w", err)
		}

		msgs = append(msgs, msg)
	}

	return msgs, nil
}

// participants

func (st *StateStore) SetParticipant(ctx context.Context, roomId, userId string, p Participant) error {
	if err := st.s.Write(ctx, participantPath(roomId, userId), p); err != nil {
		return fmt.Errorf("failed to set participant: %w", err)
	}

	return nil
}

func (st *StateStore) MergeParticipant(ctx context.Context, roomId, userId string, fields map[string]any) error {
	if err := st.s.Merge(ctx, participantPath(roomId, userId), fields); err != nil {
		return fmt.Errorf("failed to merge participant: %w", err)
	}

	return nil
}

func (st *StateStore) Participants(ctx context.Context, roomId string) (map[string]Participant, error) {
	keys, err := st.s.ListKeys(ctx, participantsPath(roomId))
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}

	participants := make(map[string]Participant, len(keys))
	for _, key := range keys {
		raw, err := st.s.Read(ctx, participantPath(roomId, key))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}

			return nil, fmt.Errorf("failed to read participant: %w", err)
		}

		var p Participant
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("failed to decode participant: %w", err)
		}

		participants[key] = p
	}

	return participants, nil
}

// ScheduleParticipantOffline delegates the offline flip to the store's
// on-disconnect guarantee; a crashing client cannot skip it.
func (st *StateStore) ScheduleParticipantOffline(sessionId, roomId, userId string) {
	st.s.ScheduleOnDisconnect(sessionId, participantPath(roomId, userId), map[string]any{
		"online": false,
	})
}

// RunDisconnect executes every write scheduled for the session.
func (st *StateStore) RunDisconnect(ctx context.Context, sessionId string) {
	st.s.RunDisconnect(ctx, sessionId)
}

// settings

func (st *StateStore) Settings(ctx context.Context, roomId string) (*Settings, error) {
	raw, err := st.s.Read(ctx, settingsPath(roomId))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to read settings: %w", err)
	}

	var settings Settings
	if err := json.Unmarshal(raw, &settings); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}

	return &settings, nil
}

func (st *StateStore) SetSettings(ctx context.Context, roomId string, settings Settings) error {
	if err := st.s.Write(ctx, settingsPath(roomId), settings); err != nil {
		return fmt.Errorf("failed to set settings: %w", err)
	}

	return nil
}
