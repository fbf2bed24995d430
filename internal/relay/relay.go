// Package relay is the store-less deployment of the room sync protocol. The
// server never holds playback state: it rebroadcasts commands within a room
// and bootstraps late joiners by asking an established peer for a state
// snapshot. If the peer's snapshot is stale there is no retry; the next
// broadcast converges everyone anyway.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/syncwatch/server/pkg/validator"
	"github.com/syncwatch/server/pkg/wsrouter"
)

var ErrNotJoined = errors.New("session has not joined a room")

type Output struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type Relay struct {
	hub      *hub
	router   *wsrouter.WSRouter
	validate *validator.Validator
	logger   *slog.Logger
}

func New(logger *slog.Logger) *Relay {
	r := &Relay{
		hub:      newHub(),
		router:   wsrouter.New(),
		validate: validator.NewValidator(),
		logger:   logger,
	}

	r.router.Handle("join_room", r.handleJoinRoom)
	r.router.Handle("change_video", r.handleChangeVideo)
	r.router.Handle("play_video", r.handlePlayVideo)
	r.router.Handle("pause_video", r.handlePauseVideo)
	r.router.Handle("sync_time", r.handleSyncTime)
	r.router.Handle("send_sync_data", r.handleSendSyncData)
	r.router.HandleError(r.handleError)
	r.router.HandleClose(r.handleClose)

	return r
}

// ServeConn runs the relay protocol on an upgraded connection until it drops.
func (r *Relay) ServeConn(ctx context.Context, conn *websocket.Conn) error {
	return r.router.ServeConn(ctx, conn)
}

func (r *Relay) decode(payload json.RawMessage, input any) error {
	if err := json.Unmarshal(payload, input); err != nil {
		return fmt.Errorf("failed to decode payload: %w", err)
	}

	if validationErrors, ok := r.validate.Validate(input); !ok {
		return fmt.Errorf("invalid payload: %v", validationErrors)
	}

	return nil
}

// broadcast sends out to every room session except the sender. A failed
// write only logs; the reader loop of the broken session will notice and
// clean up.
func (r *Relay) broadcast(ctx context.Context, roomId, senderSessionId string, out *Output) {
	for _, session := range r.hub.roomSessions(roomId) {
		if session.Id == senderSessionId {
			continue
		}

		if err := session.Send(out); err != nil {
			r.logger.WarnContext(ctx, "failed to send to session", "session_id", session.Id, "type", out.Type, "error", err)
		}
	}
}

type JoinRoomInput struct {
	RoomId string `json:"room_id" validate:"required,min=1,max=64"`
	UserId string `json:"user_id" validate:"required,min=1,max=64"`
	Name   string `json:"name" validate:"required,min=1,max=64"`
}

func (r *Relay) handleJoinRoom(ctx context.Context, conn *websocket.Conn, payload json.RawMessage) error {
	var input JoinRoomInput
	if err := r.decode(payload, &input); err != nil {
		return err
	}

	session := &Session{
		Id:     uuid.NewString(),
		RoomId: input.RoomId,
		UserId: input.UserId,
		Name:   input.Name,
		conn:   conn,
	}
	if err := r.hub.add(session); err != nil {
		return fmt.Errorf("failed to join room: %w", err)
	}

	r.logger.InfoContext(ctx, "session joined room", "session_id", session.Id, "room_id", input.RoomId, "user_id", input.UserId)

	r.broadcast(ctx, input.RoomId, session.Id, &Output{
		Type: "user_joined",
		Payload: map[string]any{
			"user_id": input.UserId,
			"name":    input.Name,
		},
	})

	// a late joiner bootstraps from any established peer
	peer, ok := r.hub.pickPeer(input.RoomId, session.Id)
	if !ok {
		return nil
	}

	if err := peer.Send(&Output{
		Type: "request_sync",
		Payload: map[string]any{
			"target": session.Id,
		},
	}); err != nil {
		return fmt.Errorf("failed to request sync from peer: %w", err)
	}

	return nil
}

type ChangeVideoInput struct {
	VideoId string `json:"video_id" validate:"required,min=1,max=64"`
}

func (r *Relay) handleChangeVideo(ctx context.Context, conn *websocket.Conn, payload json.RawMessage) error {
	var input ChangeVideoInput
	if err := r.decode(payload, &input); err != nil {
		return err
	}

	return r.rebroadcast(ctx, conn, map[string]any{"video_id": input.VideoId})
}

type PlayVideoInput struct {
	CurrentTime float64 `json:"current_time" validate:"min=0"`
}

func (r *Relay) handlePlayVideo(ctx context.Context, conn *websocket.Conn, payload json.RawMessage) error {
	var input PlayVideoInput
	if err := r.decode(payload, &input); err != nil {
		return err
	}

	return r.rebroadcast(ctx, conn, map[string]any{"current_time": input.CurrentTime})
}

type PauseVideoInput struct {
	CurrentTime float64 `json:"current_time" validate:"min=0"`
}

func (r *Relay) handlePauseVideo(ctx context.Context, conn *websocket.Conn, payload json.RawMessage) error {
	var input PauseVideoInput
	if err := r.decode(payload, &input); err != nil {
		return err
	}

	return r.rebroadcast(ctx, conn, map[string]any{"current_time": input.CurrentTime})
}

type SyncTimeInput struct {
	CurrentTime float64 `json:"current_time" validate:"min=0"`
}

func (r *Relay) handleSyncTime(ctx context.Context, conn *websocket.Conn, payload json.RawMessage) error {
	var input SyncTimeInput
	if err := r.decode(payload, &input); err != nil {
		return err
	}

	return r.rebroadcast(ctx, conn, map[string]any{"current_time": input.CurrentTime})
}

// rebroadcast relays the incoming event under its own type to the rest of
// the sender's room, stamped with the sender identity.
func (r *Relay) rebroadcast(ctx context.Context, conn *websocket.Conn, payload map[string]any) error {
	session, err := r.hub.getByConn(conn)
	if err != nil {
		return ErrNotJoined
	}

	payload["user_id"] = session.UserId

	r.broadcast(ctx, session.RoomId, session.Id, &Output{
		Type:    wsrouter.GetMessageTypeFromCtx(ctx),
		Payload: payload,
	})

	return nil
}

type SendSyncDataInput struct {
	Target      string  `json:"target" validate:"required"`
	VideoId     string  `json:"video_id" validate:"required,min=1,max=64"`
	CurrentTime float64 `json:"current_time" validate:"min=0"`
	IsPlaying   bool    `json:"is_playing"`
}

// handleSendSyncData forwards a peer's state snapshot to the joiner that a
// request_sync named. The target may already be gone; that is not an error
// worth surfacing to the answering peer.
func (r *Relay) handleSendSyncData(ctx context.Context, conn *websocket.Conn, payload json.RawMessage) error {
	var input SendSyncDataInput
	if err := r.decode(payload, &input); err != nil {
		return err
	}

	sender, err := r.hub.getByConn(conn)
	if err != nil {
		return ErrNotJoined
	}

	target, err := r.hub.get(input.Target)
	if err != nil || target.RoomId != sender.RoomId {
		r.logger.InfoContext(ctx, "sync target gone, dropping snapshot", "target", input.Target)
		return nil
	}

	if err := target.Send(&Output{
		Type: "initial_sync",
		Payload: map[string]any{
			"video_id":     input.VideoId,
			"current_time": input.CurrentTime,
			"is_playing":   input.IsPlaying,
		},
	}); err != nil {
		return fmt.Errorf("failed to send initial sync: %w", err)
	}

	return nil
}

func (r *Relay) handleError(ctx context.Context, conn *websocket.Conn, err error) {
	r.logger.InfoContext(ctx, "relay message error", "type", wsrouter.GetMessageTypeFromCtx(ctx), "error", err)

	out := &Output{
		Type: "error",
		Payload: map[string]any{
			"message": err.Error(),
		},
	}
	if session, hubErr := r.hub.getByConn(conn); hubErr == nil {
		if sendErr := session.Send(out); sendErr != nil {
			r.logger.WarnContext(ctx, "failed to send error", "session_id", session.Id, "error", sendErr)
		}
		return
	}

	if err := conn.WriteJSON(out); err != nil {
		r.logger.WarnContext(ctx, "failed to send error", "error", err)
	}
}

func (r *Relay) handleClose(ctx context.Context, conn *websocket.Conn) {
	session, err := r.hub.removeByConn(conn)
	if err != nil {
		return
	}

	r.logger.InfoContext(ctx, "session left room", "session_id", session.Id, "room_id", session.RoomId)

	r.broadcast(ctx, session.RoomId, session.Id, &Output{
		Type: "user_left",
		Payload: map[string]any{
			"user_id": session.UserId,
			"name":    session.Name,
		},
	})
}
