package controller

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/syncwatch/server/internal/queue"
	"github.com/syncwatch/server/internal/room"
	"github.com/syncwatch/server/pkg/videoid"
	"github.com/syncwatch/server/pkg/ytvideodata"
)

const (
	defaultSearchResults = 12
	maxSearchResults     = 25
)

func (c controller) searchVideos(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeJSON(w, http.StatusBadRequest, envelope{"error": "q is required"})
		return
	}

	maxResults := defaultSearchResults
	if raw := r.URL.Query().Get("max_results"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxSearchResults {
			writeJSON(w, http.StatusBadRequest, envelope{"error": "max_results must be between 1 and 25"})
			return
		}
		maxResults = n
	}

	results, err := c.searcher.Search(r.Context(), query, maxResults)
	if err != nil {
		if errors.Is(err, ytvideodata.ErrSearchDisabled) {
			writeJSON(w, http.StatusServiceUnavailable, envelope{"error": "search is disabled"})
			return
		}

		c.logger.ErrorContext(r.Context(), "failed to search videos", "error", err)
		writeJSON(w, http.StatusBadGateway, envelope{"error": "search failed"})
		return
	}

	writeJSON(w, http.StatusOK, envelope{"data": results})
}

func (c controller) getPlayer(w http.ResponseWriter, r *http.Request) {
	player, err := c.state.Player(r.Context(), chi.URLParam(r, "room-id"))
	if err != nil {
		c.logger.ErrorContext(r.Context(), "failed to get player", "error", err)
		writeJSON(w, http.StatusInternalServerError, envelope{"error": "failed to get player"})
		return
	}
	if player == nil {
		writeJSON(w, http.StatusNotFound, envelope{"error": "room has no player state"})
		return
	}

	writeJSON(w, http.StatusOK, envelope{"data": player})
}

type initPlayerInput struct {
	VideoURL string `json:"video_url" validate:"required,max=512"`
}

// initPlayer seeds the player document for a new room. Joining an existing
// room is a no-op; the store keeps whatever state is already there.
func (c controller) initPlayer(w http.ResponseWriter, r *http.Request) {
	var input initPlayerInput
	if err := readJSON(r, &input); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, envelope{"error": err.Error()})
		return
	}
	if validationErrors, ok := c.validate.Validate(input); !ok {
		writeJSON(w, http.StatusBadRequest, envelope{"errors": validationErrors})
		return
	}

	videoId, ok := videoid.Extract(input.VideoURL)
	if !ok {
		writeJSON(w, http.StatusBadRequest, envelope{"error": "invalid video url"})
		return
	}

	if err := c.state.InitPlayer(r.Context(), chi.URLParam(r, "room-id"), videoId); err != nil {
		c.logger.ErrorContext(r.Context(), "failed to init player", "error", err)
		writeJSON(w, http.StatusInternalServerError, envelope{"error": "failed to init player"})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (c controller) getParticipants(w http.ResponseWriter, r *http.Request) {
	participants, err := c.state.Participants(r.Context(), chi.URLParam(r, "room-id"))
	if err != nil {
		c.logger.ErrorContext(r.Context(), "failed to get participants", "error", err)
		writeJSON(w, http.StatusInternalServerError, envelope{"error": "failed to get participants"})
		return
	}

	writeJSON(w, http.StatusOK, envelope{"data": participants})
}

// queueItemResponse surfaces the collection key, which the item's own JSON
// shape deliberately omits.
type queueItemResponse struct {
	Id string `json:"id"`
	room.QueueItem
}

func queueItemsResponse(items []room.QueueItem) []queueItemResponse {
	resp := make([]queueItemResponse, 0, len(items))
	for _, item := range items {
		resp = append(resp, queueItemResponse{Id: item.Id, QueueItem: item})
	}

	return resp
}

func (c controller) getQueue(w http.ResponseWriter, r *http.Request) {
	items, err := c.queue.Items(r.Context(), chi.URLParam(r, "room-id"))
	if err != nil {
		c.logger.ErrorContext(r.Context(), "failed to get queue", "error", err)
		writeJSON(w, http.StatusInternalServerError, envelope{"error": "failed to get queue"})
		return
	}

	writeJSON(w, http.StatusOK, envelope{"data": queueItemsResponse(items)})
}

type addQueueItemInput struct {
	VideoURL string `json:"video_url" validate:"required,max=512"`
	AddedBy  string `json:"added_by" validate:"required,min=1,max=64"`
}

func (c controller) addQueueItem(w http.ResponseWriter, r *http.Request) {
	var input addQueueItemInput
	if err := readJSON(r, &input); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, envelope{"error": err.Error()})
		return
	}
	if validationErrors, ok := c.validate.Validate(input); !ok {
		writeJSON(w, http.StatusBadRequest, envelope{"errors": validationErrors})
		return
	}

	item, err := c.queue.Add(r.Context(), &queue.AddParams{
		RoomId:   chi.URLParam(r, "room-id"),
		VideoURL: input.VideoURL,
		AddedBy:  input.AddedBy,
	})
	if err != nil {
		if errors.Is(err, queue.ErrInvalidVideoURL) {
			writeJSON(w, http.StatusBadRequest, envelope{"error": "invalid video url"})
			return
		}

		c.logger.ErrorContext(r.Context(), "failed to add queue item", "error", err)
		writeJSON(w, http.StatusInternalServerError, envelope{"error": "failed to add queue item"})
		return
	}

	writeJSON(w, http.StatusCreated, envelope{"data": queueItemResponse{Id: item.Id, QueueItem: item}})
}

func (c controller) removeQueueItem(w http.ResponseWriter, r *http.Request) {
	err := c.queue.Remove(r.Context(), chi.URLParam(r, "room-id"), chi.URLParam(r, "item-id"))
	if err != nil {
		c.logger.ErrorContext(r.Context(), "failed to remove queue item", "error", err)
		writeJSON(w, http.StatusInternalServerError, envelope{"error": "failed to remove queue item"})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (c controller) advanceQueue(w http.ResponseWriter, r *http.Request) {
	err := c.queue.Advance(r.Context(), chi.URLParam(r, "room-id"))
	if err != nil {
		if errors.Is(err, queue.ErrQueueEmpty) {
			writeJSON(w, http.StatusConflict, envelope{"error": "queue is empty"})
			return
		}

		c.logger.ErrorContext(r.Context(), "failed to advance queue", "error", err)
		writeJSON(w, http.StatusInternalServerError, envelope{"error": "failed to advance queue"})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type moveQueueItemInput struct {
	Direction string `json:"direction" validate:"required,oneof=up down"`
}

func (c controller) moveQueueItem(w http.ResponseWriter, r *http.Request) {
	var input moveQueueItemInput
	if err := readJSON(r, &input); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, envelope{"error": err.Error()})
		return
	}
	if validationErrors, ok := c.validate.Validate(input); !ok {
		writeJSON(w, http.StatusBadRequest, envelope{"errors": validationErrors})
		return
	}

	err := c.queue.Move(r.Context(), chi.URLParam(r, "room-id"), chi.URLParam(r, "item-id"), queue.Direction(input.Direction))
	if err != nil {
		c.logger.ErrorContext(r.Context(), "failed to move queue item", "error", err)
		writeJSON(w, http.StatusInternalServerError, envelope{"error": "failed to move queue item"})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (c controller) getHistory(w http.ResponseWriter, r *http.Request) {
	history, err := c.state.History(r.Context(), chi.URLParam(r, "room-id"))
	if err != nil {
		c.logger.ErrorContext(r.Context(), "failed to get history", "error", err)
		writeJSON(w, http.StatusInternalServerError, envelope{"error": "failed to get history"})
		return
	}

	writeJSON(w, http.StatusOK, envelope{"data": history})
}

func (c controller) getSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := c.state.Settings(r.Context(), chi.URLParam(r, "room-id"))
	if err != nil {
		c.logger.ErrorContext(r.Context(), "failed to get settings", "error", err)
		writeJSON(w, http.StatusInternalServerError, envelope{"error": "failed to get settings"})
		return
	}
	if settings == nil {
		settings = &room.Settings{}
	}

	writeJSON(w, http.StatusOK, envelope{"data": settings})
}

type setSettingsInput struct {
	BackgroundURL   string  `json:"background_url" validate:"omitempty,url,max=512"`
	BackgroundBlur  int     `json:"background_blur" validate:"min=0,max=100"`
	OverlayStrength float64 `json:"overlay_strength" validate:"min=0,max=1"`
}

func (c controller) setSettings(w http.ResponseWriter, r *http.Request) {
	var input setSettingsInput
	if err := readJSON(r, &input); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, envelope{"error": err.Error()})
		return
	}
	if validationErrors, ok := c.validate.Validate(input); !ok {
		writeJSON(w, http.StatusBadRequest, envelope{"errors": validationErrors})
		return
	}

	settings := room.Settings{
		BackgroundURL:   input.BackgroundURL,
		BackgroundBlur:  input.BackgroundBlur,
		OverlayStrength: input.OverlayStrength,
	}
	if err := c.state.SetSettings(r.Context(), chi.URLParam(r, "room-id"), settings); err != nil {
		c.logger.ErrorContext(r.Context(), "failed to set settings", "error", err)
		writeJSON(w, http.StatusInternalServerError, envelope{"error": "failed to set settings"})
		return
	}

	writeJSON(w, http.StatusOK, envelope{"data": settings})
}

func (c controller) getMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := c.state.Messages(r.Context(), chi.URLParam(r, "room-id"))
	if err != nil {
		c.logger.ErrorContext(r.Context(), "failed to get messages", "error", err)
		writeJSON(w, http.StatusInternalServerError, envelope{"error": "failed to get messages"})
		return
	}

	writeJSON(w, http.StatusOK, envelope{"data": messages})
}

type sendMessageInput struct {
	Sender string `json:"sender" validate:"required,min=1,max=64"`
	Text   string `json:"text" validate:"required,min=1,max=500"`
}

func (c controller) sendMessage(w http.ResponseWriter, r *http.Request) {
	var input sendMessageInput
	if err := readJSON(r, &input); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, envelope{"error": err.Error()})
		return
	}
	if validationErrors, ok := c.validate.Validate(input); !ok {
		writeJSON(w, http.StatusBadRequest, envelope{"errors": validationErrors})
		return
	}

	msg := room.Message{
		Sender:    input.Sender,
		Text:      input.Text,
		Timestamp: c.authClock.Now(),
	}
	if err := c.state.AppendMessage(r.Context(), chi.URLParam(r, "room-id"), msg); err != nil {
		c.logger.ErrorContext(r.Context(), "failed to send message", "error", err)
		writeJSON(w, http.StatusInternalServerError, envelope{"error": "failed to send message"})
		return
	}

	writeJSON(w, http.StatusCreated, envelope{"data": msg})
}
