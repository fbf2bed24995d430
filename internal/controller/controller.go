// Package controller exposes the HTTP surface: the relay websocket upgrade,
// the room REST endpoints and the optional video search proxy.
package controller

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/syncwatch/server/internal/queue"
	"github.com/syncwatch/server/internal/room"
	"github.com/syncwatch/server/pkg/randstr"
	"github.com/syncwatch/server/pkg/validator"
	"github.com/syncwatch/server/pkg/ytvideodata"
)

type iQueue interface {
	Add(ctx context.Context, params *queue.AddParams) (room.QueueItem, error)
	Remove(ctx context.Context, roomId, itemId string) error
	Advance(ctx context.Context, roomId string) error
	Move(ctx context.Context, roomId, itemId string, direction queue.Direction) error
	Items(ctx context.Context, roomId string) ([]room.QueueItem, error)
}

type iSearcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]ytvideodata.SearchResult, error)
}

type iRelay interface {
	ServeConn(ctx context.Context, conn *websocket.Conn) error
}

// iAuthClock yields the estimated authoritative time in unix milliseconds.
type iAuthClock interface {
	Now() int64
}

type controller struct {
	queue     iQueue
	state     *room.StateStore
	searcher  iSearcher
	relay     iRelay
	authClock iAuthClock
	upgrader  websocket.Upgrader
	validate  *validator.Validator
	generator *randstr.Generator
	logger    *slog.Logger
}

func NewController(queue iQueue, state *room.StateStore, searcher iSearcher, relay iRelay, authClock iAuthClock, logger *slog.Logger) *controller {
	return &controller{
		queue:     queue,
		state:     state,
		searcher:  searcher,
		relay:     relay,
		authClock: authClock,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		validate:  validator.NewValidator(),
		generator: randstr.New([]byte("0123456789abcdefghijklmnopqrstuvwxyz")),
		logger:    logger,
	}
}
