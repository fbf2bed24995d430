package wsrouter

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/gorilla/websocket"
)

var ErrUnknownMessageType = errors.New("unknown message type")

type message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type HandlerFunc func(ctx context.Context, conn *websocket.Conn, payload json.RawMessage) error

type WSRouter struct {
	routes       map[string]HandlerFunc
	errorHandler func(ctx context.Context, conn *websocket.Conn, err error)
	closeHandler func(ctx context.Context, conn *websocket.Conn)
}

func New() *WSRouter {
	return &WSRouter{routes: make(map[string]HandlerFunc)}
}

func (r *WSRouter) Handle(messageType string, handler HandlerFunc) {
	r.routes[messageType] = handler
}

// HandleError registers a callback invoked when a handler returns an error.
func (r *WSRouter) HandleError(handler func(ctx context.Context, conn *websocket.Conn, err error)) {
	r.errorHandler = handler
}

// HandleClose registers a callback invoked once when the connection stops
// being served, whatever the reason.
func (r *WSRouter) HandleClose(handler func(ctx context.Context, conn *websocket.Conn)) {
	r.closeHandler = handler
}

func (r *WSRouter) ServeConn(ctx context.Context, conn *websocket.Conn) error {
	defer conn.Close()
	if r.closeHandler != nil {
		defer r.closeHandler(ctx, conn)
	}

	for {
		var msg message
		if err := conn.ReadJSON(&msg); err != nil {
			return err
		}

		handler, exists := r.routes[msg.Type]
		if !exists {
			if r.errorHandler != nil {
				r.errorHandler(ctx, conn, ErrUnknownMessageType)
			}
			continue
		}

		msgCtx := context.WithValue(ctx, messageTypeKey, msg.Type)
		if err := handler(msgCtx, conn, msg.Payload); err != nil {
			if r.errorHandler != nil {
				r.errorHandler(msgCtx, conn, err)
			}
		}
	}
}
