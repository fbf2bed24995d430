// Package store defines the shared document store contract the sync core is
// built on: path-addressable documents with last-write-wins replace, shallow
// merge, ordered append and realtime full-snapshot subscriptions. The store's
// own clock stamps every write, which makes document timestamps directly
// comparable across clients regardless of their local clock skew.
package store

import (
	"context"
	"encoding/json"
	"errors"
)

var ErrNotFound = errors.New("document not found")

// ServerTimePath is the global path carrying the store's authoritative clock
// signal as a ServerTime document.
const ServerTimePath = ".info/server-time"

type ServerTime struct {
	ServerNow int64 `json:"server_now"`
}

// Snapshot is a full-document push delivered to subscribers. Doc is nil when
// the document is absent or was deleted.
type Snapshot struct {
	Path string
	Doc  json.RawMessage
}

type Store interface {
	// Read returns the current document at path, or ErrNotFound.
	Read(ctx context.Context, path string) (json.RawMessage, error)
	// Write fully replaces the document at path. The store stamps the
	// document's updated_at field with its own clock.
	Write(ctx context.Context, path string, doc any) error
	// Merge shallowly updates the given fields of the document at path,
	// creating it if absent. updated_at is stamped like Write.
	Merge(ctx context.Context, path string, fields map[string]any) error
	// Append writes doc under a store-generated key within the collection at
	// path and returns the key. Keys are monotonically ordered: iterating a
	// collection in key order is insertion order.
	Append(ctx context.Context, path string, doc any) (string, error)
	// Delete removes the document at path. Deleting an absent document
	// returns ErrNotFound.
	Delete(ctx context.Context, path string) error
	// ListKeys returns the keys of the collection at path in key order.
	ListKeys(ctx context.Context, path string) ([]string, error)
	// Subscribe delivers an initial snapshot of the document at path followed
	// by a snapshot for every subsequent write, in write order. The channel
	// closes when ctx is done.
	Subscribe(ctx context.Context, path string) <-chan Snapshot
	// ScheduleOnDisconnect registers a merge to run when the session owning
	// sessionId drops its connection. This is the store-side guarantee that
	// cannot be forged by a crashing client.
	ScheduleOnDisconnect(sessionId string, path string, fields map[string]any)
	// RunDisconnect executes and clears every write scheduled for sessionId.
	RunDisconnect(ctx context.Context, sessionId string)
}
