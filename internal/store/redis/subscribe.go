package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/syncwatch/server/internal/store"
)

func (s *Store) Subscribe(ctx context.Context, path string) <-chan store.Snapshot {
	out := make(chan store.Snapshot, 16)
	pubsub := s.rc.Subscribe(ctx, s.channel(path))

	go func() {
		defer close(out)
		defer pubsub.Close()

		// wait for the subscription ack before reading the initial snapshot,
		// so a write between the read and the subscription cannot be missed
		if _, err := pubsub.Receive(ctx); err != nil {
			s.logger.WarnContext(ctx, "failed to subscribe", "path", path, "error", err)
			return
		}

		doc, err := s.Read(ctx, path)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			s.logger.WarnContext(ctx, "failed to read initial snapshot", "path", path, "error", err)
			return
		}

		select {
		case out <- store.Snapshot{Path: path, Doc: doc}:
		case <-ctx.Done():
			return
		}

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var doc json.RawMessage
				if msg.Payload != "" && msg.Payload != "null" {
					doc = json.RawMessage(msg.Payload)
				}

				select {
				case out <- store.Snapshot{Path: path, Doc: doc}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}

// RunClock publishes the store's authoritative clock on ServerTimePath once
// per second until ctx is done. Clients estimate their skew from it.
func (s *Store) RunClock(ctx context.Context) {
	ticker := s.clock.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if err := s.Write(ctx, store.ServerTimePath, store.ServerTime{
				ServerNow: s.serverNow(ctx),
			}); err != nil {
				s.logger.WarnContext(ctx, "failed to publish server time", "error", err)
			}
		}
	}
}
