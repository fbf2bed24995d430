package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
)

// noopStore is the degraded mode used when no store credentials are
// configured: writes are accepted and dropped, reads find nothing and
// subscriptions never fire. Nothing ever errors fatally, so the rest of the
// system keeps running local-only.
type noopStore struct {
	seq atomic.Int64
}

func NewNoop() Store {
	return &noopStore{}
}

func (s *noopStore) Read(ctx context.Context, path string) (json.RawMessage, error) {
	return nil, ErrNotFound
}

func (s *noopStore) Write(ctx context.Context, path string, doc any) error {
	return nil
}

func (s *noopStore) Merge(ctx context.Context, path string, fields map[string]any) error {
	return nil
}

func (s *noopStore) Append(ctx context.Context, path string, doc any) (string, error) {
	return fmt.Sprintf("%011d", s.seq.Add(1)), nil
}

func (s *noopStore) Delete(ctx context.Context, path string) error {
	return ErrNotFound
}

func (s *noopStore) ListKeys(ctx context.Context, path string) ([]string, error) {
	return nil, nil
}

func (s *noopStore) Subscribe(ctx context.Context, path string) <-chan Snapshot {
	ch := make(chan Snapshot)
	go func() {
		<-ctx.Done()
		close(ch)
	}()

	return ch
}

func (s *noopStore) ScheduleOnDisconnect(sessionId string, path string, fields map[string]any) {
}

func (s *noopStore) RunDisconnect(ctx context.Context, sessionId string) {
}
