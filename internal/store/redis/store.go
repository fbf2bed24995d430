package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	"github.com/syncwatch/server/internal/store"
)

type scheduledWrite struct {
	path   string
	fields map[string]any
}

type Store struct {
	rc           *redis.Client
	clock        clockwork.Clock
	logger       *slog.Logger
	appendScript string
	indexScript  string

	mu          sync.Mutex
	disconnects map[string][]scheduledWrite
}

func NewStore(rc *redis.Client, clock clockwork.Clock, logger *slog.Logger) *Store {
	return &Store{
		rc:     rc,
		clock:  clock,
		logger: logger,
		// generates the next monotonic collection key and indexes it in a
		// single step, so concurrent appenders can never observe the same key
		appendScript: rc.ScriptLoad(context.Background(), `
			local seq = redis.call('INCR', KEYS[1])
			local key = string.format('%011d', seq)
			redis.call('ZADD', KEYS[2], seq, key)
			return key
		`).Val(),
		// indexes a caller-keyed document into its collection exactly once,
		// preserving first-write order
		indexScript: rc.ScriptLoad(context.Background(), `
			if redis.call('ZSCORE', KEYS[2], ARGV[1]) then
				return 0
			end
			local seq = redis.call('INCR', KEYS[1])
			redis.call('ZADD', KEYS[2], seq, ARGV[1])
			return seq
		`).Val(),
		disconnects: make(map[string][]scheduledWrite),
	}
}

func (s *Store) docKey(path string) string {
	return "doc:" + path
}

func (s *Store) colKey(path string) string {
	return "col:" + path
}

func (s *Store) seqKey(path string) string {
	return "seq:" + path
}

func (s *Store) channel(path string) string {
	return "sub:" + path
}

// serverNow returns the store server's clock in unix milliseconds. All
// updated_at stamps come from here, never from the caller's clock.
func (s *Store) serverNow(ctx context.Context) int64 {
	t, err := s.rc.Time(ctx).Result()
	if err != nil {
		return s.clock.Now().UnixMilli()
	}

	return t.UnixMilli()
}

// stamp encodes doc and overwrites its updated_at field with the server
// clock.
func (s *Store) stamp(ctx context.Context, doc any) (json.RawMessage, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}

	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		// non-object document, stored as-is
		return raw, nil
	}

	fields["updated_at"] = s.serverNow(ctx)

	return json.Marshal(fields)
}

func (s *Store) publish(ctx context.Context, path string, doc json.RawMessage) error {
	payload := "null"
	if doc != nil {
		payload = string(doc)
	}

	if err := s.rc.Publish(ctx, s.channel(path), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish snapshot: %w", err)
	}

	return nil
}

// notifyParent publishes a change tick on the enclosing collection path so
// collection subscribers can re-list. Subscribers tolerate redundant ticks.
func (s *Store) notifyParent(ctx context.Context, path string) {
	idx := strings.LastIndex(path, "/")
	if idx <= 0 {
		return
	}

	if err := s.publish(ctx, path[:idx], nil); err != nil {
		s.logger.WarnContext(ctx, "failed to notify collection", "path", path[:idx], "error", err)
	}
}

// index registers the document at path in its enclosing collection so
// ListKeys sees caller-keyed documents as well as appended ones.
func (s *Store) index(ctx context.Context, path string) error {
	idx := strings.LastIndex(path, "/")
	if idx <= 0 {
		return nil
	}

	parent, key := path[:idx], path[idx+1:]
	if err := s.rc.EvalSha(ctx, s.indexScript, []string{s.seqKey(parent), s.colKey(parent)}, key).Err(); err != nil {
		return fmt.Errorf("failed to index document: %w", err)
	}

	return nil
}

func (s *Store) Read(ctx context.Context, path string) (json.RawMessage, error) {
	raw, err := s.rc.Get(ctx, s.docKey(path)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, store.ErrNotFound
		}

		return nil, fmt.Errorf("failed to read document: %w", err)
	}

	return json.RawMessage(raw), nil
}

func (s *Store) Write(ctx context.Context, path string, doc any) error {
	raw, err := s.stamp(ctx, doc)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}

	if err := s.rc.Set(ctx, s.docKey(path), string(raw), 0).Err(); err != nil {
		return fmt.Errorf("failed to write document: %w", err)
	}
	if err := s.index(ctx, path); err != nil {
		return err
	}

	return s.publish(ctx, path, raw)
}

func (s *Store) Merge(ctx context.Context, path string, fields map[string]any) error {
	existing := make(map[string]any)
	raw, err := s.Read(ctx, path)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	if raw != nil {
		if err := json.Unmarshal(raw, &existing); err != nil {
			return fmt.Errorf("failed to decode document: %w", err)
		}
	}

	for k, v := range fields {
		existing[k] = v
	}
	existing["updated_at"] = s.serverNow(ctx)

	merged, err := json.Marshal(existing)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}

	if err := s.rc.Set(ctx, s.docKey(path), string(merged), 0).Err(); err != nil {
		return fmt.Errorf("failed to merge document: %w", err)
	}
	if err := s.index(ctx, path); err != nil {
		return err
	}

	return s.publish(ctx, path, merged)
}

func (s *Store) Append(ctx context.Context, path string, doc any) (string, error) {
	key, err := s.rc.EvalSha(ctx, s.appendScript, []string{s.seqKey(path), s.colKey(path)}).Text()
	if err != nil {
		return "", fmt.Errorf("failed to generate collection key: %w", err)
	}

	itemPath := path + "/" + key
	if err := s.Write(ctx, itemPath, doc); err != nil {
		return "", err
	}

	s.notifyParent(ctx, itemPath)

	return key, nil
}

func (s *Store) Delete(ctx context.Context, path string) error {
	res, err := s.rc.Del(ctx, s.docKey(path)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if res == 0 {
		return store.ErrNotFound
	}

	if idx := strings.LastIndex(path, "/"); idx > 0 {
		if err := s.rc.ZRem(ctx, s.colKey(path[:idx]), path[idx+1:]).Err(); err != nil {
			return fmt.Errorf("failed to unindex document: %w", err)
		}
	}

	if err := s.publish(ctx, path, nil); err != nil {
		return err
	}
	s.notifyParent(ctx, path)

	return nil
}

func (s *Store) ListKeys(ctx context.Context, path string) ([]string, error) {
	keys, err := s.rc.ZRange(ctx, s.colKey(path), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list collection keys: %w", err)
	}

	return keys, nil
}

func (s *Store) ScheduleOnDisconnect(sessionId string, path string, fields map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.disconnects[sessionId] = append(s.disconnects[sessionId], scheduledWrite{
		path:   path,
		fields: fields,
	})
}

func (s *Store) RunDisconnect(ctx context.Context, sessionId string) {
	s.mu.Lock()
	writes := s.disconnects[sessionId]
	delete(s.disconnects, sessionId)
	s.mu.Unlock()

	for _, w := range writes {
		if err := s.Merge(ctx, w.path, w.fields); err != nil {
			s.logger.WarnContext(ctx, "failed to run disconnect write", "path", w.path, "error", err)
		}
	}
}
