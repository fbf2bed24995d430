// Package playback reconciles a local media player against the shared
// intended player state, in both directions: remote pushes are applied to the
// player, and genuine local user actions are published back out. Commanded
// actions are kept from echoing outward by a short suppression window, which
// breaks the feedback loop where a commanded seek or play is misread as a
// user action.
package playback

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/syncwatch/server/internal/room"
)

const (
	defaultDriftThreshold    = 1.5
	defaultSuppressionWindow = 500 * time.Millisecond
	defaultWatchdogInterval  = time.Second
)

type iPublisher interface {
	PublishPlayerState(ctx context.Context, roomId string, isPlaying bool, position float64) error
}

type iQueue interface {
	Advance(ctx context.Context, roomId string) error
	Length(ctx context.Context, roomId string) (int, error)
}

// iAuthClock yields the estimated authoritative time in unix milliseconds.
type iAuthClock interface {
	Now() int64
}

type engineState int

const (
	stateIdle engineState = iota
	stateReconciling
	stateSuppressing
)

type Config struct {
	RoomId string
	// DriftThreshold is the allowed divergence in seconds between the local
	// position and the intended position before a seek is issued. Large
	// enough to absorb network and rendering jitter.
	DriftThreshold float64
	// SuppressionWindow is how long locally observed player events are
	// discarded after a commanded action.
	SuppressionWindow time.Duration
	WatchdogInterval  time.Duration
}

type Engine struct {
	player    Player
	pub       iPublisher
	queue     iQueue
	authClock iAuthClock
	clock     clockwork.Clock
	logger    *slog.Logger

	roomId            string
	driftThreshold    float64
	suppressionWindow time.Duration
	watchdogInterval  time.Duration

	mu            sync.Mutex
	state         engineState
	suppressUntil time.Time
	videoId       string
	endedHandled  bool
}

func NewEngine(player Player, pub iPublisher, queue iQueue, authClock iAuthClock, clock clockwork.Clock, logger *slog.Logger, cfg *Config) *Engine {
	e := &Engine{
		player:            player,
		pub:               pub,
		queue:             queue,
		authClock:         authClock,
		clock:             clock,
		logger:            logger,
		roomId:            cfg.RoomId,
		driftThreshold:    cfg.DriftThreshold,
		suppressionWindow: cfg.SuppressionWindow,
		watchdogInterval:  cfg.WatchdogInterval,
	}

	if e.driftThreshold <= 0 {
		e.driftThreshold = defaultDriftThreshold
	}
	if e.suppressionWindow <= 0 {
		e.suppressionWindow = defaultSuppressionWindow
	}
	if e.watchdogInterval <= 0 {
		e.watchdogInterval = defaultWatchdogInterval
	}

	return e
}

// suppress opens the suppression window. Caller must hold e.mu.
func (e *Engine) suppress() {
	e.suppressUntil = e.clock.Now().Add(e.suppressionWindow)
}

// suppressed reports whether the window is open. Caller must hold e.mu.
func (e *Engine) suppressed() bool {
	return e.clock.Now().Before(e.suppressUntil)
}

// ApplyRemote reconciles the local player against a pushed shared state.
// Called on every player-state subscription push; a nil state (document
// absent) is ignored.
func (e *Engine) ApplyRemote(ctx context.Context, st *room.PlayerState) {
	if st == nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.state = stateReconciling
	defer func() {
		if e.suppressed() {
			e.state = stateSuppressing
		} else {
			e.state = stateIdle
		}
	}()

	expected := st.ExpectedPosition(e.authClock.Now())

	if st.VideoId != e.videoId {
		e.videoId = st.VideoId
		e.endedHandled = false
		e.suppress()
		e.player.Load(st.VideoId, expected)
	} else if drift := e.player.Position() - expected; drift > e.driftThreshold || drift < -e.driftThreshold {
		e.suppress()
		e.player.SeekTo(expected)
	}

	status := e.player.Status()
	if st.IsPlaying {
		e.endedHandled = false
		if status != StatusPlaying {
			e.suppress()
			e.player.Play()
		}
	} else if status != StatusPaused {
		e.suppress()
		e.player.Pause()
	}
}

// HandleLocalEvent publishes a genuine local player transition outward.
// Events inside the suppression window were caused by our own commands and
// are discarded.
func (e *Engine) HandleLocalEvent(ctx context.Context, ev Event) error {
	e.mu.Lock()
	if e.suppressed() {
		e.mu.Unlock()
		return nil
	}
	e.state = stateIdle
	if ev == EventPlaying {
		e.endedHandled = false
	}
	e.mu.Unlock()

	switch ev {
	case EventPlaying:
		return e.publish(ctx, true, e.player.Position())
	case EventPaused:
		return e.publish(ctx, false, e.player.Position())
	case EventEnded:
		return e.handleEnded(ctx)
	default:
		return fmt.Errorf("unknown player event: %d", ev)
	}
}

func (e *Engine) publish(ctx context.Context, isPlaying bool, position float64) error {
	if err := e.pub.PublishPlayerState(ctx, e.roomId, isPlaying, position); err != nil {
		return fmt.Errorf("failed to publish player state: %w", err)
	}

	return nil
}

// handleEnded advances the queue, or parks the player when nothing is
// pending. Guarded so that the watchdog and the embed event cannot both
// advance for the same end-of-video.
func (e *Engine) handleEnded(ctx context.Context) error {
	e.mu.Lock()
	if e.endedHandled {
		e.mu.Unlock()
		return nil
	}
	e.endedHandled = true
	e.mu.Unlock()

	length, err := e.queue.Length(ctx, e.roomId)
	if err != nil {
		return fmt.Errorf("failed to get queue length: %w", err)
	}

	if length > 0 {
		if err := e.queue.Advance(ctx, e.roomId); err != nil {
			return fmt.Errorf("failed to advance queue: %w", err)
		}

		return nil
	}

	return e.publish(ctx, false, 0)
}

// RunWatchdog polls the embed for a missed ended transition. Some embeds
// silently drop the ended event while backgrounded.
func (e *Engine) RunWatchdog(ctx context.Context) {
	ticker := e.clock.NewTicker(e.watchdogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if e.player.Status() != StatusEnded {
				continue
			}

			if err := e.handleEnded(ctx); err != nil {
				e.logger.WarnContext(ctx, "watchdog failed to handle ended video", "error", err)
			}
		}
	}
}

// Run consumes player-state pushes from the subscription channel until it
// closes.
func (e *Engine) Run(ctx context.Context, updates <-chan *room.PlayerState) {
	for st := range updates {
		e.ApplyRemote(ctx, st)
	}
}
