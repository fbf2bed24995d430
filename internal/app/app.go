package app

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/syncwatch/server/internal/controller"
	"github.com/syncwatch/server/internal/queue"
	"github.com/syncwatch/server/internal/relay"
	"github.com/syncwatch/server/internal/room"
	"github.com/syncwatch/server/internal/store"
	redisstore "github.com/syncwatch/server/internal/store/redis"
	"github.com/syncwatch/server/internal/timesync"
	"github.com/syncwatch/server/pkg/ctxlogger"
	"github.com/syncwatch/server/pkg/redisclient"
	"github.com/syncwatch/server/pkg/ytvideodata"
)

type AppConfig struct {
	Host          string `json:"host"`
	Port          int    `json:"port"`
	LogLevel      string `json:"log_level"`
	RedisHost     string `json:"redis_host"`
	RedisPort     int    `json:"redis_port"`
	RedisPassword string `json:"-"`
	YoutubeAPIKey string `json:"-"`
}

func (cfg *AppConfig) Validate() error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(cfg.LogLevel))); err != nil {
		return fmt.Errorf("invalid log level %q", cfg.LogLevel)
	}

	return nil
}

func Run(ctx context.Context, cfg *AppConfig) error {
	logLevel := slog.LevelInfo
	if err := logLevel.UnmarshalText([]byte(strings.ToUpper(cfg.LogLevel))); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}

	h := ctxlogger.ContextHandler{
		Handler: slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level:     logLevel,
			AddSource: true,
		}),
	}
	logger := slog.New(&h)

	clock := clockwork.NewRealClock()

	// the shared document store is the single source of truth. Without redis
	// configured the process still serves, but in a degraded local-only mode
	// where nothing persists and subscriptions never fire.
	var st store.Store
	if cfg.RedisHost != "" {
		rc, err := redisclient.NewRedisClient(&redisclient.Config{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			return fmt.Errorf("failed to create redis client: %w", err)
		}
		defer rc.Close()

		rs := redisstore.NewStore(rc, clock, logger)
		go rs.RunClock(ctx)
		st = rs
	} else {
		logger.WarnContext(ctx, "no redis host configured, running without persistence: state will not be shared or survive restarts")
		st = store.NewNoop()
	}

	state := room.NewStateStore(st)

	estimator := timesync.NewEstimator(st, clock, logger)
	go estimator.Run(ctx)

	videoClient := ytvideodata.NewClient(cfg.YoutubeAPIKey)
	coordinator := queue.NewCoordinator(state, videoClient, estimator, logger)

	ctrl := controller.NewController(coordinator, state, videoClient, relay.New(logger), estimator, logger)
	server := &http.Server{Addr: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port), Handler: ctrl.GetMux()}

	// graceful shutdown
	serverCtx, serverStopCtx := context.WithCancel(ctx)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		<-sig

		shutdownCtx, c := context.WithTimeout(serverCtx, 30*time.Second)
		defer c()

		go func() {
			<-shutdownCtx.Done()
			if shutdownCtx.Err() == context.DeadlineExceeded {
				log.Fatal("graceful shutdown timed out.. forcing exit.")
			}
		}()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Fatal(err)
		}
		serverStopCtx()
	}()

	logger.InfoContext(serverCtx, "starting server", "address", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	<-serverCtx.Done()

	return nil
}
