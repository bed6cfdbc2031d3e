// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/oichokabu/internal/auth"
	"github.com/jason-s-yu/oichokabu/internal/cache"
	"github.com/jason-s-yu/oichokabu/internal/config"
	"github.com/jason-s-yu/oichokabu/internal/database"
	"github.com/jason-s-yu/oichokabu/internal/events"
	"github.com/jason-s-yu/oichokabu/internal/handlers"
	"github.com/jason-s-yu/oichokabu/internal/middleware"
	"github.com/jason-s-yu/oichokabu/internal/models"
	"github.com/jason-s-yu/oichokabu/internal/room"
	_ "github.com/joho/godotenv/autoload"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("invalid configuration: %v", err)
	}
	logger := cfg.NewLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatalf("server exited: %v", err)
	}
}

func run(ctx context.Context, cfg config.Config, logger *logrus.Logger) error {
	ttl, _ := cfg.TokenTTL()
	if cfg.JWTPrivateKeyPath != "" {
		if err := auth.InitFromPath(cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath, ttl); err != nil {
			return err
		}
	} else if err := auth.Init(ttl); err != nil {
		return err
	}

	hub := handlers.NewHub(logger)
	publishers := events.Multi{hub}

	var (
		store room.Store
		rdb   *redis.Client
	)
	switch cfg.Store {
	case config.StoreRedis:
		var err error
		rdb, err = cache.ConnectRedis(cfg.Redis)
		if err != nil {
			return err
		}
		defer rdb.Close()
		store = room.NewRedisStore(rdb, cfg.RoomTTL)
		publishers = append(publishers, cache.NewRoundQueue(rdb, cfg.Historian.QueueName))
		logger.Infof("using redis room store at %s", cfg.Redis.Addr)
	default:
		store = room.NewMemoryStore()
		logger.Info("using in-memory room store")
	}

	var notifier *events.NATSNotifier
	if cfg.NATS.URL != "" {
		var err error
		notifier, err = events.ConnectNATS(cfg.NATS.URL, cfg.NATS.SubjectPrefix, logger)
		if err != nil {
			return err
		}
		defer notifier.Close()
		publishers = append(publishers, notifier)
	}

	reg := room.NewRegistry(store, publishers, logger)
	gs := handlers.NewGameServer(reg, hub, logger)
	gs.AllowedOrigins = cfg.AllowedOrigins

	if cfg.Postgres.Enabled() {
		pool, err := database.ConnectDB(ctx, cfg.Postgres)
		if err != nil {
			logger.WithError(err).Warn("round history disabled")
		} else {
			defer pool.Close()
			gs.History = func(ctx context.Context, playerID uuid.UUID, limit int) ([]models.PlayerRoundHistory, error) {
				return database.PlayerHistory(ctx, pool, playerID, limit)
			}
		}
	}

	if notifier != nil {
		err := notifier.Subscribe(func(n events.Notice) {
			refreshCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			hub.Refresh(refreshCtx, n, reg.Get)
		})
		if err != nil {
			return err
		}
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           newMux(logger, gs),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("Running on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func newMux(logger *logrus.Logger, gs *handlers.GameServer) *http.ServeMux {
	mux := http.NewServeMux()
	logged := middleware.LogMiddleware(logger)
	handle := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, logged(h))
	}

	// room endpoints
	handle("/room/create", handlers.CreateRoomHandler(logger, gs))
	handle("/room/join", handlers.JoinRoomHandler(logger, gs))
	handle("/room/leave", handlers.LeaveRoomHandler(logger, gs))
	handle("/room/status", handlers.RoomStatusHandler(logger, gs))

	// game endpoints
	handle("/game/start", handlers.StartGameHandler(logger, gs))
	handle("/game/bet", handlers.PlaceBetHandler(logger, gs))
	handle("/game/action", handlers.GameActionHandler(logger, gs))
	handle("/game/next", handlers.NextRoundHandler(logger, gs))
	handle("/game/reset", handlers.ResetStatsHandler(logger, gs))

	handle("/history", handlers.HistoryHandler(logger, gs))

	// room websocket
	handle("/room/ws/", handlers.RoomWSHandler(logger, gs))
	return mux
}
