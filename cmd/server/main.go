package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"

	"github.com/d60-Lab/fedigraph/config"
	"github.com/d60-Lab/fedigraph/internal/api"
	"github.com/d60-Lab/fedigraph/internal/api/handler"
	"github.com/d60-Lab/fedigraph/internal/delivery"
	"github.com/d60-Lab/fedigraph/internal/fanout"
	"github.com/d60-Lab/fedigraph/internal/repository"
	"github.com/d60-Lab/fedigraph/internal/resolver"
	"github.com/d60-Lab/fedigraph/internal/service"
	"github.com/d60-Lab/fedigraph/internal/timeline"
	"github.com/d60-Lab/fedigraph/pkg/database"
	"github.com/d60-Lab/fedigraph/pkg/logger"
	pkgredis "github.com/d60-Lab/fedigraph/pkg/redis"
)

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func main() {
	cfg := must(config.Load())
	if err := logger.Init(cfg.Server.Mode); err != nil {
		panic(err)
	}
	defer logger.Sync()

	if cfg.Sentry.DSN != "" {
		must(struct{}{}, sentry.Init(sentry.ClientOptions{Dsn: cfg.Sentry.DSN}))
		defer sentry.Flush(2 * time.Second)
	}

	db := must(database.InitDB(cfg))
	must(struct{}{}, database.Migrate(db))
	rdb := must(pkgredis.InitRedis(cfg))

	// repositories
	actorRepo := repository.NewActorRepository(db)
	followRepo := repository.NewFollowRepository(db)
	fanRepo := repository.NewFanRepository(db)
	listRepo := repository.NewListRepository(db)
	postRepo := repository.NewPostRepository(db)

	// federation core
	store := timeline.NewStore(rdb, cfg.Timeline.MaxItems)
	res := resolver.New(actorRepo, rdb, cfg.Resolver, cfg.Server.Domain)
	pool := delivery.NewPool(cfg.Delivery, actorRepo, res, delivery.DefaultSigners())
	stopPool := pool.Start()
	dispatcher := delivery.NewDispatcher(pool)
	serializer := delivery.NewJSONSerializer(cfg.Server.Domain)
	engine := fanout.NewEngine(store, actorRepo, followRepo, fanRepo, listRepo, postRepo, dispatcher, serializer, 500)

	// relationship upkeep
	replicator := service.NewFanReplicator(fanRepo, 100000)
	stopReplicator := replicator.Start(8)
	relSvc := service.NewRelationshipService(followRepo, fanRepo, res, replicator)

	h := handler.New(engine, postRepo, actorRepo, relSvc, res, store)
	router := api.NewRouter(cfg.Server.Mode, h)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}
	go func() {
		logger.Info("server listening", zap.Int("port", cfg.Server.Port), zap.String("domain", cfg.Server.Domain))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server exited", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	_ = stopPool(ctx)
	_ = stopReplicator(ctx)
}
