package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/d60-Lab/fedigraph/config"
	"github.com/d60-Lab/fedigraph/internal/fanout"
	"github.com/d60-Lab/fedigraph/internal/model"
	"github.com/d60-Lab/fedigraph/internal/repository"
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

func pct(vs []time.Duration, p float64) time.Duration {
	if len(vs) == 0 {
		return 0
	}
	xs := append([]time.Duration(nil), vs...)
	sort.Slice(xs, func(i, j int) bool { return xs[i] < xs[j] })
	k := int(math.Ceil(p*float64(len(xs)))) - 1
	if k < 0 {
		k = 0
	}
	if k >= len(xs) {
		k = len(xs) - 1
	}
	return xs[k]
}

func main() {
	cfg := must(config.Load())
	_ = logger.Init(cfg.Server.Mode)
	db := must(database.InitDB(cfg))
	must(struct{}{}, database.Migrate(db))
	rdb := must(pkgredis.InitRedis(cfg))

	actorRepo := repository.NewActorRepository(db)
	followRepo := repository.NewFollowRepository(db)
	fanRepo := repository.NewFanRepository(db)
	listRepo := repository.NewListRepository(db)
	postRepo := repository.NewPostRepository(db)
	store := timeline.NewStore(rdb, cfg.Timeline.MaxItems)

	// 本地扇出基准：不接投递器
	engine := fanout.NewEngine(store, actorRepo, followRepo, fanRepo, listRepo, postRepo, nil, nil, 500)

	// params
	N := 20000 // number of local fans for the author
	POSTS := 100
	if s := os.Getenv("N"); s != "" {
		if v, e := strconv.Atoi(s); e == nil && v > 0 {
			N = v
		}
	}
	if s := os.Getenv("POSTS"); s != "" {
		if v, e := strconv.Atoi(s); e == nil && v > 0 {
			POSTS = v
		}
	}

	ctx := context.Background()

	// clean tables for a reproducible run (ok for local bench)
	_ = db.Exec("DELETE FROM fans").Error
	_ = db.Exec("DELETE FROM follows").Error
	_ = db.Exec("DELETE FROM posts").Error
	_ = db.Exec("DELETE FROM actors").Error
	_ = rdb.FlushDB(ctx).Err()

	// seed one author and N local fans
	author := &model.Actor{ID: "author0", Username: "author0", Protocol: model.ProtocolLocal}
	_ = actorRepo.Create(ctx, author)
	fans := make([]string, N)
	for i := 0; i < N; i++ {
		id := uuid.New().String()
		fans[i] = id
		_ = actorRepo.Create(ctx, &model.Actor{ID: id, Username: "u" + id[:8], Protocol: model.ProtocolLocal})
	}
	for i := 0; i < N; i++ {
		_ = followRepo.Create(ctx, fans[i], author.ID)
	}
	for i := 0; i < N; i++ {
		_ = fanRepo.Create(ctx, author.ID, fans[i])
	}

	// publish POSTS and measure synchronous fanout latency
	durations := make([]time.Duration, 0, POSTS)
	for i := 0; i < POSTS; i++ {
		post := &model.Post{
			AuthorID:   author.ID,
			Visibility: model.VisibilityPublic,
			Text:       fmt.Sprintf("hello %d", i),
			CreatedAt:  time.Now(),
		}
		_ = postRepo.Create(ctx, post, nil)
		st := time.Now()
		if err := engine.Publish(ctx, post); err != nil {
			panic(err)
		}
		durations = append(durations, time.Since(st))
	}

	var sum time.Duration
	for _, d := range durations { sum += d }
	fmt.Printf("N=%d POSTS=%d MAX_ITEMS=%d\n", N, POSTS, cfg.Timeline.MaxItems)
	fmt.Printf("Publish fanout latency: avg=%v p95=%v p99=%v\n", sum/time.Duration(len(durations)), pct(durations, 0.95), pct(durations, 0.99))

	// one fan's timeline read
	st := time.Now()
	ids := must(store.Latest(ctx, timeline.HomeKey(fans[0]), 50))
	fmt.Printf("Timeline read (fan0, limit=50): %v, rows=%d\n", time.Since(st), len(ids))
}
