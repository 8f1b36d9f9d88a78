package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/d60-Lab/fedigraph/internal/model"
	"github.com/d60-Lab/fedigraph/internal/repository"
)

// stubResolver 按句柄返回预置账号
type stubResolver struct{ byHandle map[string]*model.Actor }

func (s *stubResolver) Resolve(ctx context.Context, handle string) (*model.Actor, error) {
	if a, ok := s.byHandle[handle]; ok {
		return a, nil
	}
	return nil, fmt.Errorf("resolve %s: not found", handle)
}

func newServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.Actor{}, &model.Follow{}, &model.Fan{}))
	return db
}

func TestFollowAndUnfollow(t *testing.T) {
	db := newServiceDB(t)
	followRepo := repository.NewFollowRepository(db)
	fanRepo := repository.NewFanRepository(db)
	target := &model.Actor{ID: "t1", Username: "bob", Domain: "remote.example", Protocol: model.ProtocolActivityPub}
	res := &stubResolver{byHandle: map[string]*model.Actor{"bob@remote.example": target}}

	replicator := NewFanReplicator(fanRepo, 100)
	stop := replicator.Start(1)
	t.Cleanup(func() { _ = stop(context.Background()) })

	svc := NewRelationshipService(followRepo, fanRepo, res, replicator)
	ctx := context.Background()

	got, err := svc.Follow(ctx, "me", "bob@remote.example")
	require.NoError(t, err)
	assert.Equal(t, target.ID, got.ID)

	ok, err := followRepo.Exists(ctx, "me", target.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	// fan 冗余由后台复制器落地
	assert.Eventually(t, func() bool {
		n, _ := fanRepo.CountFans(ctx, target.ID)
		return n == 1
	}, 2*time.Second, 10*time.Millisecond)

	// 重复关注幂等
	_, err = svc.Follow(ctx, "me", "bob@remote.example")
	require.NoError(t, err)
	following, err := svc.ListFollowing(ctx, "me", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{target.ID}, following)

	require.NoError(t, svc.Unfollow(ctx, "me", target.ID))
	ok, err = followRepo.Exists(ctx, "me", target.ID)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Eventually(t, func() bool {
		n, _ := fanRepo.CountFans(ctx, target.ID)
		return n == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestFollowSelfRejected(t *testing.T) {
	db := newServiceDB(t)
	me := &model.Actor{ID: "me", Username: "alice", Protocol: model.ProtocolLocal}
	res := &stubResolver{byHandle: map[string]*model.Actor{"alice": me}}
	svc := NewRelationshipService(repository.NewFollowRepository(db), repository.NewFanRepository(db), res, nil)

	_, err := svc.Follow(context.Background(), "me", "alice")
	assert.ErrorIs(t, err, ErrFollowSelf)
}

func TestFollowUnresolvableTarget(t *testing.T) {
	db := newServiceDB(t)
	svc := NewRelationshipService(repository.NewFollowRepository(db), repository.NewFanRepository(db), &stubResolver{}, nil)

	_, err := svc.Follow(context.Background(), "me", "ghost@nowhere.example")
	assert.Error(t, err)
}

func TestListFansPagination(t *testing.T) {
	db := newServiceDB(t)
	followRepo := repository.NewFollowRepository(db)
	fanRepo := repository.NewFanRepository(db)
	svc := NewRelationshipService(followRepo, fanRepo, &stubResolver{}, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, fanRepo.Create(ctx, "star", fmt.Sprintf("fan%d", i)))
	}
	page1, err := svc.ListFans(ctx, "star", 1, 3)
	require.NoError(t, err)
	page2, err := svc.ListFans(ctx, "star", 2, 3)
	require.NoError(t, err)
	assert.Len(t, page1, 3)
	assert.Len(t, page2, 2)
	assert.NotSubset(t, page1, page2)
}
