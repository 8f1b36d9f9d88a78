package service

import (
	"context"
	"errors"

	"github.com/d60-Lab/fedigraph/internal/model"
	"github.com/d60-Lab/fedigraph/internal/repository"
)

var (
	ErrFollowSelf = errors.New("cannot follow self")
)

// HandleResolver 句柄到账号的解析能力（远端目标先走联邦解析）
type HandleResolver interface {
	Resolve(ctx context.Context, handle string) (*model.Actor, error)
}

// RelationshipService 关系链服务
type RelationshipService interface {
	// Follow 关注目标句柄（user 或 user@domain），远端目标先解析建档
	Follow(ctx context.Context, fromID, targetHandle string) (*model.Actor, error)
	Unfollow(ctx context.Context, fromID, targetID string) error
	ListFollowing(ctx context.Context, actorID string, page, pageSize int) ([]string, error)
	ListFans(ctx context.Context, actorID string, page, pageSize int) ([]string, error)
}

type relationshipService struct {
	followRepo repository.FollowRepository
	fanRepo    repository.FanRepository
	resolver   HandleResolver
	replicator *FanReplicator
}

func NewRelationshipService(followRepo repository.FollowRepository, fanRepo repository.FanRepository, resolver HandleResolver, replicator *FanReplicator) RelationshipService {
	return &relationshipService{followRepo: followRepo, fanRepo: fanRepo, resolver: resolver, replicator: replicator}
}

func (s *relationshipService) Follow(ctx context.Context, fromID, targetHandle string) (*model.Actor, error) {
	target, err := s.resolver.Resolve(ctx, targetHandle)
	if err != nil {
		return nil, err
	}
	if fromID == target.ID {
		return nil, ErrFollowSelf
	}
	if err := s.followRepo.Create(ctx, fromID, target.ID); err != nil {
		return nil, err
	}
	if s.replicator != nil {
		s.replicator.EnqueueAdd(target.ID, fromID)
	}
	return target, nil
}

func (s *relationshipService) Unfollow(ctx context.Context, fromID, targetID string) error {
	if err := s.followRepo.Delete(ctx, fromID, targetID); err != nil {
		return err
	}
	if s.replicator != nil {
		s.replicator.EnqueueRemove(targetID, fromID)
	}
	return nil
}

func (s *relationshipService) ListFollowing(ctx context.Context, actorID string, page, pageSize int) ([]string, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}
	offset := (page - 1) * pageSize
	items, err := s.followRepo.ListFollowings(ctx, actorID, offset, pageSize)
	if err != nil {
		return nil, err
	}
	res := make([]string, len(items))
	for i, it := range items {
		res[i] = it.FolloweeID
	}
	return res, nil
}

func (s *relationshipService) ListFans(ctx context.Context, actorID string, page, pageSize int) ([]string, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}
	offset := (page - 1) * pageSize
	items, err := s.fanRepo.ListFans(ctx, actorID, offset, pageSize)
	if err != nil {
		return nil, err
	}
	res := make([]string, len(items))
	for i, it := range items {
		res[i] = it.FanID
	}
	return res, nil
}
