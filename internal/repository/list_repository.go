package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/fedigraph/internal/model"
)

// ListRepository 关注分组的持久化
type ListRepository interface {
	Create(ctx context.Context, ownerID, title string) (*model.List, error)
	AddMember(ctx context.Context, listID, actorID string) error
	RemoveMember(ctx context.Context, listID, actorID string) error
	// ListsContainingMember 返回包含该账号的所有分组（含 owner 信息）
	ListsContainingMember(ctx context.Context, actorID string) ([]*model.List, error)
}

type listRepository struct{ db *gorm.DB }

func NewListRepository(db *gorm.DB) ListRepository { return &listRepository{db: db} }

func (r *listRepository) Create(ctx context.Context, ownerID, title string) (*model.List, error) {
	l := &model.List{ID: uuid.New().String(), OwnerID: ownerID, Title: title}
	if err := r.db.WithContext(ctx).Create(l).Error; err != nil {
		return nil, err
	}
	return l, nil
}

func (r *listRepository) AddMember(ctx context.Context, listID, actorID string) error {
	m := &model.ListMember{ID: uuid.New().String(), ListID: listID, ActorID: actorID}
	// 幂等：重复加入不报错
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(m).Error
}

func (r *listRepository) RemoveMember(ctx context.Context, listID, actorID string) error {
	return r.db.WithContext(ctx).
		Where("list_id = ? AND actor_id = ?", listID, actorID).
		Delete(&model.ListMember{}).Error
}

func (r *listRepository) ListsContainingMember(ctx context.Context, actorID string) ([]*model.List, error) {
	var res []*model.List
	err := r.db.WithContext(ctx).
		Model(&model.List{}).
		Joins("JOIN list_members ON list_members.list_id = lists.id").
		Where("list_members.actor_id = ?", actorID).
		Find(&res).Error
	return res, err
}
