package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/fedigraph/internal/model"
)

// ActorRepository 账号目录：本地与远端 Actor 的持久化
type ActorRepository interface {
	Create(ctx context.Context, actor *model.Actor) error
	// Upsert 按 (username, domain) 冲突时更新解析得到的字段
	Upsert(ctx context.Context, actor *model.Actor) error
	FindByID(ctx context.Context, id string) (*model.Actor, error)
	FindByIDs(ctx context.Context, ids []string) ([]*model.Actor, error)
	// FindByAcct 未命中时返回 (nil, nil)
	FindByAcct(ctx context.Context, username, domain string) (*model.Actor, error)
	// Touch 刷新 last_resolved_at
	Touch(ctx context.Context, id string, at time.Time) error
}

type actorRepository struct{ db *gorm.DB }

func NewActorRepository(db *gorm.DB) ActorRepository { return &actorRepository{db: db} }

func (r *actorRepository) Create(ctx context.Context, actor *model.Actor) error {
	if actor.ID == "" {
		actor.ID = uuid.New().String()
	}
	return r.db.WithContext(ctx).Create(actor).Error
}

func (r *actorRepository) Upsert(ctx context.Context, actor *model.Actor) error {
	if actor.ID == "" {
		actor.ID = uuid.New().String()
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "username"}, {Name: "domain"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"protocol", "actor_uri", "inbox_uri", "shared_inbox_uri",
			"public_key_pem", "display_name", "last_resolved_at", "updated_at",
		}),
	}).Create(actor).Error
}

func (r *actorRepository) FindByID(ctx context.Context, id string) (*model.Actor, error) {
	var a model.Actor
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *actorRepository) FindByIDs(ctx context.Context, ids []string) ([]*model.Actor, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var res []*model.Actor
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&res).Error
	return res, err
}

func (r *actorRepository) FindByAcct(ctx context.Context, username, domain string) (*model.Actor, error) {
	var a model.Actor
	err := r.db.WithContext(ctx).
		Where("username = ? AND domain = ?", username, domain).
		First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *actorRepository) Touch(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&model.Actor{}).
		Where("id = ?", id).
		Update("last_resolved_at", at).Error
}
