package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/fedigraph/internal/model"
)

// PostRepository 帖子与提及的持久化
type PostRepository interface {
	Create(ctx context.Context, post *model.Post, mentionedIDs []string) error
	Delete(ctx context.Context, id string) error
	FindByID(ctx context.Context, id string) (*model.Post, error)
	UpdateVisibility(ctx context.Context, id, visibility string) error
	// MentionedActorIDs 返回帖子提及的账号 ID
	MentionedActorIDs(ctx context.Context, postID string) ([]string, error)
}

type postRepository struct{ db *gorm.DB }

func NewPostRepository(db *gorm.DB) PostRepository { return &postRepository{db: db} }

// Create 在一个事务内落地帖子与提及
func (r *postRepository) Create(ctx context.Context, post *model.Post, mentionedIDs []string) error {
	if post.ID == "" {
		post.ID = uuid.New().String()
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(post).Error; err != nil {
			return err
		}
		for _, actorID := range mentionedIDs {
			m := &model.Mention{ID: uuid.New().String(), PostID: post.ID, ActorID: actorID}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(m).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *postRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("post_id = ?", id).Delete(&model.Mention{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&model.Post{}).Error
	})
}

func (r *postRepository) FindByID(ctx context.Context, id string) (*model.Post, error) {
	var p model.Post
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *postRepository) UpdateVisibility(ctx context.Context, id, visibility string) error {
	return r.db.WithContext(ctx).Model(&model.Post{}).
		Where("id = ?", id).
		Update("visibility", visibility).Error
}

func (r *postRepository) MentionedActorIDs(ctx context.Context, postID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&model.Mention{}).
		Select("actor_id").
		Where("post_id = ?", postID).
		Scan(&ids).Error
	return ids, err
}
