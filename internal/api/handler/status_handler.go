package handler

import (
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/d60-Lab/fedigraph/internal/model"
	"github.com/d60-Lab/fedigraph/pkg/logger"
	"github.com/d60-Lab/fedigraph/pkg/response"
)

type publishRequest struct {
	AuthorID   string   `json:"author_id" binding:"required"`
	Text       string   `json:"text" binding:"required"`
	Visibility string   `json:"visibility" binding:"omitempty,oneof=public unlisted private direct"`
	LocalOnly  bool     `json:"local_only"`
	HasMedia   bool     `json:"has_media"`
	Tags       []string `json:"tags"`
	// Mentions 句柄列表（user 或 user@domain）
	Mentions    []string `json:"mentions"`
	InReplyToID string   `json:"in_reply_to_id"`
}

// PublishStatus 发布帖子并触发扇出
// @Summary 发布帖子
// @Tags 帖子
// @Accept json
// @Produce json
// @Router /api/v1/statuses [post]
func (h *Handler) PublishStatus(c *gin.Context) {
	var req publishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	ctx := c.Request.Context()

	visibility := req.Visibility
	if visibility == "" {
		visibility = model.VisibilityPublic
	}

	post := &model.Post{
		AuthorID:   req.AuthorID,
		Visibility: visibility,
		LocalOnly:  req.LocalOnly,
		Text:       req.Text,
		HasMedia:   req.HasMedia,
		Tags:       strings.ToLower(strings.Join(req.Tags, ",")),
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}

	if req.InReplyToID != "" {
		parent, err := h.posts.FindByID(ctx, req.InReplyToID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				response.BadRequest(c, "parent post not found")
				return
			}
			response.InternalError(c, err)
			return
		}
		post.InReplyToID = &parent.ID
		post.InReplyToAuthorID = &parent.AuthorID
	}

	// 提及解析失败只丢弃该提及，不中断发布
	var mentionIDs []string
	for _, handle := range req.Mentions {
		actor, err := h.resolver.Resolve(ctx, handle)
		if err != nil {
			logger.Warn("publish: mention unresolvable, skip",
				zap.String("handle", handle), zap.Error(err))
			continue
		}
		mentionIDs = append(mentionIDs, actor.ID)
	}

	if err := h.posts.Create(ctx, post, mentionIDs); err != nil {
		response.InternalError(c, err)
		return
	}
	if err := h.engine.Publish(ctx, post); err != nil {
		// 本地写入失败不回滚帖子，仅上报
		logger.Error("publish: fanout incomplete", zap.String("post", post.ID), zap.Error(err))
	}
	response.Success(c, gin.H{"id": post.ID})
}

// DeleteStatus 删除帖子并反算撤回
// @Summary 删除帖子
// @Tags 帖子
// @Router /api/v1/statuses/{id} [delete]
func (h *Handler) DeleteStatus(c *gin.Context) {
	ctx := c.Request.Context()
	post, err := h.posts.FindByID(ctx, c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.NotFound(c, "post not found")
			return
		}
		response.InternalError(c, err)
		return
	}
	if err := h.engine.Retract(ctx, post); err != nil {
		logger.Error("delete: retract incomplete", zap.String("post", post.ID), zap.Error(err))
	}
	if err := h.posts.Delete(ctx, post.ID); err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, nil)
}

type visibilityRequest struct {
	Visibility string `json:"visibility" binding:"required,oneof=public unlisted private direct"`
}

// UpdateStatusVisibility 修改可见性，仅写差量时间线
// @Summary 修改帖子可见性
// @Tags 帖子
// @Router /api/v1/statuses/{id}/visibility [patch]
func (h *Handler) UpdateStatusVisibility(c *gin.Context) {
	var req visibilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	ctx := c.Request.Context()
	post, err := h.posts.FindByID(ctx, c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.NotFound(c, "post not found")
			return
		}
		response.InternalError(c, err)
		return
	}
	if err := h.engine.UpdateVisibility(ctx, post, req.Visibility); err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, nil)
}
