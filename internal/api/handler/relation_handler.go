package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/fedigraph/internal/resolver"
	"github.com/d60-Lab/fedigraph/internal/service"
	"github.com/d60-Lab/fedigraph/pkg/response"
)

type followRequest struct {
	FromActorID string `json:"from_actor_id" binding:"required"`
	// TargetHandle user 或 user@domain，远端先走联邦解析
	TargetHandle string `json:"target_handle" binding:"required"`
}

// Follow 建立关注（异步写粉丝表）
// @Summary 关注账号
// @Tags 关系链
// @Accept json
// @Produce json
// @Router /api/v1/relations/follow [post]
func (h *Handler) Follow(c *gin.Context) {
	var req followRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	target, err := h.relSvc.Follow(c.Request.Context(), req.FromActorID, req.TargetHandle)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrFollowSelf):
			response.BadRequest(c, err.Error())
		case errors.Is(err, resolver.ErrNotFound):
			response.NotFound(c, "target not found")
		case errors.Is(err, resolver.ErrResolutionInProgress):
			response.Conflict(c, "resolution in progress, retry later")
		case errors.Is(err, resolver.ErrUnsupportedProtocol), errors.Is(err, resolver.ErrRedirectMismatch):
			response.UnprocessableEntity(c, "could not resolve target")
		default:
			response.InternalError(c, err)
		}
		return
	}
	response.Success(c, gin.H{"target_id": target.ID, "acct": target.Acct()})
}

type unfollowRequest struct {
	FromActorID string `json:"from_actor_id" binding:"required"`
	TargetID    string `json:"target_id" binding:"required"`
}

// Unfollow 取消关注
// @Summary 取消关注
// @Tags 关系链
// @Router /api/v1/relations/unfollow [post]
func (h *Handler) Unfollow(c *gin.Context) {
	var req unfollowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := h.relSvc.Unfollow(c.Request.Context(), req.FromActorID, req.TargetID); err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, nil)
}

// ListFollowing 查询某账号关注的人
// @Summary 查询关注列表
// @Tags 关系链
// @Router /api/v1/relations/{actor_id}/following [get]
func (h *Handler) ListFollowing(c *gin.Context) {
	actorID := c.Param("actor_id")
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))
	list, err := h.relSvc.ListFollowing(c.Request.Context(), actorID, page, pageSize)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, gin.H{"page": page, "page_size": pageSize, "list": list})
}

// ListFans 查询某账号的粉丝（来自冗余表）
// @Summary 查询粉丝列表
// @Tags 关系链
// @Router /api/v1/relations/{actor_id}/fans [get]
func (h *Handler) ListFans(c *gin.Context) {
	actorID := c.Param("actor_id")
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))
	list, err := h.relSvc.ListFans(c.Request.Context(), actorID, page, pageSize)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, gin.H{"page": page, "page_size": pageSize, "list": list})
}
