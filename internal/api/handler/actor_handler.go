package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/fedigraph/internal/resolver"
	"github.com/d60-Lab/fedigraph/pkg/response"
)

// LookupActor 句柄解析（必要时触发联邦解析并建档）
// @Summary 解析账号句柄
// @Tags 账号
// @Param acct query string true "user 或 user@domain"
// @Router /api/v1/actors/lookup [get]
func (h *Handler) LookupActor(c *gin.Context) {
	acct := c.Query("acct")
	if acct == "" {
		response.BadRequest(c, "acct is required")
		return
	}
	actor, err := h.resolver.Resolve(c.Request.Context(), acct)
	if err != nil {
		switch {
		case errors.Is(err, resolver.ErrNotFound):
			response.NotFound(c, "actor not found")
		case errors.Is(err, resolver.ErrResolutionInProgress):
			response.Conflict(c, "resolution in progress, retry later")
		case errors.Is(err, resolver.ErrUnsupportedProtocol), errors.Is(err, resolver.ErrRedirectMismatch):
			response.UnprocessableEntity(c, "could not resolve actor")
		default:
			response.InternalError(c, err)
		}
		return
	}
	response.Success(c, gin.H{
		"id":       actor.ID,
		"acct":     actor.Acct(),
		"protocol": actor.Protocol,
		"inbox":    actor.InboxURI,
	})
}
