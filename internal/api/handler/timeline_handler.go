package handler

import (
	"math"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/fedigraph/internal/timeline"
	"github.com/d60-Lab/fedigraph/pkg/response"
)

// HomeTimeline 读取 home 时间线（按分值倒序）
// @Summary 读取 home 时间线
// @Tags 时间线
// @Router /api/v1/timelines/home/{actor_id} [get]
func (h *Handler) HomeTimeline(c *gin.Context) {
	h.readTimeline(c, timeline.HomeKey(c.Param("actor_id")))
}

// MentionsTimeline 读取提及时间线
// @Summary 读取提及时间线
// @Tags 时间线
// @Router /api/v1/timelines/mentions/{actor_id} [get]
func (h *Handler) MentionsTimeline(c *gin.Context) {
	h.readTimeline(c, timeline.MentionsKey(c.Param("actor_id")))
}

// PublicTimeline 读取公共时间线
// @Summary 读取公共时间线
// @Tags 时间线
// @Router /api/v1/timelines/public [get]
func (h *Handler) PublicTimeline(c *gin.Context) {
	local := c.Query("local") == "true"
	media := c.Query("media") == "true"
	h.readTimeline(c, timeline.PublicKey(local, media))
}

// TagTimeline 读取标签时间线
// @Summary 读取标签时间线
// @Tags 时间线
// @Router /api/v1/timelines/tag/{tag} [get]
func (h *Handler) TagTimeline(c *gin.Context) {
	local := c.Query("local") == "true"
	h.readTimeline(c, timeline.TagKey(c.Param("tag"), local))
}

func (h *Handler) readTimeline(c *gin.Context, key string) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "40"))
	maxScore := math.MaxFloat64
	if s := c.Query("max_score"); s != "" {
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			maxScore = v
		}
	}
	ids, err := h.store.Range(c.Request.Context(), key, maxScore, 0, limit)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, gin.H{"post_ids": ids})
}
