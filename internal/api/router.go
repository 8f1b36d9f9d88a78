package api

import (
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/fedigraph/internal/api/handler"
)

// NewRouter 组装路由与中间件
func NewRouter(mode string, h *handler.Handler) *gin.Engine {
	gin.SetMode(mode)
	r := gin.New()
	r.Use(AccessLog(), Recovery(), gzip.Gzip(gzip.DefaultCompression))

	v1 := r.Group("/api/v1")
	{
		v1.POST("/statuses", h.PublishStatus)
		v1.DELETE("/statuses/:id", h.DeleteStatus)
		v1.PATCH("/statuses/:id/visibility", h.UpdateStatusVisibility)

		v1.POST("/relations/follow", h.Follow)
		v1.POST("/relations/unfollow", h.Unfollow)
		v1.GET("/relations/:actor_id/following", h.ListFollowing)
		v1.GET("/relations/:actor_id/fans", h.ListFans)

		v1.GET("/timelines/home/:actor_id", h.HomeTimeline)
		v1.GET("/timelines/mentions/:actor_id", h.MentionsTimeline)
		v1.GET("/timelines/public", h.PublicTimeline)
		v1.GET("/timelines/tag/:tag", h.TagTimeline)

		v1.GET("/actors/lookup", h.LookupActor)
	}
	return r
}
