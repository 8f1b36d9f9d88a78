package handler

import (
	"github.com/d60-Lab/fedigraph/internal/fanout"
	"github.com/d60-Lab/fedigraph/internal/repository"
	"github.com/d60-Lab/fedigraph/internal/service"
	"github.com/d60-Lab/fedigraph/internal/timeline"
)

// Handler 聚合各业务入口
type Handler struct {
	engine   *fanout.Engine
	posts    repository.PostRepository
	actors   repository.ActorRepository
	relSvc   service.RelationshipService
	resolver service.HandleResolver
	store    *timeline.Store
}

func New(
	engine *fanout.Engine,
	posts repository.PostRepository,
	actors repository.ActorRepository,
	relSvc service.RelationshipService,
	resolver service.HandleResolver,
	store *timeline.Store,
) *Handler {
	return &Handler{
		engine: engine, posts: posts, actors: actors,
		relSvc: relSvc, resolver: resolver, store: store,
	}
}
