package delivery

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/d60-Lab/fedigraph/internal/model"
)

// Activity is an outbound federation payload. ID is stable across delivery
// attempts so receivers can deduplicate (at-least-once with idempotent
// payload identity).
type Activity struct {
	ID   string
	Type string
	Body []byte
}

// Serializer turns domain objects into transport payloads. Exact JSON-LD or
// Atom shapes are a collaborator concern; the engine only requires this
// capability.
type Serializer interface {
	Create(post *model.Post, author *model.Actor) (Activity, error)
	Delete(post *model.Post, author *model.Actor) (Activity, error)
	Update(post *model.Post, author *model.Actor) (Activity, error)
}

// JSONSerializer 默认序列化实现：最小可用的 ActivityStreams JSON
type JSONSerializer struct {
	domain string
}

func NewJSONSerializer(domain string) *JSONSerializer { return &JSONSerializer{domain: domain} }

func (s *JSONSerializer) activityID(kind string, post *model.Post) string {
	// 以帖子 ID 派生，保证重试时活动 ID 不变
	return fmt.Sprintf("https://%s/activities/%s/%s", s.domain, kind, post.ID)
}

func (s *JSONSerializer) actorURI(author *model.Actor) string {
	if author.ActorURI != "" {
		return author.ActorURI
	}
	return fmt.Sprintf("https://%s/users/%s", s.domain, author.Username)
}

func (s *JSONSerializer) build(kind string, post *model.Post, author *model.Actor, object any) (Activity, error) {
	id := s.activityID(kind, post)
	body, err := json.Marshal(map[string]any{
		"@context":  "https://www.w3.org/ns/activitystreams",
		"id":        id,
		"type":      kind,
		"actor":     s.actorURI(author),
		"published": post.CreatedAt.UTC().Format(time.RFC3339),
		"object":    object,
	})
	if err != nil {
		return Activity{}, err
	}
	return Activity{ID: id, Type: kind, Body: body}, nil
}

func (s *JSONSerializer) Create(post *model.Post, author *model.Actor) (Activity, error) {
	return s.build("Create", post, author, map[string]any{
		"id":      fmt.Sprintf("https://%s/posts/%s", s.domain, post.ID),
		"type":    "Note",
		"content": post.Text,
	})
}

func (s *JSONSerializer) Delete(post *model.Post, author *model.Actor) (Activity, error) {
	return s.build("Delete", post, author, fmt.Sprintf("https://%s/posts/%s", s.domain, post.ID))
}

func (s *JSONSerializer) Update(post *model.Post, author *model.Actor) (Activity, error) {
	return s.build("Update", post, author, map[string]any{
		"id":      fmt.Sprintf("https://%s/posts/%s", s.domain, post.ID),
		"type":    "Note",
		"content": post.Text,
	})
}
