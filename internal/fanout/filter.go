package fanout

import (
	"context"

	"github.com/d60-Lab/fedigraph/internal/model"
)

// filterReplyAudience 回复可见性裁剪：回复他人的帖子只推给
// 父帖作者本人、或关注了父帖作者的粉丝；回复自己不裁剪。
func (e *Engine) filterReplyAudience(ctx context.Context, post *model.Post, author *model.Actor, candidates []*model.Actor) ([]*model.Actor, error) {
	if !post.IsReply() || post.InReplyToAuthorID == nil || *post.InReplyToAuthorID == author.ID {
		return candidates, nil
	}
	parentAuthor := *post.InReplyToAuthorID

	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.ID)
	}
	followerIDs, err := e.follows.FollowersOf(ctx, parentAuthor, ids)
	if err != nil {
		return nil, err
	}
	allowed := make(map[string]struct{}, len(followerIDs)+1)
	for _, id := range followerIDs {
		allowed[id] = struct{}{}
	}
	allowed[parentAuthor] = struct{}{}

	out := candidates[:0]
	for _, c := range candidates {
		if _, ok := allowed[c.ID]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// replyVisibleTo 单个观察者（如组主）视角的回复可见性
func (e *Engine) replyVisibleTo(ctx context.Context, post *model.Post, author *model.Actor, viewerID string) (bool, error) {
	if !post.IsReply() || post.InReplyToAuthorID == nil || *post.InReplyToAuthorID == author.ID {
		return true, nil
	}
	parentAuthor := *post.InReplyToAuthorID
	if viewerID == parentAuthor {
		return true, nil
	}
	return e.follows.Exists(ctx, viewerID, parentAuthor)
}
