package fanout

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/d60-Lab/fedigraph/internal/delivery"
	"github.com/d60-Lab/fedigraph/internal/model"
	"github.com/d60-Lab/fedigraph/internal/repository"
	"github.com/d60-Lab/fedigraph/internal/timeline"
	"github.com/d60-Lab/fedigraph/pkg/logger"
)

// Distributor 出站投递能力（联邦失败不影响本地发布）
type Distributor interface {
	Distribute(ctx context.Context, act delivery.Activity, from *model.Actor, recipients []*model.Actor, opts delivery.Options)
}

// Engine 扇出引擎：发布/删除/改可见性时，计算全部时间线写入与出站投递
type Engine struct {
	store   *timeline.Store
	actors  repository.ActorRepository
	follows repository.FollowRepository
	fans    repository.FanRepository
	lists   repository.ListRepository
	posts   repository.PostRepository
	dist    Distributor
	ser     delivery.Serializer
	// pageSize 粉丝分页大小
	pageSize int
}

func NewEngine(
	store *timeline.Store,
	actors repository.ActorRepository,
	follows repository.FollowRepository,
	fans repository.FanRepository,
	lists repository.ListRepository,
	posts repository.PostRepository,
	dist Distributor,
	ser delivery.Serializer,
	pageSize int,
) *Engine {
	if pageSize <= 0 {
		pageSize = 500
	}
	return &Engine{
		store: store, actors: actors, follows: follows, fans: fans,
		lists: lists, posts: posts, dist: dist, ser: ser, pageSize: pageSize,
	}
}

// Publish 计算接收者并写入各时间线；作者为本地且帖子可联邦时发起投递。
// 零接收者不是错误；投递/解析失败只降级为日志。
func (e *Engine) Publish(ctx context.Context, post *model.Post) error {
	author, err := e.actors.FindByID(ctx, post.AuthorID)
	if err != nil {
		return err
	}
	mentioned := e.mentionedActors(ctx, post)

	keys, err := e.timelineKeys(ctx, post, author, mentioned)
	if err != nil {
		return err
	}
	var errs []error
	score := post.Score()
	for _, key := range keys {
		if err := e.store.Push(ctx, key, post.ID, score); err != nil {
			errs = append(errs, err)
		}
	}

	if author.IsLocal() && post.Federable() && e.dist != nil && e.ser != nil {
		act, err := e.ser.Create(post, author)
		if err != nil {
			logger.Warn("fanout: serialize create failed", zap.String("post", post.ID), zap.Error(err))
		} else {
			recipients := e.remoteRecipients(ctx, post, author, mentioned)
			e.dist.Distribute(ctx, act, author, recipients, e.distributeOptions(post, author))
		}
	}
	return errors.Join(errs...)
}

// Retract 按 Publish 同样的口径反算并移除，同时向原接收者投递 delete
func (e *Engine) Retract(ctx context.Context, post *model.Post) error {
	author, err := e.actors.FindByID(ctx, post.AuthorID)
	if err != nil {
		return err
	}
	mentioned := e.mentionedActors(ctx, post)

	keys, err := e.timelineKeys(ctx, post, author, mentioned)
	if err != nil {
		return err
	}
	removeErr := e.store.RemoveBulk(ctx, keys, post.ID)

	if author.IsLocal() && post.Federable() && e.dist != nil && e.ser != nil {
		act, err := e.ser.Delete(post, author)
		if err != nil {
			logger.Warn("fanout: serialize delete failed", zap.String("post", post.ID), zap.Error(err))
		} else {
			recipients := e.remoteRecipients(ctx, post, author, mentioned)
			e.dist.Distribute(ctx, act, author, recipients, e.distributeOptions(post, author))
		}
	}
	return removeErr
}

// UpdateVisibility 重算新旧接收者集合，仅写/删差量键
func (e *Engine) UpdateVisibility(ctx context.Context, post *model.Post, newVisibility string) error {
	if post.Visibility == newVisibility {
		return nil
	}
	author, err := e.actors.FindByID(ctx, post.AuthorID)
	if err != nil {
		return err
	}
	mentioned := e.mentionedActors(ctx, post)

	oldKeys, err := e.timelineKeys(ctx, post, author, mentioned)
	if err != nil {
		return err
	}
	after := *post
	after.Visibility = newVisibility
	newKeys, err := e.timelineKeys(ctx, &after, author, mentioned)
	if err != nil {
		return err
	}

	oldSet := toSet(oldKeys)
	newSet := toSet(newKeys)
	var removed []string
	for _, k := range oldKeys {
		if _, ok := newSet[k]; !ok {
			removed = append(removed, k)
		}
	}
	var errs []error
	if err := e.store.RemoveBulk(ctx, removed, post.ID); err != nil {
		errs = append(errs, err)
	}
	score := post.Score()
	for _, k := range newKeys {
		if _, ok := oldSet[k]; ok {
			continue
		}
		if err := e.store.Push(ctx, k, post.ID, score); err != nil {
			errs = append(errs, err)
		}
	}

	if err := e.posts.UpdateVisibility(ctx, post.ID, newVisibility); err != nil {
		errs = append(errs, err)
	}
	post.Visibility = newVisibility

	// 向新可见性口径下的接收者投递 update
	if author.IsLocal() && post.Federable() && e.dist != nil && e.ser != nil {
		act, err := e.ser.Update(post, author)
		if err != nil {
			logger.Warn("fanout: serialize update failed", zap.String("post", post.ID), zap.Error(err))
		} else {
			recipients := e.remoteRecipients(ctx, post, author, mentioned)
			e.dist.Distribute(ctx, act, author, recipients, e.distributeOptions(post, author))
		}
	}
	return errors.Join(errs...)
}

// timelineKeys 计算本地时间线键集合
func (e *Engine) timelineKeys(ctx context.Context, post *model.Post, author *model.Actor, mentioned []*model.Actor) ([]string, error) {
	var keys []string
	if author.IsLocal() {
		keys = append(keys, timeline.HomeKey(author.ID))
	}

	// direct 只进作者与被提及者的时间线
	if post.Visibility != model.VisibilityDirect {
		followerKeys, err := e.followerHomeKeys(ctx, post, author)
		if err != nil {
			return nil, err
		}
		keys = append(keys, followerKeys...)

		listKeys, err := e.listKeys(ctx, post, author)
		if err != nil {
			return nil, err
		}
		keys = append(keys, listKeys...)
	}

	for _, m := range mentioned {
		if m.IsLocal() {
			keys = append(keys, timeline.MentionsKey(m.ID))
		}
	}

	// 公共流仅 public 可见性
	if post.Visibility == model.VisibilityPublic {
		keys = append(keys, timeline.PublicKey(false, false))
		if author.IsLocal() {
			keys = append(keys, timeline.PublicKey(true, false))
		}
		if post.HasMedia {
			keys = append(keys, timeline.PublicKey(false, true))
			if author.IsLocal() {
				keys = append(keys, timeline.PublicKey(true, true))
			}
		}
		for _, tag := range post.TagList() {
			keys = append(keys, timeline.TagKey(tag, false))
			if author.IsLocal() {
				keys = append(keys, timeline.TagKey(tag, true))
			}
		}
	}
	return dedup(keys), nil
}

// followerHomeKeys 分页扫描粉丝并做回复可见性裁剪
func (e *Engine) followerHomeKeys(ctx context.Context, post *model.Post, author *model.Actor) ([]string, error) {
	var keys []string
	offset := 0
	for {
		fans, err := e.fans.ListFans(ctx, author.ID, offset, e.pageSize)
		if err != nil {
			return nil, err
		}
		if len(fans) == 0 {
			break
		}
		ids := make([]string, 0, len(fans))
		for _, f := range fans {
			ids = append(ids, f.FanID)
		}
		followers, err := e.actors.FindByIDs(ctx, ids)
		if err != nil {
			return nil, err
		}
		local := make([]*model.Actor, 0, len(followers))
		for _, f := range followers {
			if f.IsLocal() {
				local = append(local, f)
			}
		}
		local, err = e.filterReplyAudience(ctx, post, author, local)
		if err != nil {
			return nil, err
		}
		for _, f := range local {
			keys = append(keys, timeline.HomeKey(f.ID))
		}
		if len(fans) < e.pageSize {
			break
		}
		offset += e.pageSize
	}
	return keys, nil
}

// listKeys 含作者的分组时间线，组主受同样的回复裁剪约束
func (e *Engine) listKeys(ctx context.Context, post *model.Post, author *model.Actor) ([]string, error) {
	lists, err := e.lists.ListsContainingMember(ctx, author.ID)
	if err != nil {
		return nil, err
	}
	var keys []string
	for _, l := range lists {
		ok, err := e.replyVisibleTo(ctx, post, author, l.OwnerID)
		if err != nil {
			return nil, err
		}
		if ok {
			keys = append(keys, timeline.ListKey(l.ID))
		}
	}
	return keys, nil
}

// remoteRecipients 计算出站接收者：direct 仅被提及者，否则远端粉丝加被提及者
func (e *Engine) remoteRecipients(ctx context.Context, post *model.Post, author *model.Actor, mentioned []*model.Actor) []*model.Actor {
	seen := make(map[string]struct{})
	var out []*model.Actor
	add := func(a *model.Actor) {
		if a == nil || a.IsLocal() {
			return
		}
		if _, dup := seen[a.ID]; dup {
			return
		}
		seen[a.ID] = struct{}{}
		out = append(out, a)
	}

	if post.Visibility != model.VisibilityDirect {
		offset := 0
		for {
			fans, err := e.fans.ListFans(ctx, author.ID, offset, e.pageSize)
			if err != nil {
				logger.Warn("fanout: list fans for delivery failed", zap.Error(err))
				break
			}
			if len(fans) == 0 {
				break
			}
			ids := make([]string, 0, len(fans))
			for _, f := range fans {
				ids = append(ids, f.FanID)
			}
			followers, err := e.actors.FindByIDs(ctx, ids)
			if err != nil {
				logger.Warn("fanout: load followers for delivery failed", zap.Error(err))
				break
			}
			for _, f := range followers {
				add(f)
			}
			if len(fans) < e.pageSize {
				break
			}
			offset += e.pageSize
		}
	}
	for _, m := range mentioned {
		add(m)
	}
	return out
}

// distributeOptions 仅公开帖、作者未被禁言、且非回复他人时走共享收件箱广播
func (e *Engine) distributeOptions(post *model.Post, author *model.Actor) delivery.Options {
	broadcast := post.Visibility == model.VisibilityPublic && !author.Silenced
	if broadcast && post.IsReply() && post.InReplyToAuthorID != nil && *post.InReplyToAuthorID != author.ID {
		broadcast = false
	}
	return delivery.Options{PreferSharedInbox: broadcast}
}

// mentionedActors 加载被提及账号；失败降级为"未建立提及"而非中断发布
func (e *Engine) mentionedActors(ctx context.Context, post *model.Post) []*model.Actor {
	ids, err := e.posts.MentionedActorIDs(ctx, post.ID)
	if err != nil {
		logger.Warn("fanout: load mentions failed", zap.String("post", post.ID), zap.Error(err))
		return nil
	}
	actors, err := e.actors.FindByIDs(ctx, ids)
	if err != nil {
		logger.Warn("fanout: load mentioned actors failed", zap.String("post", post.ID), zap.Error(err))
		return nil
	}
	return actors
}

func toSet(keys []string) map[string]struct{} {
	s := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		s[k] = struct{}{}
	}
	return s
}

func dedup(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := keys[:0]
	for _, k := range keys {
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
