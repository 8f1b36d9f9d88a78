package model

import (
	"strings"
	"time"
)

// 帖子可见性
const (
	VisibilityPublic   = "public"
	VisibilityUnlisted = "unlisted"
	VisibilityPrivate  = "private"
	VisibilityDirect   = "direct"
)

// Post 内容主体
type Post struct {
	ID         string `gorm:"primaryKey;type:varchar(36)"`
	AuthorID   string `gorm:"type:varchar(36);index:idx_post_author;not null"`
	Visibility string `gorm:"type:varchar(16);not null;default:'public'"`
	// LocalOnly 为真时不向远端联邦
	LocalOnly bool
	Text      string `gorm:"type:text"`
	HasMedia  bool

	// 回复链引用；InReplyToAuthorID 冗余父帖作者，回复可见性裁剪用
	InReplyToID       *string `gorm:"type:varchar(36);index"`
	InReplyToAuthorID *string `gorm:"type:varchar(36)"`
	ReblogOfID        *string `gorm:"type:varchar(36)"`

	// Tags 逗号分隔的小写标签
	Tags string `gorm:"type:varchar(1024)"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Post) TableName() string { return "posts" }

// IsReply 是否为回复
func (p *Post) IsReply() bool { return p.InReplyToID != nil }

// Federable 是否需要向远端投递
func (p *Post) Federable() bool { return !p.LocalOnly }

// TagList 解析标签列表
func (p *Post) TagList() []string {
	if p.Tags == "" {
		return nil
	}
	parts := strings.Split(p.Tags, ",")
	out := make([]string, 0, len(parts))
	for _, t := range parts {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// Score 时间线排序分值
func (p *Post) Score() float64 { return float64(p.CreatedAt.UnixNano()) }

// Mention 帖子中提及的账号
type Mention struct {
	ID      string `gorm:"primaryKey;type:varchar(36)"`
	PostID  string `gorm:"type:varchar(36);uniqueIndex:ux_mention_post_actor;not null"`
	ActorID string `gorm:"type:varchar(36);uniqueIndex:ux_mention_post_actor;not null"`
	// 复合唯一键，避免重复提及
	CreatedAt time.Time
}

func (Mention) TableName() string { return "mentions" }
