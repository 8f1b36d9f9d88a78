package model

import "time"

// 联邦协议类型
const (
	ProtocolLocal       = "local"
	ProtocolActivityPub = "activitypub"
	ProtocolOStatus     = "ostatus"
)

// Actor 本地或远端账号身份；(username, domain) 全局唯一
type Actor struct {
	ID       string `gorm:"primaryKey;type:varchar(36)"`
	Username string `gorm:"type:varchar(255);index:idx_actor_acct,unique;not null"`
	// Domain 为空表示本地账号
	Domain   string `gorm:"type:varchar(255);index:idx_actor_acct,unique;not null;default:''"`
	Protocol string `gorm:"type:varchar(16);not null"`

	ActorURI       string `gorm:"type:varchar(512)"`
	InboxURI       string `gorm:"type:varchar(512)"`
	SharedInboxURI string `gorm:"type:varchar(512)"`
	PublicKeyPEM   string `gorm:"type:text"`
	// PrivateKeyPEM 仅本地账号持有，用于出站签名
	PrivateKeyPEM string `gorm:"type:text"`
	DisplayName   string `gorm:"type:varchar(255)"`
	Silenced      bool

	// LastResolvedAt 上次从源站刷新的时间，驱动过期重解析
	LastResolvedAt time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (Actor) TableName() string { return "actors" }

// IsLocal 是否本地账号
func (a *Actor) IsLocal() bool { return a.Domain == "" }

// Acct 渲染 user 或 user@domain 形式的句柄
func (a *Actor) Acct() string {
	if a.IsLocal() {
		return a.Username
	}
	return a.Username + "@" + a.Domain
}

// DeliveryInbox 投递入口：优先共享收件箱
func (a *Actor) DeliveryInbox(preferShared bool) string {
	if preferShared && a.SharedInboxURI != "" {
		return a.SharedInboxURI
	}
	return a.InboxURI
}

// Stale 距上次解析超过 horizon 即视为过期
func (a *Actor) Stale(horizon time.Duration) bool {
	return time.Since(a.LastResolvedAt) > horizon
}
