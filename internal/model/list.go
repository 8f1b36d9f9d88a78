package model

import "time"

// List 用户自建的关注分组，拥有独立时间线
type List struct {
	ID      string `gorm:"primaryKey;type:varchar(36)"`
	OwnerID string `gorm:"type:varchar(36);index:idx_list_owner;not null"`
	Title   string `gorm:"type:varchar(255)"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (List) TableName() string { return "lists" }

// ListMember 分组成员
type ListMember struct {
	ID      string `gorm:"primaryKey;type:varchar(36)"`
	ListID  string `gorm:"type:varchar(36);uniqueIndex:ux_list_member;not null"`
	ActorID string `gorm:"type:varchar(36);uniqueIndex:ux_list_member;not null"`
	// 复合唯一键，同一账号在组内只出现一次
	CreatedAt time.Time
}

func (ListMember) TableName() string { return "list_members" }
