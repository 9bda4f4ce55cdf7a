package models

import (
	"time"
)

// Forum 版块，内容树的根
type Forum struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	OwnerID       uint       `gorm:"not null;index" json:"owner_id"`
	Name          string     `gorm:"not null" json:"name"`
	Description   string     `json:"description"`
	FollowerCount int        `gorm:"default:0" json:"follower_count"`
	PostCount     int        `gorm:"default:0" json:"post_count"`
	IsDeleted     bool       `gorm:"default:false;not null;index:idx_forums_deleted,priority:1" json:"is_deleted"`
	DeletedAt     *time.Time `gorm:"index:idx_forums_deleted,priority:2" json:"deleted_at"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}
