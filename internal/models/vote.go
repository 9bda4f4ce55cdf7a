package models

import (
	"time"
)

// Vote 对帖子或评论的投票，叶子节点
// TargetID 指向 Post 还是 Comment 由 IsPost 决定
type Vote struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	UserID    uint       `gorm:"not null;index" json:"user_id"`
	TargetID  uint       `gorm:"not null;index:idx_votes_target,priority:1" json:"target_id"`
	IsPost    bool       `gorm:"not null;index:idx_votes_target,priority:2" json:"is_post"`
	VoteType  int        `gorm:"not null" json:"vote_type"` // 1 or -1
	IsDeleted bool       `gorm:"default:false;not null;index:idx_votes_deleted,priority:1" json:"is_deleted"`
	DeletedAt *time.Time `gorm:"index:idx_votes_deleted,priority:2" json:"deleted_at"`
	CreatedAt time.Time  `json:"created_at"`
}
