package models

import (
	"time"
)

// MaxCommentDepth 评论树遍历的最大深度
const MaxCommentDepth = 100

type Comment struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	PostID          uint       `gorm:"not null;index" json:"post_id"`
	ParentID        *uint      `gorm:"index" json:"parent_id"` // Nullable for top-level comments
	OwnerID         uint       `gorm:"not null;index" json:"owner_id"`
	Content         string     `gorm:"type:text;not null" json:"content"`
	Depth           int        `gorm:"default:0" json:"depth"` // parent.Depth + 1
	NumberOfReplies int        `gorm:"default:0" json:"number_of_replies"`
	UpvoteCount     int        `gorm:"default:0" json:"upvote_count"`
	DownvoteCount   int        `gorm:"default:0" json:"downvote_count"`
	IsDeleted       bool       `gorm:"default:false;not null;index:idx_comments_deleted,priority:1" json:"is_deleted"`
	DeletedAt       *time.Time `gorm:"index:idx_comments_deleted,priority:2" json:"deleted_at"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}
