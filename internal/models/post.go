package models

import (
	"time"
)

type Post struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	ForumID       uint       `gorm:"not null;index" json:"forum_id"`
	OwnerID       uint       `gorm:"not null;index" json:"owner_id"`
	Title         string     `gorm:"not null" json:"title"`
	Content       string     `gorm:"type:text" json:"content"`
	CommentCount  int        `gorm:"default:0" json:"comment_count"`
	UpvoteCount   int        `gorm:"default:0" json:"upvote_count"`
	DownvoteCount int        `gorm:"default:0" json:"downvote_count"`
	Score         int        `gorm:"default:0" json:"score"`
	IsDeleted     bool       `gorm:"default:false;not null;index:idx_posts_deleted,priority:1" json:"is_deleted"`
	DeletedAt     *time.Time `gorm:"index:idx_posts_deleted,priority:2" json:"deleted_at"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}
