package testutils

import (
	"fmt"
	"time"

	"zhulink-cascade/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CreateTestForum 创建版块，名称带 uuid 避免冲突
func CreateTestForum(gdb *gorm.DB, ownerID uint, opts ...ForumOption) *models.Forum {
	f := &models.Forum{
		OwnerID:   ownerID,
		Name:      fmt.Sprintf("test_forum_%s", uuid.New().String()),
		CreatedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if err := gdb.Create(f).Error; err != nil {
		panic(fmt.Sprintf("Failed to create test forum: %v", err))
	}
	return f
}

type ForumOption func(*models.Forum)

func WithPostCount(n int) ForumOption {
	return func(f *models.Forum) {
		f.PostCount = n
	}
}

func CreateTestPost(gdb *gorm.DB, forumID, ownerID uint, opts ...PostOption) *models.Post {
	p := &models.Post{
		ForumID:   forumID,
		OwnerID:   ownerID,
		Title:     fmt.Sprintf("test_post_%s", uuid.New().String()),
		Content:   "content",
		CreatedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if err := gdb.Create(p).Error; err != nil {
		panic(fmt.Sprintf("Failed to create test post: %v", err))
	}
	return p
}

type PostOption func(*models.Post)

func WithCommentCount(n int) PostOption {
	return func(p *models.Post) {
		p.CommentCount = n
	}
}

// CreateTestComment parent 为 nil 时创建顶级评论
func CreateTestComment(gdb *gorm.DB, postID uint, parent *models.Comment, ownerID uint, opts ...CommentOption) *models.Comment {
	c := &models.Comment{
		PostID:    postID,
		OwnerID:   ownerID,
		Content:   "comment",
		CreatedAt: time.Now(),
	}
	if parent != nil {
		pid := parent.ID
		c.ParentID = &pid
		c.Depth = parent.Depth + 1
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := gdb.Create(c).Error; err != nil {
		panic(fmt.Sprintf("Failed to create test comment: %v", err))
	}
	return c
}

type CommentOption func(*models.Comment)

// WithDeletedComment 创建时即为已删除状态
func WithDeletedComment(at time.Time) CommentOption {
	return func(c *models.Comment) {
		c.IsDeleted = true
		c.DeletedAt = &at
	}
}

func CreateTestVote(gdb *gorm.DB, userID, targetID uint, isPost bool) *models.Vote {
	v := &models.Vote{
		UserID:    userID,
		TargetID:  targetID,
		IsPost:    isPost,
		VoteType:  1,
		CreatedAt: time.Now(),
	}
	if err := gdb.Create(v).Error; err != nil {
		panic(fmt.Sprintf("Failed to create test vote: %v", err))
	}
	return v
}
