package models

import (
	"errors"
	"fmt"
)

var ErrUnknownKind = errors.New("unknown content kind")

// Kind 内容类型，与四张表一一对应
type Kind string

const (
	KindForum   Kind = "forum"
	KindPost    Kind = "post"
	KindComment Kind = "comment"
	KindVote    Kind = "vote"
)

// AllKinds 按 forum → vote 的层级顺序，清理任务按此顺序依次执行
var AllKinds = []Kind{KindForum, KindPost, KindComment, KindVote}

// ParseKind 解析路由参数或命令行参数，接受单复数形式
func ParseKind(s string) (Kind, error) {
	switch s {
	case "forum", "forums":
		return KindForum, nil
	case "post", "posts":
		return KindPost, nil
	case "comment", "comments":
		return KindComment, nil
	case "vote", "votes":
		return KindVote, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Table 返回对应的表名
func (k Kind) Table() string {
	switch k {
	case KindForum:
		return "forums"
	case KindPost:
		return "posts"
	case KindComment:
		return "comments"
	case KindVote:
		return "votes"
	}
	return ""
}

// OwnerColumn 所有者字段，投票的所有者是投票人
func (k Kind) OwnerColumn() string {
	if k == KindVote {
		return "user_id"
	}
	return "owner_id"
}

// Model 返回用于 gorm Model() 的空结构体指针
func (k Kind) Model() interface{} {
	switch k {
	case KindForum:
		return &Forum{}
	case KindPost:
		return &Post{}
	case KindComment:
		return &Comment{}
	case KindVote:
		return &Vote{}
	}
	return nil
}

func (k Kind) Valid() bool {
	return k.Table() != ""
}

// Ref 权限判断所需的最小投影，不加载正文等大字段
type Ref struct {
	Kind      Kind  `json:"kind"`
	ID        uint  `json:"id"`
	OwnerID   uint  `json:"owner_id"`
	ForumID   uint  `json:"forum_id,omitempty"`  // post
	PostID    uint  `json:"post_id,omitempty"`   // comment
	ParentID  *uint `json:"parent_id,omitempty"` // comment
	TargetID  uint  `json:"target_id,omitempty"` // vote
	IsPost    bool  `json:"is_post,omitempty"`   // vote
	IsDeleted bool  `json:"is_deleted"`
}
