package testutils

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"zhulink-cascade/internal/models"
	"zhulink-cascade/internal/store"
)

// MemoryStore 内存版 store.Store，语义与 GormStore 保持一致，并记录每个原语的调用次数
type MemoryStore struct {
	mu       sync.Mutex
	nextID   uint
	forums   map[uint]*models.Forum
	posts    map[uint]*models.Post
	comments map[uint]*models.Comment
	votes    map[uint]*models.Vote

	calls  map[string]int
	failOn map[string]error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		forums:   make(map[uint]*models.Forum),
		posts:    make(map[uint]*models.Post),
		comments: make(map[uint]*models.Comment),
		votes:    make(map[uint]*models.Vote),
		calls:    make(map[string]int),
		failOn:   make(map[string]error),
	}
}

// Calls 返回 method:kind 的调用次数，例如 Calls("SoftDelete", models.KindComment)
func (m *MemoryStore) Calls(method string, kind models.Kind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method+":"+string(kind)]
}

func (m *MemoryStore) ResetCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = make(map[string]int)
}

// FailOn 让 method:kind 之后的调用都返回 err，传 nil 取消
func (m *MemoryStore) FailOn(method string, kind models.Kind, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := method + ":" + string(kind)
	if err == nil {
		delete(m.failOn, key)
		return
	}
	m.failOn[key] = err
}

// enter 记录调用并返回注入的错误，调用方需持有锁
func (m *MemoryStore) enter(method string, kind models.Kind) error {
	key := method + ":" + string(kind)
	m.calls[key]++
	if err := m.failOn[key]; err != nil {
		return err
	}
	if !kind.Valid() {
		return fmt.Errorf("%w: %q", models.ErrUnknownKind, kind)
	}
	return nil
}

// ========== 测试数据 ==========

func (m *MemoryStore) AddForum(ownerID uint) *models.Forum {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	f := &models.Forum{ID: m.nextID, OwnerID: ownerID, Name: fmt.Sprintf("forum-%d", m.nextID), CreatedAt: time.Now()}
	m.forums[f.ID] = f
	return f
}

// AddPost 与业务服务一样递增版块的 post_count
func (m *MemoryStore) AddPost(forumID, ownerID uint) *models.Post {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	p := &models.Post{ID: m.nextID, ForumID: forumID, OwnerID: ownerID, Title: fmt.Sprintf("post-%d", m.nextID), CreatedAt: time.Now()}
	m.posts[p.ID] = p
	if f, ok := m.forums[forumID]; ok {
		f.PostCount++
	}
	return p
}

// AddComment parentID 为 0 表示顶级评论；递增帖子的 comment_count 和父评论的 number_of_replies
func (m *MemoryStore) AddComment(postID, parentID, ownerID uint) *models.Comment {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	c := &models.Comment{ID: m.nextID, PostID: postID, OwnerID: ownerID, Content: "comment", CreatedAt: time.Now()}
	if parentID != 0 {
		pid := parentID
		c.ParentID = &pid
		if parent, ok := m.comments[parentID]; ok {
			c.Depth = parent.Depth + 1
			parent.NumberOfReplies++
		}
	}
	m.comments[c.ID] = c
	if p, ok := m.posts[postID]; ok {
		p.CommentCount++
	}
	return c
}

func (m *MemoryStore) AddVote(userID, targetID uint, isPost bool, voteType int) *models.Vote {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	v := &models.Vote{ID: m.nextID, UserID: userID, TargetID: targetID, IsPost: isPost, VoteType: voteType, CreatedAt: time.Now()}
	m.votes[v.ID] = v
	return v
}

// MarkDeleted 直接把某行标记为已删除，deletedAt 用于构造清理边界
func (m *MemoryStore) MarkDeleted(kind models.Kind, id uint, deletedAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.row(kind, id); ok {
		*r.isDeleted = true
		at := deletedAt
		*r.deletedAt = &at
	}
}

// SetCommentCount 直接写帖子计数，用于构造初始状态
func (m *MemoryStore) SetCommentCount(postID uint, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.posts[postID]; ok {
		p.CommentCount = n
	}
}

// ========== 快照读取 ==========

func (m *MemoryStore) Forum(id uint) (models.Forum, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.forums[id]
	if !ok {
		return models.Forum{}, false
	}
	return *f, true
}

func (m *MemoryStore) Post(id uint) (models.Post, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.posts[id]
	if !ok {
		return models.Post{}, false
	}
	return *p, true
}

func (m *MemoryStore) Comment(id uint) (models.Comment, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.comments[id]
	if !ok {
		return models.Comment{}, false
	}
	return *c, true
}

func (m *MemoryStore) Vote(id uint) (models.Vote, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.votes[id]
	if !ok {
		return models.Vote{}, false
	}
	return *v, true
}

// IsDeleted 行不存在时返回 false
func (m *MemoryStore) IsDeleted(kind models.Kind, id uint) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.row(kind, id)
	return ok && *r.isDeleted
}

func (m *MemoryStore) Exists(kind models.Kind, id uint) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.row(kind, id)
	return ok
}

// ========== 行视图 ==========

type rowView struct {
	id        uint
	owner     uint
	forumID   *uint
	postID    *uint
	parentID  *uint
	targetID  *uint
	isPost    *bool
	isDeleted *bool
	deletedAt **time.Time
}

func (m *MemoryStore) row(kind models.Kind, id uint) (rowView, bool) {
	switch kind {
	case models.KindForum:
		if f, ok := m.forums[id]; ok {
			return rowView{id: f.ID, owner: f.OwnerID, isDeleted: &f.IsDeleted, deletedAt: &f.DeletedAt}, true
		}
	case models.KindPost:
		if p, ok := m.posts[id]; ok {
			return rowView{id: p.ID, owner: p.OwnerID, forumID: &p.ForumID, isDeleted: &p.IsDeleted, deletedAt: &p.DeletedAt}, true
		}
	case models.KindComment:
		if c, ok := m.comments[id]; ok {
			return rowView{id: c.ID, owner: c.OwnerID, postID: &c.PostID, parentID: c.ParentID,
				isDeleted: &c.IsDeleted, deletedAt: &c.DeletedAt}, true
		}
	case models.KindVote:
		if v, ok := m.votes[id]; ok {
			return rowView{id: v.ID, owner: v.UserID, targetID: &v.TargetID, isPost: &v.IsPost,
				isDeleted: &v.IsDeleted, deletedAt: &v.DeletedAt}, true
		}
	}
	return rowView{}, false
}

func (m *MemoryStore) idsOf(kind models.Kind) []uint {
	var ids []uint
	switch kind {
	case models.KindForum:
		for id := range m.forums {
			ids = append(ids, id)
		}
	case models.KindPost:
		for id := range m.posts {
			ids = append(ids, id)
		}
	case models.KindComment:
		for id := range m.comments {
			ids = append(ids, id)
		}
	case models.KindVote:
		for id := range m.votes {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func matches(r rowView, f store.Filter) bool {
	if f.IDs != nil && !slices.Contains(f.IDs, r.id) {
		return false
	}
	if f.ForumIDs != nil && (r.forumID == nil || !slices.Contains(f.ForumIDs, *r.forumID)) {
		return false
	}
	if f.PostIDs != nil && (r.postID == nil || !slices.Contains(f.PostIDs, *r.postID)) {
		return false
	}
	if f.ParentIDs != nil && (r.parentID == nil || !slices.Contains(f.ParentIDs, *r.parentID)) {
		return false
	}
	if f.TargetIDs != nil && (r.targetID == nil || !slices.Contains(f.TargetIDs, *r.targetID)) {
		return false
	}
	if f.IsPost != nil && (r.isPost == nil || *r.isPost != *f.IsPost) {
		return false
	}
	if f.OnlyLive && *r.isDeleted {
		return false
	}
	if f.OnlyDeleted && !*r.isDeleted {
		return false
	}
	if f.DeletedBefore != nil && (*r.deletedAt == nil || !(*r.deletedAt).Before(*f.DeletedBefore)) {
		return false
	}
	return true
}

func (m *MemoryStore) matching(kind models.Kind, f store.Filter) []rowView {
	var rows []rowView
	for _, id := range m.idsOf(kind) {
		r, _ := m.row(kind, id)
		if matches(r, f) {
			rows = append(rows, r)
		}
	}
	return rows
}

// ========== store.Store ==========

func (m *MemoryStore) Ref(ctx context.Context, kind models.Kind, id uint) (models.Ref, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ref := models.Ref{Kind: kind, ID: id}
	if err := m.enter("Ref", kind); err != nil {
		return ref, err
	}
	r, ok := m.row(kind, id)
	if !ok {
		return ref, store.ErrNotFound
	}
	ref.OwnerID = r.owner
	ref.IsDeleted = *r.isDeleted
	if r.forumID != nil {
		ref.ForumID = *r.forumID
	}
	if r.postID != nil {
		ref.PostID = *r.postID
	}
	if r.parentID != nil {
		pid := *r.parentID
		ref.ParentID = &pid
	}
	if r.targetID != nil {
		ref.TargetID = *r.targetID
		ref.IsPost = *r.isPost
	}
	return ref, nil
}

func (m *MemoryStore) OwnerOf(ctx context.Context, kind models.Kind, id uint) (uint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("OwnerOf", kind); err != nil {
		return 0, err
	}
	r, ok := m.row(kind, id)
	if !ok {
		return 0, store.ErrNotFound
	}
	return r.owner, nil
}

func (m *MemoryStore) IDs(ctx context.Context, kind models.Kind, f store.Filter, afterID uint, limit int) ([]uint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("IDs", kind); err != nil {
		return nil, err
	}
	var ids []uint
	for _, r := range m.matching(kind, f) {
		if r.id <= afterID {
			continue
		}
		ids = append(ids, r.id)
		if len(ids) == limit {
			break
		}
	}
	return ids, nil
}

func (m *MemoryStore) Count(ctx context.Context, kind models.Kind, f store.Filter) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("Count", kind); err != nil {
		return 0, err
	}
	return int64(len(m.matching(kind, f))), nil
}

func (m *MemoryStore) CountBy(ctx context.Context, kind models.Kind, f store.Filter, column string) (map[uint]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("CountBy", kind); err != nil {
		return nil, err
	}
	if err := store.CheckGroupColumn(kind, column); err != nil {
		return nil, err
	}
	counts := make(map[uint]int64)
	for _, r := range m.matching(kind, f) {
		var key *uint
		switch column {
		case "forum_id":
			key = r.forumID
		case "post_id":
			key = r.postID
		case "parent_id":
			key = r.parentID
		case "target_id":
			key = r.targetID
		}
		if key != nil {
			counts[*key]++
		}
	}
	return counts, nil
}

func (m *MemoryStore) SoftDelete(ctx context.Context, kind models.Kind, f store.Filter, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("SoftDelete", kind); err != nil {
		return 0, err
	}
	f.OnlyLive = true
	f.OnlyDeleted = false
	var n int64
	for _, r := range m.matching(kind, f) {
		*r.isDeleted = true
		t := at
		*r.deletedAt = &t
		n++
	}
	return n, nil
}

func (m *MemoryStore) HardDelete(ctx context.Context, kind models.Kind, f store.Filter) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("HardDelete", kind); err != nil {
		return 0, err
	}
	var n int64
	for _, r := range m.matching(kind, f) {
		switch kind {
		case models.KindForum:
			delete(m.forums, r.id)
		case models.KindPost:
			delete(m.posts, r.id)
		case models.KindComment:
			delete(m.comments, r.id)
		case models.KindVote:
			delete(m.votes, r.id)
		}
		n++
	}
	return n, nil
}

// CommentSubtreeIDs 逐层广度优先展开，与递归 CTE 的深度语义一致
func (m *MemoryStore) CommentSubtreeIDs(ctx context.Context, rootID uint, maxDepth int) ([]uint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("CommentSubtreeIDs", models.KindComment); err != nil {
		return nil, err
	}
	if _, ok := m.comments[rootID]; !ok {
		return nil, nil
	}

	children := make(map[uint][]uint)
	for _, id := range m.idsOf(models.KindComment) {
		c := m.comments[id]
		if c.ParentID != nil {
			children[*c.ParentID] = append(children[*c.ParentID], c.ID)
		}
	}

	ids := []uint{rootID}
	frontier := []uint{rootID}
	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		var next []uint
		for _, id := range frontier {
			next = append(next, children[id]...)
		}
		ids = append(ids, next...)
		frontier = next
	}
	return ids, nil
}

func (m *MemoryStore) counter(kind models.Kind, id uint, column string) (*int, error) {
	if err := store.CheckCounterColumn(kind, column); err != nil {
		return nil, err
	}
	switch kind {
	case models.KindForum:
		if f, ok := m.forums[id]; ok {
			if column == store.ColPostCount {
				return &f.PostCount, nil
			}
			return &f.FollowerCount, nil
		}
	case models.KindPost:
		if p, ok := m.posts[id]; ok {
			return &p.CommentCount, nil
		}
	case models.KindComment:
		if c, ok := m.comments[id]; ok {
			return &c.NumberOfReplies, nil
		}
	}
	// 与 UPDATE ... WHERE id = ? 一致：行不存在不是错误
	return nil, nil
}

func (m *MemoryStore) AdjustCounter(ctx context.Context, kind models.Kind, id uint, column string, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("AdjustCounter", kind); err != nil {
		return err
	}
	c, err := m.counter(kind, id, column)
	if err != nil || c == nil {
		return err
	}
	*c += delta
	return nil
}

func (m *MemoryStore) SetCounter(ctx context.Context, kind models.Kind, id uint, column string, value int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("SetCounter", kind); err != nil {
		return err
	}
	c, err := m.counter(kind, id, column)
	if err != nil || c == nil {
		return err
	}
	*c = value
	return nil
}

var _ store.Store = (*MemoryStore)(nil)
