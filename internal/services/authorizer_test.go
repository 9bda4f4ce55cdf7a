package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"zhulink-cascade/internal/models"
	"zhulink-cascade/internal/testutils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	forumOwner   uint = 1
	postOwner    uint = 2
	commentOwner uint = 3
	replyOwner   uint = 4
	voter        uint = 5
	stranger     uint = 6
)

type tree struct {
	forum   *models.Forum
	post    *models.Post
	comment *models.Comment
	reply   *models.Comment
	vote    *models.Vote
}

func buildTree(s *testutils.MemoryStore) tree {
	f := s.AddForum(forumOwner)
	p := s.AddPost(f.ID, postOwner)
	c := s.AddComment(p.ID, 0, commentOwner)
	r := s.AddComment(p.ID, c.ID, replyOwner)
	v := s.AddVote(voter, r.ID, false, 1)
	return tree{forum: f, post: p, comment: c, reply: r, vote: v}
}

func TestAuthorizer_Check(t *testing.T) {
	env := newTestEnv(t)
	tr := buildTree(env.store)
	ctx := context.Background()

	tests := []struct {
		name     string
		user     uint
		kind     models.Kind
		id       uint
		decision Decision
		grant    Grant
	}{
		{"forum owner deletes forum", forumOwner, models.KindForum, tr.forum.ID, Allowed, GrantOwner},
		{"post owner cannot delete forum", postOwner, models.KindForum, tr.forum.ID, Forbidden, GrantNone},
		{"post owner deletes post", postOwner, models.KindPost, tr.post.ID, Allowed, GrantOwner},
		{"forum owner deletes post", forumOwner, models.KindPost, tr.post.ID, Allowed, GrantForumOwner},
		{"stranger cannot delete post", stranger, models.KindPost, tr.post.ID, Forbidden, GrantNone},
		{"comment owner deletes comment", commentOwner, models.KindComment, tr.comment.ID, Allowed, GrantOwner},
		{"post owner deletes comment", postOwner, models.KindComment, tr.reply.ID, Allowed, GrantPostOwner},
		{"forum owner deletes comment", forumOwner, models.KindComment, tr.reply.ID, Allowed, GrantForumOwner},
		{"parent comment owner cannot delete reply", commentOwner, models.KindComment, tr.reply.ID, Forbidden, GrantNone},
		{"voter deletes vote", voter, models.KindVote, tr.vote.ID, Allowed, GrantOwner},
		{"forum owner cannot delete vote", forumOwner, models.KindVote, tr.vote.ID, Forbidden, GrantNone},
		{"reply owner cannot delete vote on reply", replyOwner, models.KindVote, tr.vote.ID, Forbidden, GrantNone},
		{"missing forum", forumOwner, models.KindForum, 9999, NotFound, GrantNone},
		{"missing vote", voter, models.KindVote, 9999, NotFound, GrantNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := env.auth.Check(ctx, tt.user, tt.kind, tt.id)
			require.NoError(t, err)
			assert.Equal(t, tt.decision, v.Decision)
			assert.Equal(t, tt.grant, v.Grant)

			ok, err := env.auth.CanDelete(ctx, tt.user, tt.kind, tt.id)
			require.NoError(t, err)
			assert.Equal(t, tt.decision == Allowed, ok)
		})
	}
}

func TestAuthorizer_AlreadyDeletedIsRejected(t *testing.T) {
	env := newTestEnv(t)
	tr := buildTree(env.store)
	ctx := context.Background()

	env.store.MarkDeleted(models.KindComment, tr.comment.ID, time.Now())
	v, err := env.auth.Check(ctx, commentOwner, models.KindComment, tr.comment.ID)
	require.NoError(t, err)
	assert.Equal(t, AlreadyDeleted, v.Decision)

	ok, err := env.auth.CanDelete(ctx, forumOwner, models.KindComment, tr.comment.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAuthorizer_DeletedForumStillGrants(t *testing.T) {
	env := newTestEnv(t)
	tr := buildTree(env.store)

	// 版块只需要存在，删除标记不影响版主对帖子的权限
	env.store.MarkDeleted(models.KindForum, tr.forum.ID, time.Now())
	ok, err := env.auth.CanDelete(context.Background(), forumOwner, models.KindPost, tr.post.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAuthorizer_MissingAncestorGrantsNothing(t *testing.T) {
	env := newTestEnv(t)
	s := env.store
	orphan := s.AddPost(4242, postOwner)

	v, err := env.auth.Check(context.Background(), forumOwner, models.KindPost, orphan.ID)
	require.NoError(t, err)
	assert.Equal(t, Forbidden, v.Decision)

	v, err = env.auth.Check(context.Background(), postOwner, models.KindPost, orphan.ID)
	require.NoError(t, err)
	assert.Equal(t, Allowed, v.Decision)
}

// 对任意用户，评论的删除权只来自评论作者、帖子作者或版主
func TestAuthorizer_CommentMonotonicity(t *testing.T) {
	env := newTestEnv(t)
	tr := buildTree(env.store)
	ctx := context.Background()

	for user := uint(0); user <= 10; user++ {
		for _, c := range []*models.Comment{tr.comment, tr.reply} {
			ok, err := env.auth.CanDelete(ctx, user, models.KindComment, c.ID)
			require.NoError(t, err)
			if ok {
				assert.True(t, user == c.OwnerID || user == tr.post.OwnerID || user == tr.forum.OwnerID,
					"user %d must not be able to delete comment %d", user, c.ID)
			}
		}
	}
}

func TestAuthorizer_StoreFailureIsAnError(t *testing.T) {
	env := newTestEnv(t)
	tr := buildTree(env.store)
	boom := errors.New("connection refused")

	env.store.FailOn("Ref", models.KindComment, boom)
	_, err := env.auth.CanDelete(context.Background(), commentOwner, models.KindComment, tr.comment.ID)
	assert.ErrorIs(t, err, boom)

	env.store.FailOn("Ref", models.KindComment, nil)
	env.store.FailOn("Ref", models.KindPost, boom)
	_, err = env.auth.Check(context.Background(), stranger, models.KindComment, tr.comment.ID)
	assert.ErrorIs(t, err, boom)
}

func TestAuthorizer_UnknownKind(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.auth.Check(context.Background(), 1, models.Kind("thread"), 1)
	assert.ErrorIs(t, err, models.ErrUnknownKind)
}

func TestOwnershipResolver_AncestorCache(t *testing.T) {
	s := testutils.NewMemoryStore()
	tr := buildTree(s)
	resolver, err := NewOwnershipResolver(s, 10, time.Minute)
	require.NoError(t, err)
	auth := NewAuthorizer(resolver)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := auth.CanDelete(ctx, forumOwner, models.KindComment, tr.reply.ID)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	// 评论本身每次都重新读取，帖子和版块只读一次
	assert.Equal(t, 3, s.Calls("Ref", models.KindComment))
	assert.Equal(t, 1, s.Calls("Ref", models.KindPost))
	assert.Equal(t, 1, s.Calls("Ref", models.KindForum))

	resolver.Forget(models.KindPost, tr.post.ID)
	_, err = resolver.Ancestor(ctx, models.KindPost, tr.post.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Calls("Ref", models.KindPost))

	owner, err := resolver.OwnerOf(ctx, models.KindVote, tr.vote.ID)
	require.NoError(t, err)
	assert.Equal(t, voter, owner)
}

// gatedStore 让 Ref 停在 release 之前，并且遵守 ctx 取消
type gatedStore struct {
	*testutils.MemoryStore
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStore) Ref(ctx context.Context, kind models.Kind, id uint) (models.Ref, error) {
	close(g.entered)
	<-g.release
	if err := ctx.Err(); err != nil {
		return models.Ref{Kind: kind, ID: id}, err
	}
	return g.MemoryStore.Ref(ctx, kind, id)
}

func TestOwnershipResolver_AncestorSurvivesFirstCallerCancel(t *testing.T) {
	s := testutils.NewMemoryStore()
	f := s.AddForum(forumOwner)
	gs := &gatedStore{MemoryStore: s, entered: make(chan struct{}), release: make(chan struct{})}
	resolver, err := NewOwnershipResolver(gs, 10, time.Minute)
	require.NoError(t, err)

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := resolver.Ancestor(ctxA, models.KindForum, f.ID)
		errA <- err
	}()
	<-gs.entered

	type result struct {
		ref models.Ref
		err error
	}
	resB := make(chan result, 1)
	go func() {
		ref, err := resolver.Ancestor(context.Background(), models.KindForum, f.ID)
		resB <- result{ref, err}
	}()
	time.Sleep(20 * time.Millisecond)

	// 第一个调用方取消后立即返回，共享查询继续执行
	cancelA()
	assert.ErrorIs(t, <-errA, context.Canceled)
	close(gs.release)

	b := <-resB
	require.NoError(t, b.err)
	assert.Equal(t, forumOwner, b.ref.OwnerID)
	assert.Equal(t, 1, s.Calls("Ref", models.KindForum))
}
