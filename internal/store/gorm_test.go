package store_test

import (
	"context"
	"testing"
	"time"

	"zhulink-cascade/internal/models"
	"zhulink-cascade/internal/store"
	"zhulink-cascade/internal/testutils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormStore_RefAndOwner(t *testing.T) {
	tx := testutils.SetupTestDB(t)
	s := store.NewGormStore(tx)
	ctx := context.Background()

	forum := testutils.CreateTestForum(tx, 1)
	post := testutils.CreateTestPost(tx, forum.ID, 2)
	comment := testutils.CreateTestComment(tx, post.ID, nil, 3)
	reply := testutils.CreateTestComment(tx, post.ID, comment, 4)
	vote := testutils.CreateTestVote(tx, 5, reply.ID, false)

	ref, err := s.Ref(ctx, models.KindPost, post.ID)
	require.NoError(t, err)
	assert.Equal(t, uint(2), ref.OwnerID)
	assert.Equal(t, forum.ID, ref.ForumID)

	ref, err = s.Ref(ctx, models.KindComment, reply.ID)
	require.NoError(t, err)
	require.NotNil(t, ref.ParentID)
	assert.Equal(t, comment.ID, *ref.ParentID)
	assert.Equal(t, post.ID, ref.PostID)

	ref, err = s.Ref(ctx, models.KindVote, vote.ID)
	require.NoError(t, err)
	assert.Equal(t, uint(5), ref.OwnerID)
	assert.False(t, ref.IsPost)

	owner, err := s.OwnerOf(ctx, models.KindVote, vote.ID)
	require.NoError(t, err)
	assert.Equal(t, uint(5), owner)

	_, err = s.Ref(ctx, models.KindForum, forum.ID+100000)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.OwnerOf(ctx, models.KindPost, post.ID+100000)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestGormStore_SoftDeleteOnlyTouchesLiveRows(t *testing.T) {
	tx := testutils.SetupTestDB(t)
	s := store.NewGormStore(tx)
	ctx := context.Background()

	forum := testutils.CreateTestForum(tx, 1)
	post := testutils.CreateTestPost(tx, forum.ID, 1)
	earlier := time.Now().Add(-time.Hour).UTC().Truncate(time.Second)
	live := testutils.CreateTestComment(tx, post.ID, nil, 1)
	dead := testutils.CreateTestComment(tx, post.ID, nil, 1, testutils.WithDeletedComment(earlier))

	n, err := s.SoftDelete(ctx, models.KindComment, store.Filter{IDs: []uint{live.ID, dead.ID}}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// 第二次不再修改任何行
	n, err = s.SoftDelete(ctx, models.KindComment, store.Filter{IDs: []uint{live.ID, dead.ID}}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	var got models.Comment
	require.NoError(t, tx.First(&got, dead.ID).Error)
	require.NotNil(t, got.DeletedAt)
	assert.True(t, got.DeletedAt.Equal(earlier), "deleted_at of an already-deleted row must not move")
}

func TestGormStore_IDsKeysetPaging(t *testing.T) {
	tx := testutils.SetupTestDB(t)
	s := store.NewGormStore(tx)
	ctx := context.Background()

	forum := testutils.CreateTestForum(tx, 1)
	var want []uint
	for i := 0; i < 5; i++ {
		want = append(want, testutils.CreateTestPost(tx, forum.ID, 1).ID)
	}

	f := store.Filter{ForumIDs: []uint{forum.ID}}
	page1, err := s.IDs(ctx, models.KindPost, f, 0, 3)
	require.NoError(t, err)
	require.Len(t, page1, 3)
	page2, err := s.IDs(ctx, models.KindPost, f, page1[2], 3)
	require.NoError(t, err)
	assert.Equal(t, want, append(page1, page2...))

	none, err := s.IDs(ctx, models.KindPost, store.Filter{ForumIDs: []uint{}}, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestGormStore_CommentSubtreeIDs(t *testing.T) {
	tx := testutils.SetupTestDB(t)
	s := store.NewGormStore(tx)
	ctx := context.Background()

	forum := testutils.CreateTestForum(tx, 1)
	post := testutils.CreateTestPost(tx, forum.ID, 1)
	root := testutils.CreateTestComment(tx, post.ID, nil, 1)
	// 已删除的中间节点也要继续向下遍历
	mid := testutils.CreateTestComment(tx, post.ID, root, 1, testutils.WithDeletedComment(time.Now()))
	leaf := testutils.CreateTestComment(tx, post.ID, mid, 1)
	other := testutils.CreateTestComment(tx, post.ID, nil, 1)

	ids, err := s.CommentSubtreeIDs(ctx, root.ID, models.MaxCommentDepth)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint{root.ID, mid.ID, leaf.ID}, ids)
	assert.NotContains(t, ids, other.ID)

	ids, err = s.CommentSubtreeIDs(ctx, root.ID, 1)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint{root.ID, mid.ID}, ids)
}

func TestGormStore_CountersAndPurge(t *testing.T) {
	tx := testutils.SetupTestDB(t)
	s := store.NewGormStore(tx)
	ctx := context.Background()

	forum := testutils.CreateTestForum(tx, 1)
	post := testutils.CreateTestPost(tx, forum.ID, 1, testutils.WithCommentCount(5))

	require.NoError(t, s.AdjustCounter(ctx, models.KindPost, post.ID, store.ColCommentCount, -3))
	var got models.Post
	require.NoError(t, tx.First(&got, post.ID).Error)
	assert.Equal(t, 2, got.CommentCount)

	assert.Error(t, s.AdjustCounter(ctx, models.KindPost, post.ID, "title", 1))

	old := testutils.CreateTestComment(tx, post.ID, nil, 1, testutils.WithDeletedComment(time.Now().Add(-31*24*time.Hour)))
	recent := testutils.CreateTestComment(tx, post.ID, nil, 1, testutils.WithDeletedComment(time.Now().Add(-29*24*time.Hour)))
	cutoff := time.Now().Add(-30 * 24 * time.Hour)

	n, err := s.HardDelete(ctx, models.KindComment, store.Filter{
		PostIDs:       []uint{post.ID},
		OnlyDeleted:   true,
		DeletedBefore: &cutoff,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	counts, err := s.CountBy(ctx, models.KindComment, store.Filter{PostIDs: []uint{post.ID}}, "post_id")
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[post.ID])
	assert.NotEqual(t, old.ID, recent.ID)
}

func TestGormStore_HardDeletePageKeepsRecentRows(t *testing.T) {
	tx := testutils.SetupTestDB(t)
	s := store.NewGormStore(tx)
	ctx := context.Background()

	forum := testutils.CreateTestForum(tx, 1)
	post := testutils.CreateTestPost(tx, forum.ID, 1)
	old := testutils.CreateTestComment(tx, post.ID, nil, 1, testutils.WithDeletedComment(time.Now().Add(-40*24*time.Hour)))
	recent := testutils.CreateTestComment(tx, post.ID, nil, 1, testutils.WithDeletedComment(time.Now().Add(-time.Hour)))
	live := testutils.CreateTestComment(tx, post.ID, nil, 1)
	cutoff := time.Now().Add(-30 * 24 * time.Hour)

	// 同一页里只有超过保留期的已删除行会被删除
	n, err := s.HardDelete(ctx, models.KindComment, store.Filter{
		IDs:           []uint{old.ID, recent.ID, live.ID},
		OnlyDeleted:   true,
		DeletedBefore: &cutoff,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	ids, err := s.IDs(ctx, models.KindComment, store.Filter{PostIDs: []uint{post.ID}}, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, []uint{recent.ID, live.ID}, ids)
}
