package services

import (
	"context"
	"testing"

	"zhulink-cascade/internal/config"
	"zhulink-cascade/internal/models"
	"zhulink-cascade/internal/testutils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweeper_RedispatchesLostCascades(t *testing.T) {
	s := testutils.NewMemoryStore()
	conf := config.Default().Cascade
	ctx := context.Background()

	// 关闭的 worker 池模拟任务丢失：根节点已删除，子节点未处理
	lost := NewWorkerPool(1, 1, nil)
	lost.Close()
	broken := NewCascadeEngine(s, lost, conf, nil)

	f := s.AddForum(forumOwner)
	p := s.AddPost(f.ID, postOwner)
	c := s.AddComment(p.ID, 0, commentOwner)

	f2 := s.AddForum(forumOwner)
	p2 := s.AddPost(f2.ID, postOwner)
	v2 := s.AddVote(voter, p2.ID, true, 1)

	f3 := s.AddForum(forumOwner)
	p3 := s.AddPost(f3.ID, postOwner)
	c3 := s.AddComment(p3.ID, 0, commentOwner)
	r3 := s.AddComment(p3.ID, c3.ID, replyOwner)

	require.NoError(t, broken.DeleteForum(ctx, f.ID))
	require.NoError(t, broken.DeletePost(ctx, p2.ID))
	require.NoError(t, broken.DeleteComment(ctx, c3.ID))
	assert.False(t, s.IsDeleted(models.KindPost, p.ID))
	assert.False(t, s.IsDeleted(models.KindVote, v2.ID))
	assert.False(t, s.IsDeleted(models.KindComment, r3.ID))

	pool := NewWorkerPool(2, 100, nil)
	defer pool.Close()
	sweeper := NewSweeper(NewCascadeEngine(s, pool, conf, nil))

	res, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Forums: 1, Posts: 1, Comments: 1}, res)
	pool.Wait()

	assert.True(t, s.IsDeleted(models.KindPost, p.ID))
	assert.True(t, s.IsDeleted(models.KindComment, c.ID))
	assert.True(t, s.IsDeleted(models.KindVote, v2.ID))
	assert.True(t, s.IsDeleted(models.KindComment, r3.ID))

	// 第二次没有需要处理的对象
	res, err = sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{}, res)
}
