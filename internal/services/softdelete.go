package services

import (
	"context"
	"time"

	"zhulink-cascade/internal/models"
	"zhulink-cascade/internal/observability"
	"zhulink-cascade/internal/store"
)

const defaultBatchSize = 100

// softDeleter 软删除原语：单行、分批、分页收集 id
type softDeleter struct {
	store     store.Store
	batchSize int
	now       func() time.Time
	metrics   *observability.Metrics
}

func newSoftDeleter(s store.Store, batchSize int, metrics *observability.Metrics) *softDeleter {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &softDeleter{store: s, batchSize: batchSize, now: time.Now, metrics: metrics}
}

// one 已删除的行不会被再次修改，返回值只用于日志和计数
func (d *softDeleter) one(ctx context.Context, kind models.Kind, id uint) (bool, error) {
	n, err := d.store.SoftDelete(ctx, kind, store.Filter{IDs: []uint{id}}, d.now())
	if err != nil {
		return false, err
	}
	d.metrics.SoftDeleted(string(kind), n)
	return n > 0, nil
}

// batch 按 batchSize 切分 ids，每批一次批量更新，返回实际修改的总行数
// filter 根据当前批次构造条件，nil 表示按主键匹配
func (d *softDeleter) batch(ctx context.Context, kind models.Kind, ids []uint, filter func(chunk []uint) store.Filter) (int64, error) {
	if filter == nil {
		filter = byIDs
	}
	at := d.now()
	var total int64
	for _, chunk := range chunks(ids, d.batchSize) {
		n, err := d.store.SoftDelete(ctx, kind, filter(chunk), at)
		if err != nil {
			return total, err
		}
		total += n
		d.metrics.SoftDeleted(string(kind), n)
	}
	return total, nil
}

// collect 按 id 游标分页收集所有匹配的 id，包括已删除的行
func (d *softDeleter) collect(ctx context.Context, kind models.Kind, f store.Filter) ([]uint, error) {
	var ids []uint
	var cursor uint
	for {
		page, err := d.store.IDs(ctx, kind, f, cursor, d.batchSize)
		if err != nil {
			return ids, err
		}
		ids = append(ids, page...)
		if len(page) < d.batchSize {
			return ids, nil
		}
		cursor = page[len(page)-1]
	}
}

// collectFor 父级 id 过多时分批作为 IN 条件
func (d *softDeleter) collectFor(ctx context.Context, kind models.Kind, parents []uint, filter func(chunk []uint) store.Filter) ([]uint, error) {
	var ids []uint
	for _, chunk := range chunks(parents, d.batchSize) {
		page, err := d.collect(ctx, kind, filter(chunk))
		if err != nil {
			return ids, err
		}
		ids = append(ids, page...)
	}
	return ids, nil
}

func byIDs(chunk []uint) store.Filter {
	return store.Filter{IDs: chunk}
}

// votesOn 投票按 target_id + is_post 匹配
func votesOn(isPost bool) func(chunk []uint) store.Filter {
	return func(chunk []uint) store.Filter {
		return store.Filter{TargetIDs: chunk, IsPost: store.Bool(isPost)}
	}
}

// chunks 最后一批可以少于 size
func chunks(ids []uint, size int) [][]uint {
	if len(ids) == 0 {
		return nil
	}
	out := make([][]uint, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		out = append(out, ids[start:end])
	}
	return out
}
