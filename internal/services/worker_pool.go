package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"zhulink-cascade/internal/observability"
)

var (
	ErrQueueFull  = errors.New("cascade queue is full")
	ErrPoolClosed = errors.New("cascade pool is closed")
)

// Task 一个后台级联任务
type Task struct {
	ID       string
	Kind     string
	EntityID uint
	Run      func(ctx context.Context) error
}

// stageError 标记任务失败在哪一步，便于日志定位
type stageError struct {
	stage string
	err   error
}

func (e *stageError) Error() string {
	return fmt.Sprintf("%s: %v", e.stage, e.err)
}

func (e *stageError) Unwrap() error {
	return e.err
}

func atStage(stage string, err error) error {
	if err == nil {
		return nil
	}
	return &stageError{stage: stage, err: err}
}

// WorkerPool 固定数量的 worker 消费有界队列
// 任务没有超时和取消，失败只记录日志，不重试
type WorkerPool struct {
	queue    chan Task
	workers  sync.WaitGroup
	inflight sync.WaitGroup
	mu       sync.RWMutex
	closed   bool
	metrics  *observability.Metrics
}

// NewWorkerPool 创建并启动 worker
func NewWorkerPool(workers, queueSize int, metrics *observability.Metrics) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	p := &WorkerPool{
		queue:   make(chan Task, queueSize), // 缓冲队列，防止阻塞请求
		metrics: metrics,
	}
	for i := 0; i < workers; i++ {
		p.workers.Add(1)
		go p.worker()
	}
	return p
}

// Submit 非阻塞投递，队列满时丢弃任务并返回 ErrQueueFull
func (p *WorkerPool) Submit(t Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	p.inflight.Add(1)
	select {
	case p.queue <- t:
		p.metrics.SetQueueDepth(len(p.queue))
		return nil
	default:
		p.inflight.Done()
		p.metrics.TaskDropped()
		slog.Warn("级联任务队列已满，丢弃任务", "task_id", t.ID, "kind", t.Kind, "entity_id", t.EntityID)
		return ErrQueueFull
	}
}

// Wait 等待已投递的任务全部执行完
func (p *WorkerPool) Wait() {
	p.inflight.Wait()
}

// Close 停止接收新任务，执行完队列中剩余的任务后返回
func (p *WorkerPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.workers.Wait()
}

// worker 后台处理队列中的任务
func (p *WorkerPool) worker() {
	defer p.workers.Done()
	for t := range p.queue {
		p.metrics.SetQueueDepth(len(p.queue))
		p.run(t)
	}
}

// run 在任务边界捕获 panic 和错误，不会传播给调用方
func (p *WorkerPool) run(t Task) {
	defer p.inflight.Done()
	start := time.Now()
	status := observability.StatusOK

	defer func() {
		if r := recover(); r != nil {
			status = observability.StatusPanicked
			slog.Error("级联任务 panic",
				"task_id", t.ID, "kind", t.Kind, "entity_id", t.EntityID, "panic", r)
		}
		p.metrics.TaskFinished(t.Kind, status, time.Since(start).Seconds())
	}()

	if err := t.Run(context.Background()); err != nil {
		status = observability.StatusFailed
		stage := "unknown"
		var se *stageError
		if errors.As(err, &se) {
			stage = se.stage
		}
		slog.Error("级联任务失败",
			"task_id", t.ID, "kind", t.Kind, "entity_id", t.EntityID, "stage", stage, "error", err)
		return
	}
	slog.Debug("级联任务完成",
		"task_id", t.ID, "kind", t.Kind, "entity_id", t.EntityID, "elapsed", time.Since(start))
}
