// Package pool provides a bounded dispatch pool for controlled fan-out
// concurrency. The orchestrator uses it to cap the number of worker
// dispatches in flight when a concurrency limit is configured.
package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

var ErrPoolClosed = errors.New("dispatch pool is closed")

// Dispatch 一个待执行的调度单元
type Dispatch func(ctx context.Context) error

// DispatchPool 有界并发调度池
// 最多 maxInFlight 个调度同时执行，其余在队列中等待
type DispatchPool struct {
	maxInFlight int
	queue       chan dispatchItem
	closed      atomic.Bool
	wg          sync.WaitGroup
	startOnce   sync.Once

	// 统计
	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
}

type dispatchItem struct {
	fn     Dispatch
	ctx    context.Context
	result chan error
}

// NewDispatchPool 创建调度池；maxInFlight 必须 >= 1
func NewDispatchPool(maxInFlight int) *DispatchPool {
	if maxInFlight < 1 {
		maxInFlight = 1
	}
	return &DispatchPool{
		maxInFlight: maxInFlight,
		queue:       make(chan dispatchItem),
	}
}

// start 惰性启动固定数量的执行协程
func (p *DispatchPool) start() {
	p.startOnce.Do(func() {
		for i := 0; i < p.maxInFlight; i++ {
			p.wg.Add(1)
			go p.run()
		}
	})
}

func (p *DispatchPool) run() {
	defer p.wg.Done()
	for item := range p.queue {
		err := p.execute(item)
		if err != nil {
			p.failed.Add(1)
		} else {
			p.completed.Add(1)
		}
		item.result <- err
	}
}

func (p *DispatchPool) execute(item dispatchItem) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New("dispatch panicked")
		}
	}()
	if item.ctx.Err() != nil {
		return item.ctx.Err()
	}
	return item.fn(item.ctx)
}

// SubmitWait 提交调度并等待其完成
// 队列无缓冲：有空闲执行协程时立即开始，否则阻塞等待
func (p *DispatchPool) SubmitWait(ctx context.Context, fn Dispatch) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}
	p.start()
	p.submitted.Add(1)

	item := dispatchItem{fn: fn, ctx: ctx, result: make(chan error, 1)}

	select {
	case p.queue <- item:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-item.result:
		return err
	case <-ctx.Done():
		// 调度已入队，结果被放弃；执行协程写入缓冲通道后继续
		return ctx.Err()
	}
}

// Close 关闭调度池并等待在途调度完成
func (p *DispatchPool) Close() {
	if p.closed.Swap(true) {
		return
	}
	p.startOnce.Do(func() {}) // 未启动过则无事可做
	close(p.queue)
	p.wg.Wait()
}

// Stats 返回调度池统计
func (p *DispatchPool) Stats() DispatchPoolStats {
	return DispatchPoolStats{
		MaxInFlight: p.maxInFlight,
		Submitted:   p.submitted.Load(),
		Completed:   p.completed.Load(),
		Failed:      p.failed.Load(),
	}
}

// DispatchPoolStats 调度池统计
type DispatchPoolStats struct {
	MaxInFlight int   `json:"max_in_flight"`
	Submitted   int64 `json:"submitted"`
	Completed   int64 `json:"completed"`
	Failed      int64 `json:"failed"`
}
