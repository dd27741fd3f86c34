package morph

import (
	"context"

	"golang.org/x/sync/errgroup"

	"lindex/pkg/leaf"
)

// backgroundWorkers bounds how many morphs run concurrently in the
// background pool, mirroring the source's single dedicated morph thread
// scaled up to a small bounded group rather than one goroutine per
// scheduled morph.
const backgroundWorkers = 4

// queueDepth bounds the pending-job channel. Morphing is an optimization,
// not a correctness requirement, so a full queue drops the job rather than
// applying backpressure to the caller that triggered Judge.
const queueDepth = 256

type job struct {
	h      *leaf.Handle
	lsn    uint32
	target leaf.Kind
}

// pool runs queued morph jobs on a bounded errgroup, the idiomatic
// replacement for the source's single blocking-queue morph thread.
type pool struct {
	engine *Engine
	jobs   chan job
	cancel context.CancelFunc
	group  *errgroup.Group
}

func newPool(e *Engine) *pool {
	return &pool{engine: e, jobs: make(chan job, queueDepth)}
}

func (p *pool) start() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(backgroundWorkers)
	p.group = group

	for i := 0; i < backgroundWorkers; i++ {
		group.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case j, ok := <-p.jobs:
					if !ok {
						return nil
					}
					p.engine.morphBlocking(j.h, j.lsn, j.target)
				}
			}
		})
	}
}

func (p *pool) stop() {
	if p.group == nil {
		return
	}
	close(p.jobs)
	_ = p.group.Wait()
	p.cancel()
	p.group = nil
}

// enqueue submits a morph job without blocking. It reports false (and bumps
// the dropped counter) when the queue is full.
func (p *pool) enqueue(h *leaf.Handle, lsn uint32, target leaf.Kind) bool {
	select {
	case p.jobs <- job{h: h, lsn: lsn, target: target}:
		return true
	default:
		p.engine.stats.dropped.Add(1)
		return false
	}
}
