// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package buildsession

import (
	"context"
	"errors"
	"sync"
)

// errPoolShutdown is returned by submit after shutdown.
var errPoolShutdown = errors.New("worker pool is shut down")

// workerPool runs build work (processes and their cancellation
// watchers) on goroutines. It is unbounded: each submitted task gets
// its own goroutine and its own cancel function. Shutting the pool
// down cancels every task that is still running and waits for them to
// return.
type workerPool struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	shutdown bool
	running  sync.WaitGroup
}

// poolTask is the handle of one submitted unit of work.
type poolTask struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Cancel asks the task to stop. Cancelling a finished task is harmless.
func (t *poolTask) Cancel() {
	t.cancel()
}

// Done is closed when the task function has returned.
func (t *poolTask) Done() <-chan struct{} {
	return t.done
}

func newWorkerPool() *workerPool {
	ctx, cancel := context.WithCancel(context.Background())
	return &workerPool{ctx: ctx, cancel: cancel}
}

// submit starts work on its own goroutine. The context passed to work
// is cancelled by the task's Cancel or by pool shutdown.
func (p *workerPool) submit(work func(ctx context.Context)) (*poolTask, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.shutdown {
		return nil, errPoolShutdown
	}

	taskContext, cancel := context.WithCancel(p.ctx)
	task := &poolTask{cancel: cancel, done: make(chan struct{})}

	p.running.Add(1)
	go func() {
		defer p.running.Done()
		defer close(task.done)
		defer cancel()
		work(taskContext)
	}()
	return task, nil
}

// Shutdown cancels all running tasks and waits for them to return.
// It is idempotent.
func (p *workerPool) Shutdown() {
	p.mu.Lock()
	p.shutdown = true
	p.mu.Unlock()

	p.cancel()
	p.running.Wait()
}
