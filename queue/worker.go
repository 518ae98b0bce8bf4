package queue

import (
	"sync"
)

// WorkerPool bounds how many tasks run at once.
type WorkerPool struct {
	workers chan struct{}
	wg      sync.WaitGroup
}

func NewWorkerPool(size int) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	return &WorkerPool{
		workers: make(chan struct{}, size),
	}
}

// Submit blocks until a worker slot is free, then runs task on its own goroutine.
func (p *WorkerPool) Submit(task func()) {
	p.wg.Add(1)
	p.workers <- struct{}{}

	go func() {
		defer func() {
			<-p.workers
			p.wg.Done()
		}()
		task()
	}()
}

// Wait blocks until every submitted task has returned.
func (p *WorkerPool) Wait() {
	p.wg.Wait()
}
