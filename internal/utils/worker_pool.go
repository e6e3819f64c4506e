package utils

import "sync"

// WorkerPool runs submitted tasks on a fixed set of workers. The gateway uses
// it to fan per-command updates out without spawning an unbounded number of
// goroutines.
type WorkerPool struct {
	jobs chan func()
	wg   sync.WaitGroup
}

// NewWorkerPool starts a pool with the given number of workers.
func NewWorkerPool(workers int) *WorkerPool {
	if workers < 1 {
		workers = 1
	}

	pool := &WorkerPool{
		jobs: make(chan func(), workers),
	}

	pool.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go pool.worker()
	}

	return pool
}

func (wp *WorkerPool) worker() {
	defer wp.wg.Done()
	for job := range wp.jobs {
		job()
	}
}

// Submit enqueues a task. It blocks while all workers are busy and the queue
// is full.
func (wp *WorkerPool) Submit(task func()) {
	wp.jobs <- task
}

// Shutdown stops accepting tasks and waits for the workers to drain.
func (wp *WorkerPool) Shutdown() {
	close(wp.jobs)
	wp.wg.Wait()
}
