// Package worker provides the fixed-size pool that fans extraction work
// out across documents. Jobs are independent; the pool defines no
// completion order.
package worker

import (
	"context"
	"sync"
)

// Job is a unit of work, typically one document end-to-end.
type Job interface {
	Execute(ctx context.Context) Result
}

// Result is the outcome of one job.
type Result interface {
	Err() error
}

// Pool runs jobs on a fixed number of workers. A pool with one worker is
// a plain sequential path.
type Pool struct {
	workers     int
	jobs        chan Job
	results     chan Result
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	jobsOnce    sync.Once
	resultsOnce sync.Once
}

// NewPool creates a pool with the given worker count. Counts below one are
// clamped to one.
func NewPool(ctx context.Context, workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}

	ctx, cancel := context.WithCancel(ctx)

	return &Pool{
		workers: workers,
		jobs:    make(chan Job, workers*2),
		results: make(chan Result, workers*2),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the workers.
func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			result := job.Execute(p.ctx)
			select {
			case p.results <- result:
			case <-p.ctx.Done():
				return
			}
		}
	}
}

// Submit queues a job for execution. Submissions after cancellation are
// dropped. Submit blocks once the queues fill, so Wait must be draining
// results while submission is still in progress; submit from a separate
// goroutine and finish with Close.
func (p *Pool) Submit(job Job) {
	select {
	case <-p.ctx.Done():
	case p.jobs <- job:
	}
}

// Close marks the end of submission. Call exactly once, after the last
// Submit; submitting after Close panics.
func (p *Pool) Close() {
	p.jobsOnce.Do(func() { close(p.jobs) })
}

// Wait drains results until the workers have exited and returns them all.
// The workers only exit after Close (or cancellation), so Close must be
// arranged — typically by the submitting goroutine — or Wait never
// returns.
func (p *Pool) Wait() []Result {
	go func() {
		p.wg.Wait()
		p.closeResults()
	}()

	var results []Result
	for result := range p.results {
		results = append(results, result)
	}
	return results
}

// Shutdown cancels outstanding work and waits for the workers to exit.
// Jobs already committed stay committed.
func (p *Pool) Shutdown() {
	p.cancel()
	p.wg.Wait()
	p.closeResults()
}

func (p *Pool) closeResults() {
	p.resultsOnce.Do(func() {
		close(p.results)
	})
}
