package engine

// queue serializes an asynchronous instance's compute work on a single
// goroutine. Jobs run strictly in submission order, which is what makes
// buffer-index data dependencies hold without any dependency tracking.
type queue struct {
	jobs chan func()
	done chan struct{}
}

func newQueue() *queue {
	q := &queue{
		jobs: make(chan func(), 64),
		done: make(chan struct{}),
	}
	go func() {
		defer close(q.done)
		for job := range q.jobs {
			job()
		}
	}()
	return q
}

// submit enqueues a job and returns without waiting for it.
func (q *queue) submit(job func()) {
	q.jobs <- job
}

// shutdown drains outstanding work and stops the worker. Used only at
// instance finalization; the queue cannot be reused afterwards.
func (q *queue) shutdown() {
	close(q.jobs)
	<-q.done
}
