package vector

import "sync"

type task struct {
	fn     func(rs, re int)
	rs, re int
	done   chan<- struct{}
}

// pool is a fixed set of workers that run pattern-range tasks. Workers live
// for the life of the kernels so peeling many operation lists does not churn
// goroutines; shutdown stops them when the owning instance is finalized.
type pool struct {
	size    int
	tasks   chan task
	workers sync.WaitGroup
}

func newPool(size int) *pool {
	if size < 1 {
		size = 1
	}
	p := &pool{
		size:  size,
		tasks: make(chan task, size*2),
	}
	p.workers.Add(size)
	for i := 0; i < size; i++ {
		go func() {
			defer p.workers.Done()
			for t := range p.tasks {
				t.fn(t.rs, t.re)
				t.done <- struct{}{}
			}
		}()
	}
	return p
}

// shutdown stops the workers and waits for them to exit. The pool cannot be
// used afterwards.
func (p *pool) shutdown() {
	close(p.tasks)
	p.workers.Wait()
}

// parallel splits [0, n) into contiguous chunks across the workers and waits
// for all of them. Small ranges run inline.
func (p *pool) parallel(n int, fn func(rs, re int)) {
	if n < minParallelPatterns || p.size == 1 {
		fn(0, n)
		return
	}
	chunk := (n + p.size - 1) / p.size
	done := make(chan struct{}, p.size)
	issued := 0
	for rs := 0; rs < n; rs += chunk {
		re := rs + chunk
		if re > n {
			re = n
		}
		p.tasks <- task{fn: fn, rs: rs, re: re, done: done}
		issued++
	}
	for i := 0; i < issued; i++ {
		<-done
	}
}
