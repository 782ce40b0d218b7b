package usecase

import (
	"context"
	"fmt"
	"sync"
)

// task is one branch of a settle-all fan-out.
type task[T any] struct {
	name string
	run  func(ctx context.Context) (T, error)
}

// settled is the outcome of one task. Exactly one of Value or Err is
// meaningful.
type settled[T any] struct {
	name  string
	value T
	err   error
}

// settleAll runs every task concurrently and waits for all of them. A task
// that panics settles with an error. Results keep the order of tasks.
func settleAll[T any](ctx context.Context, tasks []task[T]) []settled[T] {
	out := make([]settled[T], len(tasks))
	var wg sync.WaitGroup

	for i, t := range tasks {
		wg.Add(1)
		go func(i int, t task[T]) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					out[i] = settled[T]{name: t.name, err: fmt.Errorf("%s panicked: %v", t.name, r)}
				}
			}()
			v, err := t.run(ctx)
			out[i] = settled[T]{name: t.name, value: v, err: err}
		}(i, t)
	}

	wg.Wait()
	return out
}
