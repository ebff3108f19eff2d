package fn

import (
	"context"
	"sync"
)

// ParMapResult applies f to every element of s on at most workers
// goroutines (one per element when workers <= 0) and returns the results in
// input order. Elements not started before ctx is done get Err(ctx.Err()).
// A panic in f is re-raised on the calling goroutine after every worker
// has stopped, so callers' recover still sees it.
func ParMapResult[S ~[]E, E, U any](ctx context.Context, s S, workers int, f func(context.Context, E) Result[U]) []Result[U] {
	out := make([]Result[U], len(s))
	if len(s) == 0 {
		return out
	}
	if workers <= 0 || workers > len(s) {
		workers = len(s)
	}

	var (
		wg       sync.WaitGroup
		once     sync.Once
		panicked any
	)
	sem := make(chan struct{}, workers)
	for i, e := range s {
		if err := ctx.Err(); err != nil {
			out[i] = Err[U](err)
			continue
		}
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			out[i] = Err[U](ctx.Err())
			continue
		}
		wg.Add(1)
		go func() {
			defer func() {
				if p := recover(); p != nil {
					once.Do(func() { panicked = p })
				}
				<-sem
				wg.Done()
			}()
			out[i] = f(ctx, e)
		}()
	}
	wg.Wait()
	if panicked != nil {
		panic(panicked)
	}
	return out
}
