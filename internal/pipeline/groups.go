package pipeline

import (
	"context"
	"errors"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// RunGroups calls fn once per group, sequentially or concurrently. Groups
// share nothing, so a failure in one never cancels another; the result
// joins every group error in input order. Groups not yet started when ctx
// is cancelled report ctx.Err().
func RunGroups[G ~string](ctx context.Context, groups []G, parallel bool, fn func(ctx context.Context, i int, group G) error) error {
	errs := make([]error, len(groups))
	if !parallel {
		for i, g := range groups {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				continue
			}
			errs[i] = fn(ctx, i, g)
		}
		return errors.Join(errs...)
	}

	var eg errgroup.Group
	eg.SetLimit(runtime.GOMAXPROCS(0))
	for i, g := range groups {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			errs[i] = fn(ctx, i, g)
			return nil
		})
	}
	_ = eg.Wait()
	return errors.Join(errs...)
}
