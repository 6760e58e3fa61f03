package services

import (
	"context"

	"golang.org/x/sync/singleflight"
)

// sharedLoad runs fn once per key for every concurrent caller. The load itself is
// detached from any single caller's cancellation; each caller stops waiting when
// its own ctx is done.
func sharedLoad[T any](ctx context.Context, g *singleflight.Group, key string, fn func(context.Context) (T, error)) (T, error) {
	ch := g.DoChan(key, func() (any, error) {
		return fn(context.WithoutCancel(ctx))
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			var zero T
			return zero, res.Err
		}
		return res.Val.(T), nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
