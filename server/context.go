package server

import "context"

type metaKey struct{}

func withMeta[M any](ctx context.Context, meta M) context.Context {
	return context.WithValue(ctx, metaKey{}, meta)
}

func metaFrom[M any](ctx context.Context) (M, bool) {
	meta, ok := ctx.Value(metaKey{}).(M)
	return meta, ok
}
