package middleware

import (
	"context"

	"golang.org/x/time/rate"

	"rpccore/message"
	"rpccore/types"
)

// RateLimit rejects calls beyond r per second, allowing bursts of burst.
func RateLimit(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.RPCMessage) *message.RPCMessage {
			if !limiter.Allow() {
				return message.Failure(req.Method, types.RateLimited())
			}
			return next(ctx, req)
		}
	}
}
