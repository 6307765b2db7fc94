package middleware

import (
	"context"
	"time"

	"rpccore/message"
	"rpccore/types"
)

// Timeout bounds the time spent in the rest of the chain. The context passed
// down is cancelled at the deadline; a handler that ignores it is abandoned
// and its late response dropped. A panic in the rest of the chain is raised
// again on the caller's goroutine so an outer Recover still sees it.
func Timeout(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.RPCMessage) *message.RPCMessage {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			done := make(chan *message.RPCMessage, 1)
			panicked := make(chan any, 1)
			go func() {
				defer func() {
					if r := recover(); r != nil {
						panicked <- r
					}
				}()
				done <- next(ctx, req)
			}()

			select {
			case resp := <-done:
				return resp
			case r := <-panicked:
				panic(r)
			case <-ctx.Done():
				return message.Failure(req.Method, types.RequestTimeout())
			}
		}
	}
}
