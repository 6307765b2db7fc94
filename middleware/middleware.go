// Package middleware wraps envelope handlers with cross-cutting behaviour.
//
// Chain(A, B, C)(handler) builds A(B(C(handler))), so execution order is
// A.before → B.before → C.before → handler → C.after → B.after → A.after.
// The same chain type serves both the server's dispatch path and the
// client's call path.
package middleware

import (
	"context"

	"rpccore/message"
)

type HandlerFunc func(ctx context.Context, req *message.RPCMessage) *message.RPCMessage

type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes middlewares into one. The first argument is outermost.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
