package middleware

import (
	"context"

	"go.uber.org/zap"

	"rpccore/message"
	"rpccore/types"
)

// Recover turns a panic further down the chain into an internal error.
func Recover(logger *zap.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.RPCMessage) (resp *message.RPCMessage) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("handler panicked",
						zap.String("method", req.Method),
						zap.Any("panic", r),
						zap.Stack("stack"),
					)
					resp = message.Failure(req.Method, types.InternalError())
				}
			}()
			return next(ctx, req)
		}
	}
}
