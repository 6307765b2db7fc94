package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"rpccore/message"
)

// Logging logs every call with its duration, and failures with their error.
func Logging(logger *zap.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.RPCMessage) *message.RPCMessage {
			start := time.Now()
			resp := next(ctx, req)
			elapsed := time.Since(start)

			if resp != nil && resp.Error != nil {
				logger.Warn("call failed",
					zap.String("method", req.Method),
					zap.Duration("elapsed", elapsed),
					zap.Int64("code", int64(resp.Error.Code)),
					zap.String("error", resp.Error.Message),
				)
				return resp
			}
			logger.Debug("call completed",
				zap.String("method", req.Method),
				zap.Duration("elapsed", elapsed),
			)
			return resp
		}
	}
}
