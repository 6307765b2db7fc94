package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"rpccore/message"
	"rpccore/types"
)

// Retry re-issues a call that failed with a timeout or an unreachable peer,
// backing off exponentially from baseDelay. It belongs on the client chain:
// the server never retries a handler on its own.
func Retry(maxRetries int, baseDelay time.Duration, logger *zap.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.RPCMessage) *message.RPCMessage {
			resp := next(ctx, req)
			for i := 0; i < maxRetries && retryable(resp); i++ {
				delay := baseDelay * time.Duration(1<<i)
				logger.Info("retrying call",
					zap.String("method", req.Method),
					zap.Int("attempt", i+1),
					zap.Duration("delay", delay),
					zap.String("error", resp.Error.Message),
				)

				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return resp
				}
				resp = next(ctx, req)
			}
			return resp
		}
	}
}

func retryable(resp *message.RPCMessage) bool {
	if resp == nil || resp.Error == nil {
		return false
	}
	switch resp.Error.Code {
	case types.CodeRequestTimeout, types.CodeUnavailable:
		return true
	}
	return false
}
