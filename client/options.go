package client

import (
	"time"

	"go.uber.org/zap"

	"rpccore/codec"
	"rpccore/loadbalance"
	"rpccore/middleware"
	"rpccore/transport"
)

type options struct {
	codecType   codec.CodecType
	poolSize    int
	heartbeat   time.Duration
	dialTimeout time.Duration
	balancer    loadbalance.Balancer
	middlewares []middleware.Middleware
	logger      *zap.Logger
}

func defaultOptions() options {
	return options{
		codecType:   codec.CodecTypeJSON,
		poolSize:    2,
		heartbeat:   transport.DefaultHeartbeatInterval,
		dialTimeout: 5 * time.Second,
		balancer:    &loadbalance.RoundRobinBalancer{},
		logger:      zap.NewNop(),
	}
}

// Option configures a Client.
type Option func(*options)

func WithCodec(ct codec.CodecType) Option {
	return func(o *options) { o.codecType = ct }
}

// WithPoolSize sets how many transports are kept per address.
func WithPoolSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.poolSize = n
		}
	}
}

func WithBalancer(b loadbalance.Balancer) Option {
	return func(o *options) {
		if b != nil {
			o.balancer = b
		}
	}
}

func WithHeartbeat(d time.Duration) Option {
	return func(o *options) { o.heartbeat = d }
}

func WithDialTimeout(d time.Duration) Option {
	return func(o *options) { o.dialTimeout = d }
}

// WithMiddleware wraps every call, e.g. middleware.Retry.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(o *options) { o.middlewares = append(o.middlewares, mws...) }
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}
