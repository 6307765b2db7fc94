package server

import (
	"time"

	"go.uber.org/zap"

	"rpccore/registry"
)

// DefaultMaxAliasHops bounds alias chains when no option overrides it.
const DefaultMaxAliasHops = 8

type options struct {
	logger        *zap.Logger
	maxAliasHops  int
	registry      registry.Registry
	advertiseAddr string
	ttl           int64
}

func defaultOptions() options {
	return options{
		logger:       zap.NewNop(),
		maxAliasHops: DefaultMaxAliasHops,
		ttl:          10,
	}
}

// Option configures a Server.
type Option func(*options)

// WithLogger sets the logger used for connection and dispatch events.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMaxAliasHops caps how many aliases Resolve follows before giving up.
func WithMaxAliasHops(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxAliasHops = n
		}
	}
}

// WithRegistry publishes every procedure name to reg while serving.
// advertiseAddr is the routable address clients should dial; when empty the
// listener address is used. ttl is the lease duration.
func WithRegistry(reg registry.Registry, advertiseAddr string, ttl time.Duration) Option {
	return func(o *options) {
		o.registry = reg
		o.advertiseAddr = advertiseAddr
		if secs := int64(ttl / time.Second); secs > 0 {
			o.ttl = secs
		}
	}
}
