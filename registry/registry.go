// Package registry publishes and discovers the addresses serving each
// procedure name.
package registry

import "context"

type ServiceInstance struct {
	Addr    string `json:"addr"`
	Weight  int    `json:"weight"` // Weight for load balancing
	Version string `json:"version,omitempty"`
}

// Registry maps procedure names to the instances that serve them.
type Registry interface {
	Register(ctx context.Context, name string, instance ServiceInstance, ttl int64) error
	Deregister(ctx context.Context, name string, addr string) error
	Discover(ctx context.Context, name string) ([]ServiceInstance, error)
	// Watch emits the full instance list after every change until ctx is done.
	Watch(ctx context.Context, name string) <-chan []ServiceInstance
}
