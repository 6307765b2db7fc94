// Package loadbalance picks which instance serves the next call.
//
//   - RoundRobin:      equal-capacity instances
//   - WeightedRandom:  instances with different capacity
//   - ConsistentHash:  affinity, the same key lands on the same instance
package loadbalance

import (
	"github.com/pkg/errors"

	"rpccore/registry"
)

var ErrNoInstances = errors.New("loadbalance: no instances available")

// Balancer selects one instance per call. Pick must be goroutine-safe.
type Balancer interface {
	Pick(instances []registry.ServiceInstance) (*registry.ServiceInstance, error)
	Name() string
}

// KeyedBalancer selects by key. The client passes the procedure name.
type KeyedBalancer interface {
	Balancer
	PickKey(key string, instances []registry.ServiceInstance) (*registry.ServiceInstance, error)
}

// New returns the balancer registered under name: "round_robin",
// "weighted_random" or "consistent_hash".
func New(name string) (Balancer, error) {
	switch name {
	case "", "round_robin":
		return &RoundRobinBalancer{}, nil
	case "weighted_random":
		return &WeightedRandomBalancer{}, nil
	case "consistent_hash":
		return NewConsistentHashBalancer(), nil
	}
	return nil, errors.Errorf("loadbalance: unknown strategy %q", name)
}
