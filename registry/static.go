package registry

import (
	"context"
	"sort"
	"sync"
)

// StaticRegistry keeps instances in memory. It suits fixed deployments and
// tests; ttl is ignored.
type StaticRegistry struct {
	mu        sync.Mutex
	instances map[string]map[string]ServiceInstance
	watchers  map[string][]chan []ServiceInstance
}

// NewStaticRegistry returns a registry where every name in names is served
// by the given addresses.
func NewStaticRegistry(addrs []string, names ...string) *StaticRegistry {
	r := &StaticRegistry{
		instances: make(map[string]map[string]ServiceInstance),
		watchers:  make(map[string][]chan []ServiceInstance),
	}
	for _, name := range names {
		for _, addr := range addrs {
			r.add(name, ServiceInstance{Addr: addr, Weight: 1})
		}
	}
	return r
}

func (r *StaticRegistry) add(name string, instance ServiceInstance) {
	byAddr, ok := r.instances[name]
	if !ok {
		byAddr = make(map[string]ServiceInstance)
		r.instances[name] = byAddr
	}
	byAddr[instance.Addr] = instance
}

func (r *StaticRegistry) Register(_ context.Context, name string, instance ServiceInstance, _ int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.add(name, instance)
	r.notify(name)
	return nil
}

func (r *StaticRegistry) Deregister(_ context.Context, name string, addr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.instances[name], addr)
	r.notify(name)
	return nil
}

func (r *StaticRegistry) Discover(_ context.Context, name string) ([]ServiceInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.list(name), nil
}

func (r *StaticRegistry) Watch(ctx context.Context, name string) <-chan []ServiceInstance {
	ch := make(chan []ServiceInstance, 1)
	r.mu.Lock()
	r.watchers[name] = append(r.watchers[name], ch)
	r.mu.Unlock()

	go func() {
		<-ctx.Done()
		r.mu.Lock()
		defer r.mu.Unlock()
		watchers := r.watchers[name]
		for i, w := range watchers {
			if w == ch {
				r.watchers[name] = append(watchers[:i], watchers[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch
}

// list returns instances sorted by address so balancers see a stable order.
func (r *StaticRegistry) list(name string) []ServiceInstance {
	instances := make([]ServiceInstance, 0, len(r.instances[name]))
	for _, inst := range r.instances[name] {
		instances = append(instances, inst)
	}
	sort.Slice(instances, func(i, j int) bool {
		return instances[i].Addr < instances[j].Addr
	})
	return instances
}

// notify replaces any unread update so watchers always see the latest list.
func (r *StaticRegistry) notify(name string) {
	instances := r.list(name)
	for _, ch := range r.watchers[name] {
		select {
		case <-ch:
		default:
		}
		ch <- instances
	}
}
