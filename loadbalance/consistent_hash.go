package loadbalance

import (
	"fmt"
	"hash/crc32"
	"sort"
	"strings"
	"sync"

	"rpccore/registry"
)

// ConsistentHashBalancer maps keys to instances on a hash ring. Each instance
// owns replicas virtual nodes, hashed from "{addr}#{i}", which spreads load
// evenly even with few instances.
type ConsistentHashBalancer struct {
	replicas int

	mu        sync.RWMutex
	ring      []uint32                             // sorted virtual node hashes
	nodes     map[uint32]*registry.ServiceInstance // virtual node → instance
	signature string                               // addresses the ring was built from
}

// NewConsistentHashBalancer creates an empty ring with 100 virtual nodes per instance.
func NewConsistentHashBalancer() *ConsistentHashBalancer {
	return &ConsistentHashBalancer{
		replicas: 100,
		nodes:    make(map[uint32]*registry.ServiceInstance),
	}
}

// Add places an instance on the ring.
func (b *ConsistentHashBalancer) Add(instance *registry.ServiceInstance) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.add(instance)
}

func (b *ConsistentHashBalancer) add(instance *registry.ServiceInstance) {
	for i := 0; i < b.replicas; i++ {
		hash := crc32.ChecksumIEEE([]byte(fmt.Sprintf("%s#%d", instance.Addr, i)))
		b.ring = append(b.ring, hash)
		b.nodes[hash] = instance
	}
	sort.Slice(b.ring, func(i, j int) bool {
		return b.ring[i] < b.ring[j]
	})
}

// Get finds the instance owning key: the first virtual node clockwise from
// the key's hash, wrapping around past the largest.
func (b *ConsistentHashBalancer) Get(key string) (*registry.ServiceInstance, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.ring) == 0 {
		return nil, ErrNoInstances
	}

	hash := crc32.ChecksumIEEE([]byte(key))
	idx := sort.Search(len(b.ring), func(i int) bool {
		return b.ring[i] >= hash
	})
	if idx == len(b.ring) {
		idx = 0
	}
	return b.nodes[b.ring[idx]], nil
}

// PickKey rebuilds the ring when the instance set changed, then looks up key.
func (b *ConsistentHashBalancer) PickKey(key string, instances []registry.ServiceInstance) (*registry.ServiceInstance, error) {
	if len(instances) == 0 {
		return nil, ErrNoInstances
	}
	b.sync(instances)
	return b.Get(key)
}

// Pick without a key always lands on the owner of the empty key.
func (b *ConsistentHashBalancer) Pick(instances []registry.ServiceInstance) (*registry.ServiceInstance, error) {
	return b.PickKey("", instances)
}

func (b *ConsistentHashBalancer) sync(instances []registry.ServiceInstance) {
	addrs := make([]string, len(instances))
	for i, inst := range instances {
		addrs[i] = inst.Addr
	}
	sort.Strings(addrs)
	signature := strings.Join(addrs, ",")

	b.mu.RLock()
	current := b.signature == signature
	b.mu.RUnlock()
	if current {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.signature == signature {
		return
	}
	b.ring = b.ring[:0]
	b.nodes = make(map[uint32]*registry.ServiceInstance, len(instances)*b.replicas)
	for i := range instances {
		inst := instances[i]
		b.add(&inst)
	}
	b.signature = signature
}

func (b *ConsistentHashBalancer) Name() string {
	return "ConsistentHash"
}

var _ KeyedBalancer = (*ConsistentHashBalancer)(nil)
