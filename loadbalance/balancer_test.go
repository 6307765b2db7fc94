package loadbalance

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rpccore/registry"
)

var testInstances = []registry.ServiceInstance{
	{Addr: ":8001", Weight: 10, Version: "1.0"},
	{Addr: ":8002", Weight: 5, Version: "1.0"},
	{Addr: ":8003", Weight: 10, Version: "1.0"},
}

func TestRoundRobin(t *testing.T) {
	b := &RoundRobinBalancer{}

	var results []string
	for i := 0; i < 3; i++ {
		inst, err := b.Pick(testInstances)
		require.NoError(t, err)
		results = append(results, inst.Addr)
	}
	assert.Equal(t, []string{":8001", ":8002", ":8003"}, results)

	inst, err := b.Pick(testInstances)
	require.NoError(t, err)
	assert.Equal(t, results[0], inst.Addr, "should wrap around")
}

func TestRoundRobinEmpty(t *testing.T) {
	b := &RoundRobinBalancer{}
	_, err := b.Pick(nil)
	assert.ErrorIs(t, err, ErrNoInstances)
}

func TestWeightedRandom(t *testing.T) {
	b := &WeightedRandomBalancer{}

	counts := map[string]int{}
	n := 10000
	for i := 0; i < n; i++ {
		inst, err := b.Pick(testInstances)
		require.NoError(t, err)
		counts[inst.Addr]++
	}

	// Weight ratio is 10:5:10, so :8001 should see about twice the calls of :8002.
	ratio := float64(counts[":8001"]) / float64(counts[":8002"])
	assert.InDelta(t, 2.0, ratio, 0.5)
}

func TestWeightedRandomZeroWeights(t *testing.T) {
	b := &WeightedRandomBalancer{}
	instances := []registry.ServiceInstance{{Addr: "a"}, {Addr: "b"}}

	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		inst, err := b.Pick(instances)
		require.NoError(t, err)
		seen[inst.Addr] = true
	}
	assert.Len(t, seen, 2)
}

func TestConsistentHash(t *testing.T) {
	b := NewConsistentHashBalancer()
	for i := range testInstances {
		b.Add(&testInstances[i])
	}

	inst1, err := b.Get("user-123")
	require.NoError(t, err)
	inst2, err := b.Get("user-123")
	require.NoError(t, err)
	assert.Equal(t, inst1.Addr, inst2.Addr)

	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		inst, err := b.Get(fmt.Sprintf("key-%d", i))
		require.NoError(t, err)
		seen[inst.Addr] = true
	}
	assert.GreaterOrEqual(t, len(seen), 2)
}

func TestConsistentHashPickKeyRebuilds(t *testing.T) {
	b := NewConsistentHashBalancer()

	first, err := b.PickKey("echo", testInstances)
	require.NoError(t, err)
	again, err := b.PickKey("echo", testInstances)
	require.NoError(t, err)
	assert.Equal(t, first.Addr, again.Addr)

	only := []registry.ServiceInstance{{Addr: ":9999"}}
	inst, err := b.PickKey("echo", only)
	require.NoError(t, err)
	assert.Equal(t, ":9999", inst.Addr)

	_, err = b.PickKey("echo", nil)
	assert.ErrorIs(t, err, ErrNoInstances)
}

func TestNew(t *testing.T) {
	for name, want := range map[string]string{
		"":                "RoundRobin",
		"round_robin":     "RoundRobin",
		"weighted_random": "WeightedRandom",
		"consistent_hash": "ConsistentHash",
	} {
		b, err := New(name)
		require.NoError(t, err)
		assert.Equal(t, want, b.Name())
	}

	_, err := New("fastest")
	assert.Error(t, err)
}
