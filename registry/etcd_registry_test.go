package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// newTestEtcd connects to a local etcd, skipping the test when none runs.
func newTestEtcd(t *testing.T) *EtcdRegistry {
	t.Helper()
	reg, err := NewEtcdRegistry([]string{"localhost:2379"}, time.Second, zap.NewNop())
	if err != nil {
		t.Skipf("etcd unavailable: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := reg.client.Status(ctx, "localhost:2379"); err != nil {
		reg.Close()
		t.Skipf("etcd unavailable: %v", err)
	}
	t.Cleanup(func() { reg.Close() })
	return reg
}

func TestRegisterAndDiscover(t *testing.T) {
	reg := newTestEtcd(t)
	ctx := context.Background()

	inst1 := ServiceInstance{Addr: "127.0.0.1:8001", Weight: 10, Version: "1.0"}
	inst2 := ServiceInstance{Addr: "127.0.0.1:8002", Weight: 5, Version: "1.0"}

	require.NoError(t, reg.Register(ctx, "Arith.Add", inst1, 10))
	require.NoError(t, reg.Register(ctx, "Arith.Add", inst2, 10))

	instances, err := reg.Discover(ctx, "Arith.Add")
	require.NoError(t, err)
	require.Len(t, instances, 2)

	require.NoError(t, reg.Deregister(ctx, "Arith.Add", inst1.Addr))

	instances, err = reg.Discover(ctx, "Arith.Add")
	require.NoError(t, err)
	require.Len(t, instances, 1)
	require.Equal(t, inst2.Addr, instances[0].Addr)

	require.NoError(t, reg.Deregister(ctx, "Arith.Add", inst2.Addr))
}

func TestEtcdWatch(t *testing.T) {
	reg := newTestEtcd(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates := reg.Watch(ctx, "watched")
	inst := ServiceInstance{Addr: "127.0.0.1:8003", Weight: 1}
	require.NoError(t, reg.Register(ctx, "watched", inst, 10))
	defer reg.Deregister(context.Background(), "watched", inst.Addr)

	select {
	case instances := <-updates:
		require.Len(t, instances, 1)
	case <-time.After(3 * time.Second):
		t.Fatal("no watch update")
	}
}
