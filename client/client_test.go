package client

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"rpccore/calls"
	"rpccore/codec"
	"rpccore/future"
	"rpccore/loadbalance"
	"rpccore/middleware"
	"rpccore/registry"
	"rpccore/server"
	"rpccore/types"
)

type Args struct {
	A, B int
}

type Reply struct {
	Result int
}

type Arith struct{}

func (a *Arith) Add(args *Args, reply *Reply) error {
	reply.Result = args.A + args.B
	return nil
}

func (a *Arith) Multiply(args *Args, reply *Reply) error {
	reply.Result = args.A * args.B
	return nil
}

// startServer serves Arith plus an "add" alias and publishes every name to reg.
func startServer(t testing.TB, reg registry.Registry) (*server.Server[calls.NoMeta], string) {
	t.Helper()
	svr := server.NewServer[calls.NoMeta](nil, server.WithRegistry(reg, "", time.Second))
	require.NoError(t, svr.RegisterService(&Arith{}))
	svr.AddAlias("add", "Arith.Add")

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go svr.ServeListener(l)
	t.Cleanup(func() { svr.Shutdown(time.Second) })

	require.Eventually(t, func() bool {
		instances, _ := reg.Discover(context.Background(), "add")
		for _, inst := range instances {
			if inst.Addr == l.Addr().String() {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
	return svr, l.Addr().String()
}

func newClient(t testing.TB, reg registry.Registry, opts ...Option) *Client {
	cli := NewClient(reg, opts...)
	t.Cleanup(func() { cli.Close() })
	return cli
}

func TestClientCall(t *testing.T) {
	for _, ct := range []codec.CodecType{codec.CodecTypeJSON, codec.CodecTypeCBOR} {
		t.Run(ct.String(), func(t *testing.T) {
			reg := registry.NewStaticRegistry(nil)
			startServer(t, reg)
			cli := newClient(t, reg, WithCodec(ct))

			var reply Reply
			require.NoError(t, cli.Call(context.Background(), "Arith.Add", &Args{A: 1, B: 2}, &reply))
			assert.Equal(t, 3, reply.Result)

			require.NoError(t, cli.Call(context.Background(), "add", &Args{A: 10, B: 20}, &reply))
			assert.Equal(t, 30, reply.Result)

			require.NoError(t, cli.Call(context.Background(), "Arith.Multiply", &Args{A: 3, B: 4}, &reply))
			assert.Equal(t, 12, reply.Result)
		})
	}
}

func TestClientCallErrors(t *testing.T) {
	reg := registry.NewStaticRegistry(nil)
	_, addr := startServer(t, reg)
	cli := newClient(t, reg)

	// Nothing serves this name.
	err := cli.Call(context.Background(), "Arith.Divide", &Args{}, nil)
	var rpcErr *types.Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, types.CodeMethodNotFound, rpcErr.Code)

	// Published, but not registered on the server.
	require.NoError(t, reg.Register(context.Background(), "ghost", registry.ServiceInstance{Addr: addr}, 0))
	err = cli.Call(context.Background(), "ghost", nil, nil)
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, types.CodeMethodNotFound, rpcErr.Code)

	err = cli.Call(context.Background(), "Arith.Add", "not args", nil)
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, types.CodeInvalidParams, rpcErr.Code)
}

func TestClientUnreachableInstance(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	l.Close()

	reg := registry.NewStaticRegistry([]string{addr}, "Arith.Add")
	cli := newClient(t, reg, WithDialTimeout(500*time.Millisecond))

	err = cli.Call(context.Background(), "Arith.Add", &Args{}, nil)
	var rpcErr *types.Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, types.CodeUnavailable, rpcErr.Code)
}

func TestClientConcurrent(t *testing.T) {
	reg := registry.NewStaticRegistry(nil)
	startServer(t, reg)
	cli := newClient(t, reg, WithPoolSize(4))

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			var reply Reply
			if assert.NoError(t, cli.Call(context.Background(), "Arith.Add", &Args{A: n, B: n}, &reply)) {
				assert.Equal(t, 2*n, reply.Result)
			}
		}(i)
	}
	wg.Wait()
}

func TestClientLoadBalancing(t *testing.T) {
	reg := registry.NewStaticRegistry(nil)
	startServer(t, reg)
	startServer(t, reg)

	instances, err := reg.Discover(context.Background(), "Arith.Add")
	require.NoError(t, err)
	require.Len(t, instances, 2)

	for _, strategy := range []string{"round_robin", "weighted_random", "consistent_hash"} {
		bal, err := loadbalance.New(strategy)
		require.NoError(t, err)
		cli := newClient(t, reg, WithBalancer(bal))
		for i := 0; i < 10; i++ {
			var reply Reply
			require.NoError(t, cli.Call(context.Background(), "Arith.Add", &Args{A: i, B: 1}, &reply), strategy)
			assert.Equal(t, i+1, reply.Result, strategy)
		}
	}
}

// After one instance shuts down and deregisters, calls keep flowing to the other.
func TestClientFailover(t *testing.T) {
	reg := registry.NewStaticRegistry(nil)
	first, _ := startServer(t, reg)
	startServer(t, reg)
	cli := newClient(t, reg, WithMiddleware(middleware.Retry(2, 10*time.Millisecond, zap.NewNop())))

	var reply Reply
	for i := 0; i < 4; i++ {
		require.NoError(t, cli.Call(context.Background(), "Arith.Add", &Args{A: 1, B: 1}, &reply))
	}

	require.NoError(t, first.Shutdown(time.Second))
	for i := 0; i < 4; i++ {
		require.NoError(t, cli.Call(context.Background(), "Arith.Add", &Args{A: 2, B: 2}, &reply))
		assert.Equal(t, 4, reply.Result)
	}
}

func TestClientGoAndNotify(t *testing.T) {
	reg := registry.NewStaticRegistry(nil)
	svr, addr := startServer(t, reg)

	got := make(chan types.Params, 1)
	svr.AddNotificationSimple("log", calls.NotificationSimpleFunc(func(p types.Params) { got <- p }))
	require.NoError(t, reg.Register(context.Background(), "log", registry.ServiceInstance{Addr: addr}, 0))

	cli := newClient(t, reg)

	params, err := types.NewParams(&Args{A: 5, B: 6})
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	v, err := future.Await(ctx, cli.Go(ctx, "add", params))
	require.NoError(t, err)
	var reply Reply
	require.NoError(t, v.Decode(&reply))
	assert.Equal(t, 11, reply.Result)

	require.NoError(t, cli.Notify(ctx, "log", []string{"hello"}))
	select {
	case p := <-got:
		assert.JSONEq(t, `["hello"]`, string(p))
	case <-time.After(2 * time.Second):
		t.Fatal("notification not delivered")
	}
}

func TestClientClosed(t *testing.T) {
	reg := registry.NewStaticRegistry(nil)
	startServer(t, reg)
	cli := NewClient(reg)
	require.NoError(t, cli.Close())

	err := cli.Call(context.Background(), "Arith.Add", &Args{}, nil)
	var rpcErr *types.Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, types.CodeUnavailable, rpcErr.Code)
}

func BenchmarkSerialCall(b *testing.B) {
	reg := registry.NewStaticRegistry(nil)
	startServer(b, reg)
	cli := newClient(b, reg)

	args := &Args{A: 1, B: 2}
	var reply Reply
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := cli.Call(context.Background(), "Arith.Add", args, &reply); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkConcurrentCall(b *testing.B) {
	reg := registry.NewStaticRegistry(nil)
	startServer(b, reg)
	cli := newClient(b, reg, WithPoolSize(8))

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		args := &Args{A: 1, B: 2}
		var reply Reply
		for pb.Next() {
			if err := cli.Call(context.Background(), "Arith.Add", args, &reply); err != nil {
				b.Error(err)
				return
			}
		}
	})
}
