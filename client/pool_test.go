package client

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rpccore/registry"
)

func TestPoolNeverExceedsSize(t *testing.T) {
	_, addr := startServer(t, registry.NewStaticRegistry(nil))
	opts := defaultOptions()
	opts.poolSize = 2
	p := newPool(addr, opts)
	defer p.close()

	var (
		wg      sync.WaitGroup
		maxSeen atomic.Int32
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			tr, err := p.get(ctx)
			if !assert.NoError(t, err) {
				return
			}
			n := int32(p.size())
			for {
				cur := maxSeen.Load()
				if n <= cur || maxSeen.CompareAndSwap(cur, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			p.put(tr)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, maxSeen.Load(), int32(2))
	p.mu.Lock()
	assert.LessOrEqual(t, len(p.all), 2)
	p.mu.Unlock()
}

// A failed dial gives its slot back, so a caller waiting for one gets to dial.
func TestPoolFailedDialFreesSlot(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	l.Close()

	opts := defaultOptions()
	opts.poolSize = 1
	opts.dialTimeout = 500 * time.Millisecond
	p := newPool(addr, opts)

	errs := make(chan error, 3)
	for i := 0; i < 3; i++ {
		go func() {
			_, err := p.get(context.Background())
			errs <- err
		}()
	}
	for i := 0; i < 3; i++ {
		select {
		case err := <-errs:
			assert.Error(t, err)
		case <-time.After(3 * time.Second):
			t.Fatal("get blocked after a failed dial")
		}
	}
	assert.Zero(t, p.size())
}

// A transport that closed while idle is replaced.
func TestPoolReplacesClosedTransport(t *testing.T) {
	_, addr := startServer(t, registry.NewStaticRegistry(nil))
	opts := defaultOptions()
	opts.poolSize = 1
	p := newPool(addr, opts)
	defer p.close()

	first, err := p.get(context.Background())
	require.NoError(t, err)
	p.put(first)
	first.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	second, err := p.get(ctx)
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.False(t, second.Closed())
	assert.Equal(t, 1, p.size())
	p.put(second)
}
