package client

import (
	"context"
	"sync"

	"rpccore/transport"
)

// pool holds up to poolSize transports to one address. Transports are
// created lazily and replaced once they close. A transport is lent to one
// call at a time and returned by put.
type pool struct {
	addr string
	opts options

	// slots holds one token per open or dialing transport, so a dial is
	// counted before it starts and a dropped transport frees its slot for
	// callers already waiting.
	slots chan struct{}
	idle  chan *transport.ClientTransport

	mu     sync.Mutex
	all    []*transport.ClientTransport
	closed bool
}

func newPool(addr string, opts options) *pool {
	return &pool{
		addr:  addr,
		opts:  opts,
		slots: make(chan struct{}, opts.poolSize),
		idle:  make(chan *transport.ClientTransport, opts.poolSize),
	}
}

func (p *pool) get(ctx context.Context) (*transport.ClientTransport, error) {
	for {
		select {
		case t := <-p.idle:
			if t.Closed() {
				p.forget(t)
				continue
			}
			return t, nil
		default:
		}

		select {
		case t := <-p.idle:
			if t.Closed() {
				p.forget(t)
				continue
			}
			return t, nil
		case p.slots <- struct{}{}:
			return p.dial(ctx)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// dial runs with a slot held and gives it back on failure.
func (p *pool) dial(ctx context.Context) (*transport.ClientTransport, error) {
	dialCtx, cancel := context.WithTimeout(ctx, p.opts.dialTimeout)
	defer cancel()

	t, err := transport.Dial(dialCtx, p.addr, p.opts.codecType, p.opts.heartbeat, p.opts.logger)
	if err != nil {
		<-p.slots
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		t.Close()
		<-p.slots
		return nil, ErrClientClosed
	}
	p.all = append(p.all, t)
	return t, nil
}

func (p *pool) put(t *transport.ClientTransport) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed || t.Closed() {
		t.Close()
		p.forget(t)
		return
	}
	// idle has room for every slot, so this never blocks.
	p.idle <- t
}

// forget drops t and frees its slot. Unknown transports are ignored.
func (p *pool) forget(t *transport.ClientTransport) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, cur := range p.all {
		if cur == t {
			p.all = append(p.all[:i], p.all[i+1:]...)
			<-p.slots
			return
		}
	}
}

// size reports how many transports are open or being dialed.
func (p *pool) size() int {
	return len(p.slots)
}

func (p *pool) close() error {
	p.mu.Lock()
	all := p.all
	p.all = nil
	p.closed = true
	p.mu.Unlock()

	for _, t := range all {
		t.Close()
		<-p.slots
	}
	return nil
}
