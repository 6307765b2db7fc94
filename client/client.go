// Package client calls procedures on remote servers.
//
// A call discovers the instances serving the procedure name, lets the
// balancer pick one, and sends the request over a pooled multiplexed
// transport to that address.
package client

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"rpccore/future"
	"rpccore/loadbalance"
	"rpccore/message"
	"rpccore/middleware"
	"rpccore/registry"
	"rpccore/transport"
	"rpccore/types"
)

var ErrClientClosed = errors.New("client: closed")

type Client struct {
	registry registry.Registry
	opts     options
	handler  middleware.HandlerFunc

	mu     sync.Mutex
	pools  map[string]*pool
	closed bool
}

// NewClient creates a client resolving procedure names through reg.
func NewClient(reg registry.Registry, opts ...Option) *Client {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	c := &Client{
		registry: reg,
		opts:     o,
		pools:    make(map[string]*pool),
	}
	c.handler = middleware.Chain(o.middlewares...)(c.roundTrip)
	return c
}

// Call invokes method with args marshalled as params and decodes the result
// into reply. reply may be nil to discard the result.
func (c *Client) Call(ctx context.Context, method string, args any, reply any) error {
	params, err := types.NewParams(args)
	if err != nil {
		return errors.Wrap(err, "client: marshal args")
	}
	result, err := c.CallRaw(ctx, method, params)
	if err != nil {
		return err
	}
	if reply == nil {
		return nil
	}
	return errors.Wrap(result.Decode(reply), "client: decode result")
}

// CallRaw invokes method with raw params. Call-level failures are returned
// as *types.Error.
func (c *Client) CallRaw(ctx context.Context, method string, params types.Params) (types.Value, error) {
	resp := c.handler(ctx, &message.RPCMessage{Method: method, Params: params})
	if err := resp.Err(); err != nil {
		return nil, err
	}
	return resp.Result, nil
}

// Go starts a call and returns its future right away.
func (c *Client) Go(ctx context.Context, method string, params types.Params) future.Future[types.Value] {
	return future.Go(func() (types.Value, error) {
		return c.CallRaw(ctx, method, params)
	})
}

// Notify sends a notification to one instance serving method.
func (c *Client) Notify(ctx context.Context, method string, args any) error {
	params, err := types.NewParams(args)
	if err != nil {
		return errors.Wrap(err, "client: marshal args")
	}
	addr, err := c.pick(ctx, method)
	if err != nil {
		return err
	}
	t, p, err := c.transport(ctx, addr)
	if err != nil {
		return err
	}
	defer p.put(t)
	return t.Notify(ctx, method, params)
}

// roundTrip is the innermost handler of the call chain.
func (c *Client) roundTrip(ctx context.Context, req *message.RPCMessage) *message.RPCMessage {
	addr, err := c.pick(ctx, req.Method)
	if err != nil {
		return message.Failure(req.Method, types.AsError(err))
	}

	t, p, err := c.transport(ctx, addr)
	if err != nil {
		return message.Failure(req.Method, types.AsError(err))
	}
	defer p.put(t)

	resp, err := t.Call(ctx, req.Method, req.Params)
	if err != nil {
		var rpcErr *types.Error
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			return message.Failure(req.Method, types.RequestTimeout())
		case errors.As(err, &rpcErr):
			return message.Failure(req.Method, rpcErr)
		}
		return message.Failure(req.Method, types.Unavailable(err.Error()))
	}
	return resp
}

func (c *Client) pick(ctx context.Context, method string) (string, error) {
	instances, err := c.registry.Discover(ctx, method)
	if err != nil {
		return "", types.Unavailable(err.Error())
	}
	if len(instances) == 0 {
		return "", types.MethodNotFound()
	}

	var instance *registry.ServiceInstance
	if kb, ok := c.opts.balancer.(loadbalance.KeyedBalancer); ok {
		instance, err = kb.PickKey(method, instances)
	} else {
		instance, err = c.opts.balancer.Pick(instances)
	}
	if err != nil {
		return "", types.Unavailable(err.Error())
	}
	return instance.Addr, nil
}

func (c *Client) transport(ctx context.Context, addr string) (*transport.ClientTransport, *pool, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, nil, types.Unavailable(ErrClientClosed.Error())
	}
	p, ok := c.pools[addr]
	if !ok {
		p = newPool(addr, c.opts)
		c.pools[addr] = p
	}
	c.mu.Unlock()

	t, err := p.get(ctx)
	if err != nil {
		c.opts.logger.Warn("dial failed", zap.String("addr", addr), zap.Error(err))
		return nil, nil, types.Unavailable(err.Error())
	}
	return t, p, nil
}

// Close closes every pooled transport.
func (c *Client) Close() error {
	c.mu.Lock()
	pools := c.pools
	c.pools = make(map[string]*pool)
	c.closed = true
	c.mu.Unlock()

	var err error
	for _, p := range pools {
		err = multierr.Append(err, p.close())
	}
	return err
}
