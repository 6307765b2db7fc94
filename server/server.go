// Package server routes incoming calls to registered procedures.
//
// A Server owns a table of calls.RemoteProcedure entries. Names are resolved
// through aliases, then the entry is called as a method or executed as a
// notification. The server is also the executor: it awaits method futures
// and writes their outcome back to the connection.
//
// Request processing pipeline:
//
//	Accept conn → handleConn (single goroutine reads frames)
//	  → for each request/notification: go handleFrame
//	    → Codec.Decode → Middleware Chain → dispatch (Invoke / Notify) → Codec.Encode → write response
package server

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"rpccore/calls"
	"rpccore/codec"
	"rpccore/future"
	"rpccore/message"
	"rpccore/middleware"
	"rpccore/protocol"
	"rpccore/registry"
	"rpccore/types"
)

var (
	ErrServerClosed    = errors.New("server: closed")
	ErrShutdownTimeout = errors.New("server: timeout waiting for in-flight requests")
)

// ConnInfo identifies the connection a call arrived on.
type ConnInfo struct {
	ID         uuid.UUID
	RemoteAddr net.Addr
	LocalAddr  net.Addr
}

// MetaExtractor builds the metadata handed to every call on a connection.
// It runs once per connection.
type MetaExtractor[M calls.Metadata] func(ConnInfo) M

// Server dispatches calls to procedures carrying metadata of type M.
type Server[M calls.Metadata] struct {
	opts    options
	extract MetaExtractor[M]

	mu         sync.RWMutex
	procedures map[string]calls.RemoteProcedure[M]

	middlewares []middleware.Middleware
	handler     middleware.HandlerFunc // chain around dispatchCall
	notifier    middleware.HandlerFunc // chain around dispatchNotification

	connMu    sync.Mutex
	listener  net.Listener
	conns     map[net.Conn]struct{}
	published []string

	wg       sync.WaitGroup // in-flight frames
	shutdown atomic.Bool
}

// NewServer creates a server with an empty procedure table. A nil extract
// hands every call the zero M.
func NewServer[M calls.Metadata](extract MetaExtractor[M], opts ...Option) *Server[M] {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if extract == nil {
		extract = func(ConnInfo) M {
			var zero M
			return zero
		}
	}
	return &Server[M]{
		opts:       o,
		extract:    extract,
		procedures: make(map[string]calls.RemoteProcedure[M]),
		conns:      make(map[net.Conn]struct{}),
	}
}

// Use appends a middleware. Middlewares must be added before serving starts.
func (svr *Server[M]) Use(mw middleware.Middleware) {
	svr.middlewares = append(svr.middlewares, mw)
}

// Serve listens on address and serves until Shutdown.
func (svr *Server[M]) Serve(network, address string) error {
	listener, err := net.Listen(network, address)
	if err != nil {
		return errors.Wrapf(err, "server: listen %s %s", network, address)
	}
	return svr.ServeListener(listener)
}

// ServeListener serves connections accepted from listener. It publishes the
// registered names to the configured registry first, and returns nil once
// Shutdown closes the listener.
func (svr *Server[M]) ServeListener(listener net.Listener) error {
	if svr.shutdown.Load() {
		listener.Close()
		return ErrServerClosed
	}

	svr.connMu.Lock()
	svr.listener = listener
	svr.connMu.Unlock()

	chain := middleware.Chain(svr.middlewares...)
	svr.handler = chain(svr.dispatchCall)
	svr.notifier = chain(svr.dispatchNotification)

	if err := svr.publish(listener.Addr().String()); err != nil {
		listener.Close()
		return err
	}

	svr.opts.logger.Info("serving", zap.Stringer("addr", listener.Addr()))
	for {
		conn, err := listener.Accept()
		if err != nil {
			if svr.shutdown.Load() {
				return nil
			}
			return errors.Wrap(err, "server: accept")
		}
		go svr.handleConn(conn)
	}
}

func (svr *Server[M]) publish(listenAddr string) error {
	reg := svr.opts.registry
	if reg == nil {
		return nil
	}
	addr := svr.opts.advertiseAddr
	if addr == "" {
		addr = listenAddr
	}

	names := svr.Names()
	for _, name := range names {
		err := reg.Register(context.Background(), name, registry.ServiceInstance{Addr: addr, Weight: 10}, svr.opts.ttl)
		if err != nil {
			return errors.Wrapf(err, "server: publish %q", name)
		}
	}

	svr.connMu.Lock()
	svr.opts.advertiseAddr = addr
	svr.published = names
	svr.connMu.Unlock()
	return nil
}

// handleConn reads frames sequentially and dispatches each on its own
// goroutine. Responses share a per-connection write lock.
func (svr *Server[M]) handleConn(conn net.Conn) {
	info := ConnInfo{ID: uuid.New(), RemoteAddr: conn.RemoteAddr(), LocalAddr: conn.LocalAddr()}
	logger := svr.opts.logger.With(zap.Stringer("conn", info.ID), zap.Stringer("remote", info.RemoteAddr))

	if !svr.track(conn) {
		conn.Close()
		return
	}
	defer svr.untrack(conn)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	meta := svr.extract(info)
	writeMu := &sync.Mutex{}
	logger.Debug("connection opened")

	for {
		header, body, err := protocol.Decode(conn)
		if err != nil {
			logger.Debug("connection closed", zap.Error(err))
			return
		}

		switch header.MsgType {
		case protocol.MsgTypeHeartbeat:
			continue
		case protocol.MsgTypeResponse:
			logger.Warn("unexpected response frame", zap.Uint32("seq", header.Seq))
			continue
		}

		if !svr.admit() {
			if header.MsgType == protocol.MsgTypeRequest {
				svr.reply(conn, writeMu, header, message.Failure("", types.Unavailable("server shutting down")), logger)
			}
			continue
		}
		go func() {
			defer svr.wg.Done()
			svr.handleFrame(ctx, header, body, meta, conn, writeMu, logger)
		}()
	}
}

// admit counts a frame as in flight unless Shutdown has begun. Shutdown takes
// connMu after setting the flag, so no Add can follow its Wait.
func (svr *Server[M]) admit() bool {
	svr.connMu.Lock()
	defer svr.connMu.Unlock()
	if svr.shutdown.Load() {
		return false
	}
	svr.wg.Add(1)
	return true
}

func (svr *Server[M]) handleFrame(ctx context.Context, header *protocol.Header, body []byte, meta M,
	conn net.Conn, writeMu *sync.Mutex, logger *zap.Logger) {
	cdc := codec.GetCodec(codec.CodecType(header.CodecType))
	req := &message.RPCMessage{}
	decodeErr := cdc.Decode(body, req)

	ctx = withMeta(ctx, meta)

	if header.MsgType == protocol.MsgTypeNotification {
		if decodeErr != nil {
			logger.Warn("undecodable notification", zap.Error(decodeErr))
			return
		}
		svr.notifier(ctx, req)
		return
	}

	var resp *message.RPCMessage
	switch {
	case decodeErr != nil:
		resp = message.Failure("", types.ParseError())
	case req.Method == "":
		resp = message.Failure("", types.InvalidRequest())
	default:
		resp = svr.handler(ctx, req)
	}
	if resp == nil {
		resp = message.Failure(req.Method, types.InternalError())
	}

	svr.reply(conn, writeMu, header, resp, logger)
}

// reply encodes resp with the request's codec and writes it as the response
// to header.
func (svr *Server[M]) reply(conn net.Conn, writeMu *sync.Mutex, header *protocol.Header, resp *message.RPCMessage, logger *zap.Logger) {
	cdc := codec.GetCodec(codec.CodecType(header.CodecType))
	result, err := cdc.Encode(resp)
	if err != nil {
		logger.Error("failed to encode response", zap.String("method", resp.Method), zap.Error(err))
		result, err = cdc.Encode(message.Failure(resp.Method, types.InternalError()))
		if err != nil {
			return
		}
	}

	replyHeader := protocol.Header{
		CodecType: header.CodecType,
		MsgType:   protocol.MsgTypeResponse,
		Seq:       header.Seq,
	}

	writeMu.Lock()
	defer writeMu.Unlock()
	if err := protocol.Encode(conn, &replyHeader, result); err != nil {
		logger.Warn("failed to write response", zap.Uint32("seq", header.Seq), zap.Error(err))
	}
}

// dispatchCall is the innermost handler for requests: invoke, then await the
// future for as long as the request context lives.
func (svr *Server[M]) dispatchCall(ctx context.Context, req *message.RPCMessage) *message.RPCMessage {
	meta, _ := metaFrom[M](ctx)
	value, err := future.Await(ctx, svr.Invoke(req.Method, req.Params, meta))
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		if errors.Is(err, context.DeadlineExceeded) {
			return message.Failure(req.Method, types.RequestTimeout())
		}
		return message.Failure(req.Method, types.Unavailable("connection closed"))
	}
	return message.NewResponse(req.Method, value, err)
}

// dispatchNotification is the innermost handler for notifications. The
// returned envelope only feeds the middleware chain; it is never written.
func (svr *Server[M]) dispatchNotification(ctx context.Context, req *message.RPCMessage) *message.RPCMessage {
	meta, _ := metaFrom[M](ctx)
	if !svr.Notify(req.Method, req.Params, meta) {
		return message.Failure(req.Method, types.MethodNotFound())
	}
	return &message.RPCMessage{Method: req.Method}
}

func (svr *Server[M]) track(conn net.Conn) bool {
	svr.connMu.Lock()
	defer svr.connMu.Unlock()
	if svr.shutdown.Load() {
		return false
	}
	svr.conns[conn] = struct{}{}
	return true
}

func (svr *Server[M]) untrack(conn net.Conn) {
	svr.connMu.Lock()
	delete(svr.conns, conn)
	svr.connMu.Unlock()
	conn.Close()
}

// Shutdown stops the server gracefully:
//  1. refuse new frames and withdraw published names so clients stop routing here
//  2. close the listener
//  3. wait for in-flight frames, up to timeout
//  4. close the remaining connections
func (svr *Server[M]) Shutdown(timeout time.Duration) error {
	if !svr.shutdown.CompareAndSwap(false, true) {
		return ErrServerClosed
	}

	svr.connMu.Lock()
	listener := svr.listener
	published := svr.published
	addr := svr.opts.advertiseAddr
	svr.connMu.Unlock()

	var err error
	if reg := svr.opts.registry; reg != nil && len(published) > 0 {
		g, gctx := errgroup.WithContext(context.Background())
		for _, name := range published {
			g.Go(func() error {
				return reg.Deregister(gctx, name, addr)
			})
		}
		err = multierr.Append(err, g.Wait())
	}

	if listener != nil {
		if closeErr := listener.Close(); closeErr != nil && !errors.Is(closeErr, net.ErrClosed) {
			err = multierr.Append(err, closeErr)
		}
	}

	done := make(chan struct{})
	go func() {
		svr.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		err = multierr.Append(err, ErrShutdownTimeout)
	}

	svr.connMu.Lock()
	for conn := range svr.conns {
		conn.Close()
	}
	svr.connMu.Unlock()
	return err
}
