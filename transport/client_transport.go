// Package transport multiplexes concurrent calls over one connection.
//
// Each request gets a sequence id and a promise. A single reader goroutine
// (recvLoop) decodes responses and settles the promise registered under the
// response's sequence id, so responses may arrive in any order.
//
//	goroutine-1 ──Send(seq=1)──┐
//	goroutine-2 ──Send(seq=2)──┼──→ single conn ──→ Server
//	goroutine-3 ──Send(seq=3)──┘
//
//	recvLoop:  ←── response(seq=2) → pending[2].Resolve(resp) → goroutine-2 wakes up
package transport

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"rpccore/codec"
	"rpccore/future"
	"rpccore/message"
	"rpccore/protocol"
	"rpccore/types"
)

// DefaultHeartbeatInterval is how often an idle transport probes its peer.
const DefaultHeartbeatInterval = 30 * time.Second

var ErrClosed = errors.New("transport: closed")

type ResponseFuture = future.Future[*message.RPCMessage]

// ClientTransport manages one multiplexed connection.
type ClientTransport struct {
	conn   net.Conn
	codec  codec.Codec
	logger *zap.Logger

	sending sync.Mutex // whole frames only; interleaved writes corrupt the stream
	seq     uint32     // guarded by sending
	pending sync.Map   // map[uint32]*future.Promise[*message.RPCMessage]

	closed    atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
	err       error // why the transport closed; set before done is closed
}

// NewClientTransport wraps conn and starts the receive and heartbeat loops.
// A non-positive heartbeat disables heartbeats.
func NewClientTransport(conn net.Conn, codecType codec.CodecType, heartbeat time.Duration, logger *zap.Logger) *ClientTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &ClientTransport{
		conn:   conn,
		codec:  codec.GetCodec(codecType),
		logger: logger.With(zap.Stringer("remote", conn.RemoteAddr())),
		done:   make(chan struct{}),
	}
	go t.recvLoop()
	if heartbeat > 0 {
		go t.heartbeatLoop(heartbeat)
	}
	return t
}

// Dial connects to addr and wraps the connection.
func Dial(ctx context.Context, addr string, codecType codec.CodecType, heartbeat time.Duration, logger *zap.Logger) (*ClientTransport, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "transport: dial %s", addr)
	}
	return NewClientTransport(conn, codecType, heartbeat, logger), nil
}

// Send writes a request and returns a future of its response. The future
// settles with the response envelope; a call-level failure is inside the
// envelope, while a broken connection rejects the future.
func (t *ClientTransport) Send(ctx context.Context, method string, params types.Params) (ResponseFuture, error) {
	body, err := t.codec.Encode(&message.RPCMessage{Method: method, Params: params})
	if err != nil {
		return nil, errors.Wrap(err, "transport: encode request")
	}

	t.sending.Lock()
	defer t.sending.Unlock()

	if t.closed.Load() {
		return nil, t.closeErr()
	}

	t.seq++
	seq := t.seq

	// Register before writing so recvLoop cannot miss a fast response.
	promise := future.NewPromise[*message.RPCMessage]()
	t.pending.Store(seq, promise)
	if t.closed.Load() {
		// shutdown may have swept pending before the Store landed.
		t.pending.Delete(seq)
		return nil, t.closeErr()
	}

	if deadline, ok := ctx.Deadline(); ok {
		t.conn.SetWriteDeadline(deadline)
		defer t.conn.SetWriteDeadline(time.Time{})
	}

	header := protocol.Header{
		CodecType: byte(t.codec.Type()),
		MsgType:   protocol.MsgTypeRequest,
		Seq:       seq,
	}
	if err := protocol.Encode(t.conn, &header, body); err != nil {
		t.pending.Delete(seq)
		t.Close()
		return nil, err
	}
	return promise, nil
}

// Call sends a request and waits for its response or ctx.
func (t *ClientTransport) Call(ctx context.Context, method string, params types.Params) (*message.RPCMessage, error) {
	f, err := t.Send(ctx, method, params)
	if err != nil {
		return nil, err
	}
	return future.Await(ctx, f)
}

// Notify writes a notification frame. There is no response.
func (t *ClientTransport) Notify(ctx context.Context, method string, params types.Params) error {
	body, err := t.codec.Encode(&message.RPCMessage{Method: method, Params: params})
	if err != nil {
		return errors.Wrap(err, "transport: encode notification")
	}

	t.sending.Lock()
	defer t.sending.Unlock()
	if t.closed.Load() {
		return t.closeErr()
	}

	if deadline, ok := ctx.Deadline(); ok {
		t.conn.SetWriteDeadline(deadline)
		defer t.conn.SetWriteDeadline(time.Time{})
	}

	header := protocol.Header{
		CodecType: byte(t.codec.Type()),
		MsgType:   protocol.MsgTypeNotification,
	}
	if err := protocol.Encode(t.conn, &header, body); err != nil {
		t.Close()
		return err
	}
	return nil
}

// recvLoop is the only reader of the connection; frame boundaries can only be
// parsed sequentially.
func (t *ClientTransport) recvLoop() {
	for {
		header, body, err := protocol.Decode(t.conn)
		if err != nil {
			t.shutdown(err)
			return
		}
		if header.MsgType != protocol.MsgTypeResponse {
			continue
		}

		resp := &message.RPCMessage{}
		if err := codec.GetCodec(codec.CodecType(header.CodecType)).Decode(body, resp); err != nil {
			resp = message.Failure("", types.ParseError())
		}

		if p, ok := t.pending.LoadAndDelete(header.Seq); ok {
			p.(*future.Promise[*message.RPCMessage]).Resolve(resp)
		} else {
			t.logger.Debug("response for unknown sequence", zap.Uint32("seq", header.Seq))
		}
	}
}

// heartbeatLoop keeps an idle connection from being reaped by the peer.
func (t *ClientTransport) heartbeatLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
		}

		header := &protocol.Header{MsgType: protocol.MsgTypeHeartbeat, CodecType: byte(t.codec.Type())}
		t.sending.Lock()
		err := protocol.Encode(t.conn, header, nil)
		t.sending.Unlock()
		if err != nil {
			t.shutdown(err)
			return
		}
	}
}

// shutdown closes the connection once and rejects every pending call.
func (t *ClientTransport) shutdown(cause error) {
	t.closeOnce.Do(func() {
		t.err = cause
		t.closed.Store(true)
		close(t.done)
		t.conn.Close()

		t.pending.Range(func(key, value any) bool {
			value.(*future.Promise[*message.RPCMessage]).Reject(t.closeErr())
			t.pending.Delete(key)
			return true
		})
		t.logger.Debug("transport closed", zap.Error(cause))
	})
}

func (t *ClientTransport) closeErr() error {
	<-t.done
	if t.err == nil || errors.Is(t.err, ErrClosed) {
		return types.Unavailable(ErrClosed.Error())
	}
	return types.Unavailable(t.err.Error())
}

// Close closes the connection. Pending calls fail with an unavailable error.
func (t *ClientTransport) Close() error {
	t.shutdown(ErrClosed)
	return nil
}

// Closed reports whether the transport can no longer send.
func (t *ClientTransport) Closed() bool {
	return t.closed.Load()
}

// Done is closed when the transport shuts down.
func (t *ClientTransport) Done() <-chan struct{} {
	return t.done
}

// Conn returns the underlying connection.
func (t *ClientTransport) Conn() net.Conn {
	return t.conn
}
