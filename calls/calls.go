// Package calls defines the contracts a handler satisfies to be registered
// with a dispatcher: methods, which resolve to a result, and notifications,
// which do not. Either kind may take per-call metadata.
//
// The package knows nothing about wire formats, routing or transports. A
// handler hands back a future; whoever dispatched the call drives it.
package calls

import (
	"rpccore/future"
	"rpccore/types"
)

// Metadata is per-call context threaded into context-aware handlers, for
// example the identity of the connection a call arrived on. Any Go type
// qualifies: values copy cheaply, pointers share, and nothing borrowed can
// dangle. Option[T], *T and struct{} are accepted like any bare T.
type Metadata = any

// NoMeta is the unit metadata for handlers that need no context.
type NoMeta = struct{}

// BoxFuture is the single future type every context-aware method returns, so
// handlers of different concrete types fit in one table.
type BoxFuture = future.Future[types.Value]

// MethodSimple is a method that takes no metadata.
//
// Call must not block; any waiting happens inside the returned future, which
// settles exactly once.
type MethodSimple interface {
	Call(params types.Params) future.Future[types.Value]
}

// Method is a method that receives metadata with every call.
type Method[M Metadata] interface {
	Call(params types.Params, meta M) BoxFuture
}

// NotificationSimple is a fire-and-forget handler that takes no metadata.
// Failures are the handler's to log; nothing is reported back.
type NotificationSimple interface {
	Execute(params types.Params)
}

// Notification is a fire-and-forget handler that receives metadata.
type Notification[M Metadata] interface {
	Execute(params types.Params, meta M)
}
