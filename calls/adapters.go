package calls

import (
	"rpccore/future"
	"rpccore/types"
)

// MethodSimpleFunc lets a plain function act as a MethodSimple.
type MethodSimpleFunc func(params types.Params) future.Future[types.Value]

func (f MethodSimpleFunc) Call(params types.Params) future.Future[types.Value] {
	return f(params)
}

// MethodFunc lets a plain function act as a Method.
type MethodFunc[M Metadata] func(params types.Params, meta M) BoxFuture

func (f MethodFunc[M]) Call(params types.Params, meta M) BoxFuture {
	return f(params, meta)
}

// NotificationSimpleFunc lets a plain function act as a NotificationSimple.
type NotificationSimpleFunc func(params types.Params)

func (f NotificationSimpleFunc) Execute(params types.Params) {
	f(params)
}

// NotificationFunc lets a plain function act as a Notification.
type NotificationFunc[M Metadata] func(params types.Params, meta M)

func (f NotificationFunc[M]) Execute(params types.Params, meta M) {
	f(params, meta)
}

// SyncMethod adapts a function whose result is available immediately. The
// returned future is already settled when Call returns.
func SyncMethod(fn func(params types.Params) (types.Value, error)) MethodSimpleFunc {
	return func(params types.Params) future.Future[types.Value] {
		return future.FromResult(fn(params))
	}
}

// SyncMethodWithMeta is SyncMethod for context-aware functions.
func SyncMethodWithMeta[M Metadata](fn func(params types.Params, meta M) (types.Value, error)) MethodFunc[M] {
	return func(params types.Params, meta M) BoxFuture {
		return future.FromResult(fn(params, meta))
	}
}

// IgnoreMeta lifts a simple method into a context-aware one that drops the
// metadata, so both kinds can share one table.
func IgnoreMeta[M Metadata](m MethodSimple) Method[M] {
	return MethodFunc[M](func(params types.Params, _ M) BoxFuture {
		return m.Call(params)
	})
}

// IgnoreMetaNotification is IgnoreMeta for notifications.
func IgnoreMetaNotification[M Metadata](n NotificationSimple) Notification[M] {
	return NotificationFunc[M](func(params types.Params, _ M) {
		n.Execute(params)
	})
}

var (
	_ MethodSimple         = MethodSimpleFunc(nil)
	_ Method[NoMeta]       = MethodFunc[NoMeta](nil)
	_ NotificationSimple   = NotificationSimpleFunc(nil)
	_ Notification[NoMeta] = NotificationFunc[NoMeta](nil)
)
