package server

import (
	"sort"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"rpccore/calls"
	"rpccore/future"
	"rpccore/types"
)

// AddProcedure registers p under name, replacing any previous entry. Entries
// without a handler are refused and logged.
func (svr *Server[M]) AddProcedure(name string, p calls.RemoteProcedure[M]) {
	if !p.Valid() {
		svr.opts.logger.Warn("refusing procedure without handler", zap.String("method", name), zap.Stringer("kind", p.Kind()))
		return
	}
	svr.mu.Lock()
	defer svr.mu.Unlock()
	svr.procedures[name] = p
}

// AddMethod registers a context-aware method.
func (svr *Server[M]) AddMethod(name string, m calls.Method[M]) {
	svr.AddProcedure(name, calls.NewMethod(m))
}

// AddMethodSimple registers a method that ignores metadata.
func (svr *Server[M]) AddMethodSimple(name string, m calls.MethodSimple) {
	svr.AddProcedure(name, calls.NewMethod(calls.IgnoreMeta[M](m)))
}

// AddNotification registers a context-aware notification.
func (svr *Server[M]) AddNotification(name string, n calls.Notification[M]) {
	svr.AddProcedure(name, calls.NewNotification(n))
}

// AddNotificationSimple registers a notification that ignores metadata.
func (svr *Server[M]) AddNotificationSimple(name string, n calls.NotificationSimple) {
	svr.AddProcedure(name, calls.NewNotification(calls.IgnoreMetaNotification[M](n)))
}

// AddAlias makes alias resolve to whatever target resolves to. The target
// need not exist yet; chains are checked when they are resolved.
func (svr *Server[M]) AddAlias(alias, target string) {
	svr.AddProcedure(alias, calls.NewAlias[M](target))
}

// RemoveProcedure deletes the entry registered under name.
func (svr *Server[M]) RemoveProcedure(name string) {
	svr.mu.Lock()
	defer svr.mu.Unlock()
	delete(svr.procedures, name)
}

// Procedure returns the entry registered under name without following aliases.
func (svr *Server[M]) Procedure(name string) (calls.RemoteProcedure[M], bool) {
	svr.mu.RLock()
	defer svr.mu.RUnlock()
	p, ok := svr.procedures[name]
	return p, ok
}

// Names lists registered names in sorted order.
func (svr *Server[M]) Names() []string {
	svr.mu.RLock()
	names := make([]string, 0, len(svr.procedures))
	for name := range svr.procedures {
		names = append(names, name)
	}
	svr.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Resolve follows aliases from name until it reaches a method or a
// notification. It fails with a method-not-found *types.Error when a name in
// the chain is missing, types.ErrAliasCycle when the chain loops, and
// types.ErrAliasDepth when it is longer than the hop limit.
func (svr *Server[M]) Resolve(name string) (calls.RemoteProcedure[M], error) {
	svr.mu.RLock()
	defer svr.mu.RUnlock()

	seen := make(map[string]struct{}, 2)
	current := name
	for hops := 0; ; hops++ {
		p, ok := svr.procedures[current]
		if !ok {
			return calls.RemoteProcedure[M]{}, types.MethodNotFound()
		}
		target, isAlias := p.Alias()
		if !isAlias {
			if !p.Valid() {
				return calls.RemoteProcedure[M]{}, types.MethodNotFound()
			}
			return p, nil
		}
		if hops >= svr.opts.maxAliasHops {
			return calls.RemoteProcedure[M]{}, errors.Wrapf(types.ErrAliasDepth, "resolving %q", name)
		}
		seen[current] = struct{}{}
		if _, loop := seen[target]; loop {
			return calls.RemoteProcedure[M]{}, errors.Wrapf(types.ErrAliasCycle, "resolving %q via %q", name, target)
		}
		current = target
	}
}

// Invoke resolves name and calls it as a method. Resolution failures, and
// names that resolve to a notification, come back as a failed future.
func (svr *Server[M]) Invoke(name string, params types.Params, meta M) future.Future[types.Value] {
	p, err := svr.Resolve(name)
	if err != nil {
		return future.Failed[types.Value](err)
	}
	m, ok := p.Method()
	if !ok {
		return future.Failed[types.Value](types.MethodNotFound())
	}
	f := m.Call(params, meta)
	if f == nil {
		return future.Failed[types.Value](errors.Errorf("method %q returned no future", name))
	}
	return f
}

// Notify resolves name and executes it without producing a result. A method
// reached this way is still called; its outcome is logged and dropped.
// Notify reports whether name resolved.
func (svr *Server[M]) Notify(name string, params types.Params, meta M) bool {
	logger := svr.opts.logger.With(zap.String("method", name))

	p, err := svr.Resolve(name)
	if err != nil {
		logger.Debug("notification dropped", zap.Error(err))
		return false
	}

	svr.execute(p, params, meta, logger)
	return true
}

// execute runs a resolved entry as a notification. Handler panics are
// recovered and logged.
func (svr *Server[M]) execute(p calls.RemoteProcedure[M], params types.Params, meta M, logger *zap.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("notification handler panicked", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()

	if n, ok := p.Notification(); ok {
		n.Execute(params, meta)
		return
	}

	if m, ok := p.Method(); ok {
		if f := m.Call(params, meta); f != nil {
			svr.discard(f, logger)
		}
	}
}

// discard drains a method outcome nobody will read.
func (svr *Server[M]) discard(f future.Future[types.Value], logger *zap.Logger) {
	report := func() {
		if _, err := f.Result(); err != nil {
			logger.Debug("discarded method error", zap.Error(err))
		}
	}
	select {
	case <-f.Done():
		report()
	default:
		go func() {
			<-f.Done()
			report()
		}()
	}
}
