package calls

import (
	"fmt"
	"strconv"
)

// Kind tells which variant a RemoteProcedure holds.
type Kind uint8

const (
	KindMethod Kind = iota + 1
	KindNotification
	KindAlias
)

func (k Kind) String() string {
	switch k {
	case KindMethod:
		return "method"
	case KindNotification:
		return "notification"
	case KindAlias:
		return "alias"
	}
	return "unknown"
}

// RemoteProcedure is a registry entry: a method, a notification or an alias
// naming another entry. Entries are immutable; copying one shares the
// underlying handler rather than duplicating it.
type RemoteProcedure[M Metadata] struct {
	kind         Kind
	method       Method[M]
	notification Notification[M]
	alias        string
}

// NewMethod wraps a method handler.
func NewMethod[M Metadata](m Method[M]) RemoteProcedure[M] {
	return RemoteProcedure[M]{kind: KindMethod, method: m}
}

// NewNotification wraps a notification handler.
func NewNotification[M Metadata](n Notification[M]) RemoteProcedure[M] {
	return RemoteProcedure[M]{kind: KindNotification, notification: n}
}

// NewAlias redirects to the entry registered under target.
func NewAlias[M Metadata](target string) RemoteProcedure[M] {
	return RemoteProcedure[M]{kind: KindAlias, alias: target}
}

// Kind returns the variant. The zero RemoteProcedure has no valid kind.
func (p RemoteProcedure[M]) Kind() Kind {
	return p.kind
}

// Method returns the handler if p is a method with a non-nil handler.
func (p RemoteProcedure[M]) Method() (Method[M], bool) {
	return p.method, p.kind == KindMethod && p.method != nil
}

// Notification returns the handler if p is a notification with a non-nil
// handler.
func (p RemoteProcedure[M]) Notification() (Notification[M], bool) {
	return p.notification, p.kind == KindNotification && p.notification != nil
}

// Valid reports whether p can be dispatched: a method or notification with a
// handler, or an alias.
func (p RemoteProcedure[M]) Valid() bool {
	_, m := p.Method()
	_, n := p.Notification()
	return m || n || p.kind == KindAlias
}

// Alias returns the target name if p is an alias.
func (p RemoteProcedure[M]) Alias() (string, bool) {
	return p.alias, p.kind == KindAlias
}

// String never exposes handler internals.
func (p RemoteProcedure[M]) String() string {
	switch p.kind {
	case KindMethod:
		return "<method>"
	case KindNotification:
		return "<notification>"
	case KindAlias:
		return "alias => " + strconv.Quote(p.alias)
	}
	return "<invalid>"
}

func (p RemoteProcedure[M]) GoString() string {
	return p.String()
}

// Format makes %v, %+v, %#v and %s all render like String.
func (p RemoteProcedure[M]) Format(f fmt.State, verb rune) {
	switch verb {
	case 'v', 's':
		fmt.Fprint(f, p.String())
	case 'q':
		fmt.Fprint(f, strconv.Quote(p.String()))
	default:
		fmt.Fprintf(f, "%%!%c(calls.RemoteProcedure=%s)", verb, p.String())
	}
}
