// Package future is the asynchronous-computation handle handed out by
// handlers and transports.
//
// A Future settles exactly once, to either a value or an error. Settling is
// observed through Done; Result is only meaningful after Done is closed.
// Nothing in this package blocks the caller except Await.
package future

import (
	"context"
	"sync"
)

// Future is a computation that has not necessarily finished yet.
type Future[T any] interface {
	// Done is closed once the future has settled.
	Done() <-chan struct{}
	// Result returns the settled outcome. Before Done is closed it returns
	// the zero value and ErrPending.
	Result() (T, error)
}

// Promise is a Future settled by its owner. Only the first Resolve or
// Reject has an effect.
type Promise[T any] struct {
	once  sync.Once
	done  chan struct{}
	value T
	err   error
}

// NewPromise returns an unsettled promise.
func NewPromise[T any]() *Promise[T] {
	return &Promise[T]{done: make(chan struct{})}
}

// Resolve settles the promise with v. It reports whether this call settled it.
func (p *Promise[T]) Resolve(v T) bool {
	return p.settle(v, nil)
}

// Reject settles the promise with err. A nil err is replaced by ErrNilError.
func (p *Promise[T]) Reject(err error) bool {
	if err == nil {
		err = ErrNilError
	}
	var zero T
	return p.settle(zero, err)
}

// Settle resolves or rejects depending on err.
func (p *Promise[T]) Settle(v T, err error) bool {
	if err != nil {
		return p.Reject(err)
	}
	return p.Resolve(v)
}

func (p *Promise[T]) settle(v T, err error) bool {
	settled := false
	p.once.Do(func() {
		p.value, p.err = v, err
		close(p.done)
		settled = true
	})
	return settled
}

func (p *Promise[T]) Done() <-chan struct{} {
	return p.done
}

func (p *Promise[T]) Result() (T, error) {
	select {
	case <-p.done:
		return p.value, p.err
	default:
		var zero T
		return zero, ErrPending
	}
}

// Ready returns a future already resolved to v.
func Ready[T any](v T) Future[T] {
	p := NewPromise[T]()
	p.Resolve(v)
	return p
}

// Failed returns a future already rejected with err.
func Failed[T any](err error) Future[T] {
	p := NewPromise[T]()
	p.Reject(err)
	return p
}

// FromResult returns a settled future holding (v, err).
func FromResult[T any](v T, err error) Future[T] {
	p := NewPromise[T]()
	p.Settle(v, err)
	return p
}

// Go runs fn on a new goroutine and returns a future of its outcome. A panic
// in fn rejects the future with a *PanicError.
func Go[T any](fn func() (T, error)) Future[T] {
	p := NewPromise[T]()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				p.Reject(&PanicError{Value: r})
			}
		}()
		p.Settle(fn())
	}()
	return p
}

// Await blocks until f settles or ctx is done.
func Await[T any](ctx context.Context, f Future[T]) (T, error) {
	select {
	case <-f.Done():
		return f.Result()
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
