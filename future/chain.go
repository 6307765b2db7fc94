package future

import (
	"errors"
	"fmt"
)

var (
	ErrPending  = errors.New("future: not settled")
	ErrNilError = errors.New("future: rejected with nil error")
	ErrNilValue = errors.New("future: nil future")
)

// PanicError carries a value recovered from a panicking computation.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("future: panic: %v", e.Value)
}

// Map transforms the resolved value of f. Errors pass through untouched.
// If f has already settled, fn runs synchronously and no goroutine is started.
func Map[T, U any](f Future[T], fn func(T) (U, error)) Future[U] {
	return Then(f, func(v T) Future[U] {
		return FromResult(fn(v))
	})
}

// MapErr transforms the error of f. Values pass through untouched.
func MapErr[T any](f Future[T], fn func(error) error) Future[T] {
	return chain(f, func(v T, err error) Future[T] {
		if err != nil {
			return Failed[T](fn(err))
		}
		return Ready(v)
	})
}

// Then chains a second computation onto the resolved value of f.
func Then[T, U any](f Future[T], fn func(T) Future[U]) Future[U] {
	return chain(f, func(v T, err error) Future[U] {
		if err != nil {
			return Failed[U](err)
		}
		return fn(v)
	})
}

func chain[T, U any](f Future[T], next func(T, error) Future[U]) Future[U] {
	if f == nil {
		return Failed[U](ErrNilValue)
	}
	select {
	case <-f.Done():
		return guard(next, f)
	default:
	}

	out := NewPromise[U]()
	go func() {
		<-f.Done()
		g := guard(next, f)
		<-g.Done()
		out.Settle(g.Result())
	}()
	return out
}

func guard[T, U any](next func(T, error) Future[U], f Future[T]) (g Future[U]) {
	defer func() {
		if r := recover(); r != nil {
			g = Failed[U](&PanicError{Value: r})
		}
	}()
	g = next(f.Result())
	if g == nil {
		g = Failed[U](ErrNilValue)
	}
	return g
}
