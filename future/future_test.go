package future

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromiseSettlesOnce(t *testing.T) {
	p := NewPromise[int]()

	_, err := p.Result()
	require.ErrorIs(t, err, ErrPending)

	assert.True(t, p.Resolve(1))
	assert.False(t, p.Resolve(2))
	assert.False(t, p.Reject(errors.New("late")))

	v, err := p.Result()
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestPromiseConcurrentSettle(t *testing.T) {
	p := NewPromise[int]()

	var wg sync.WaitGroup
	wins := make(chan int, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if p.Resolve(n) {
				wins <- n
			}
		}(i)
	}
	wg.Wait()
	close(wins)

	require.Len(t, wins, 1)
	winner := <-wins
	v, err := p.Result()
	require.NoError(t, err)
	assert.Equal(t, winner, v)
}

func TestRejectNil(t *testing.T) {
	_, err := Failed[int](nil).Result()
	require.ErrorIs(t, err, ErrNilError)
}

func TestGo(t *testing.T) {
	f := Go(func() (string, error) { return "ok", nil })
	v, err := Await(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, "ok", v)

	f = Go(func() (string, error) { panic("kaboom") })
	_, err = Await(context.Background(), f)
	var pe *PanicError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "kaboom", pe.Value)
}

func TestAwaitContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := Await[int](ctx, NewPromise[int]())
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMapReady(t *testing.T) {
	f := Map(Ready(2), func(v int) (int, error) { return v * 10, nil })

	// Settled input maps synchronously.
	select {
	case <-f.Done():
	default:
		t.Fatal("expected settled future")
	}
	v, err := f.Result()
	require.NoError(t, err)
	assert.Equal(t, 20, v)
}

func TestMapPending(t *testing.T) {
	p := NewPromise[int]()
	f := Map[int, string](p, func(v int) (string, error) {
		if v < 0 {
			return "", errors.New("negative")
		}
		return "positive", nil
	})

	p.Resolve(-1)
	_, err := Await(context.Background(), f)
	require.EqualError(t, err, "negative")
}

func TestThenPropagatesError(t *testing.T) {
	boom := errors.New("boom")
	called := false
	f := Then(Failed[int](boom), func(int) Future[int] {
		called = true
		return Ready(1)
	})

	_, err := Await(context.Background(), f)
	require.ErrorIs(t, err, boom)
	assert.False(t, called)
}

func TestThenNilFuture(t *testing.T) {
	f := Then(Ready(1), func(int) Future[int] { return nil })
	_, err := f.Result()
	require.ErrorIs(t, err, ErrNilValue)
}

func TestThenPanics(t *testing.T) {
	p := NewPromise[int]()
	f := Then[int, int](p, func(int) Future[int] { panic("bad") })
	p.Resolve(1)

	_, err := Await(context.Background(), f)
	var pe *PanicError
	require.ErrorAs(t, err, &pe)
}

func TestMapErr(t *testing.T) {
	wrapped := errors.New("wrapped")
	f := MapErr(Failed[int](errors.New("inner")), func(error) error { return wrapped })
	_, err := f.Result()
	require.ErrorIs(t, err, wrapped)

	v, err := MapErr(Ready(3), func(error) error { return wrapped }).Result()
	require.NoError(t, err)
	assert.Equal(t, 3, v)
}
