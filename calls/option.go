package calls

// Option is metadata that may be absent.
type Option[T any] struct {
	value T
	ok    bool
}

// Some wraps a present value.
func Some[T any](v T) Option[T] {
	return Option[T]{value: v, ok: true}
}

// None is the absent value.
func None[T any]() Option[T] {
	return Option[T]{}
}

// Get returns the value and whether it is present.
func (o Option[T]) Get() (T, bool) {
	return o.value, o.ok
}

func (o Option[T]) IsSome() bool {
	return o.ok
}

// OrElse returns the value or def when absent.
func (o Option[T]) OrElse(def T) T {
	if o.ok {
		return o.value
	}
	return def
}
