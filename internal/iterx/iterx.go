package iterx

import (
	"context"
	"iter"
)

// Seq is a one-shot sequence whose failure, if any, is reported by Err
// once iteration has stopped.
type Seq[T any] interface {
	Each(context.Context) iter.Seq[T]
	Err() error
}

// Find returns the first value matching the predicate, stopping the sequence early.
func Find[T any](i iter.Seq[T], match func(T) bool) (zero T, _ bool) {
	for v := range i {
		if match(v) {
			return v, true
		}
	}

	return zero, false
}

// Collect drains the sequence, returning its values and terminal error.
func Collect[T any](ctx context.Context, s Seq[T]) (ret []T, err error) {
	for v := range s.Each(ctx) {
		ret = append(ret, v)
	}

	return ret, s.Err()
}
