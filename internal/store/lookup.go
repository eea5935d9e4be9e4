package store

import "errors"

var (
	ErrUnavailable     = errors.New("store: persistent store unavailable")
	ErrSoldOut         = errors.New("store: event sold out")
	ErrCheckInConflict = errors.New("store: ticket check-in state changed concurrently")
	ErrNotFound        = errors.New("store: record not found")
)

// Result classifies a lookup so callers can decide on a fallback without
// inspecting driver errors.
type Result int

const (
	Found Result = iota
	NotFound
	Unavailable
)

func (r Result) String() string {
	switch r {
	case Found:
		return "found"
	case NotFound:
		return "not_found"
	case Unavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Lookup is the outcome of reading one record. Value is set only when
// Result is Found; Err only when Result is Unavailable.
type Lookup[T any] struct {
	Result Result
	Value  *T
	Err    error
}

func FoundValue[T any](v *T) Lookup[T] {
	return Lookup[T]{Result: Found, Value: v}
}

func Missing[T any]() Lookup[T] {
	return Lookup[T]{Result: NotFound}
}

func Failed[T any](err error) Lookup[T] {
	return Lookup[T]{Result: Unavailable, Err: err}
}
