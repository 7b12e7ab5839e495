// Package temporal defines the time representations events are stamped with.
package temporal

import "fmt"

// Time is the capability set a time representation needs: total ordering,
// arithmetic, and a smallest representable increment (a tick).
type Time[T any] interface {
	comparable
	fmt.Stringer

	// Compare returns -1, 0 or +1.
	Compare(other T) int
	Add(other T) T
	Sub(other T) T
	// Ticks expresses the value as a count of the smallest increment.
	Ticks() int64
	// FromTicks is the inverse of Ticks. The receiver's value is ignored.
	FromTicks(n int64) T
	// Max is the largest representable value. The receiver's value is ignored.
	Max() T
}

// Zero returns the zero value of T.
func Zero[T Time[T]]() T {
	var z T
	return z
}

// Tick returns the smallest representable increment of T.
func Tick[T Time[T]]() T {
	var z T
	return z.FromTicks(1)
}

// Max returns the largest representable value of T.
func Max[T Time[T]]() T {
	var z T
	return z.Max()
}

// IsMax reports whether t is the largest representable value.
func IsMax[T Time[T]](t T) bool {
	return t == t.Max()
}

// Earlier returns the earlier of a and b.
func Earlier[T Time[T]](a, b T) T {
	if b.Compare(a) < 0 {
		return b
	}
	return a
}

// Later returns the later of a and b.
func Later[T Time[T]](a, b T) T {
	if b.Compare(a) > 0 {
		return b
	}
	return a
}

// Less reports whether a is strictly before b.
func Less[T Time[T]](a, b T) bool {
	return a.Compare(b) < 0
}
