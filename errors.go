package lockfree

import "fmt"

// DuplicateKeyError is returned by HashMap.Insert when the key (by hash,
// per dataLeaf's hash-only identity — see hashmap.go) is already present.
// It carries the caller's rejected key/value back by value rather than
// discarding them, so the caller's unused payload isn't silently dropped.
type DuplicateKeyError[K, V any] struct {
	Key   K
	Value V
}

func (e *DuplicateKeyError[K, V]) Error() string {
	return fmt.Sprintf("lockfree: key already present: %v", e.Key)
}

// InvariantError wraps a violated implementation invariant: a condition
// the design treats as a bug, not a runtime condition, so it aborts the
// process instead of returning an error. It is
// never returned to a caller — it is the payload of a panic raised by
// invariantf, given a typed shape purely so a recover()-ing test harness
// can inspect what failed instead of pattern-matching a message string.
type InvariantError struct {
	Message string
}

func (e *InvariantError) Error() string {
	return "lockfree: invariant violation: " + e.Message
}

// invariantf panics with an *InvariantError. Used for states treated as
// bugs rather than runtime conditions: a hash trie insert descending past
// the maximum depth, a SegQueue constructed with k < 1, and a failure to
// create an OpenTelemetry instrument in NewOTelRecorder.
func invariantf(format string, args ...any) {
	panic(&InvariantError{Message: fmt.Sprintf(format, args...)})
}
