// Package lockfree provides a family of lock-free and wait-free concurrent
// containers — Stack, Queue, SegQueue, and HashMap — built on a shared
// pointer-tagging primitive (internal/markable) and a shared hazard-pointer
// reclamation manager (internal/hazard).
//
// # Containers
//
// [Stack] and [Queue] are the textbook Treiber stack and Michael-Scott
// queue. [SegQueue] is a segmented k-FIFO queue: it relaxes strict FIFO
// ordering so that any of the current head segment's up-to-k elements may
// be the next one dequeued, trading order for scalability under
// contention. [HashMap] is a wait-free hash trie: insert/get/remove/update
// make progress by either completing or deepening the trie, never by
// blocking.
//
// # Reclamation
//
// Every container retires unlinked nodes through a per-instance
// [internal/hazard.Manager] rather than relying solely on the garbage
// collector: a goroutine that has read a node pointer but not yet
// dereferenced it can still race a concurrent remove/retire, and without
// hazard protection it can dereference a since-reused address (the classic
// ABA class of bug), even though Go's GC guarantees the bytes themselves
// are never freed prematurely.
//
// # Choosing k for SegQueue
//
// k must be >= 1. At k == 1 SegQueue behaves like [Queue] but slower
// (every enqueue/dequeue contends over a single slot instead of a
// strict-FIFO linked list); use [Queue] directly in that case.
package lockfree
