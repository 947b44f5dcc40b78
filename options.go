// options.go - functional-options configuration, modeled on
// eventloop/options.go's LoopOption pattern: a private mutable config
// struct, an exported option func type, and a resolve step that folds
// defaults with the supplied options once at construction time.
package lockfree

const (
	// defaultScanThreshold is the number of retired pointers a hazard
	// handle accumulates before it scans for reclaimable nodes.
	defaultScanThreshold = 100
	// defaultHazardsPerThread is the number of protect slots per hazard
	// handle. One is enough for every container here (each only ever
	// protects one node at a time per operation, as the Rust original's
	// HPBRManager::new(100, 1) call for the hash map does), but a spare
	// second slot leaves room for future two-pointer protocols without an
	// API change.
	defaultHazardsPerThread = 2
	// defaultMaxFailures is the hash trie's contention-driven forced-
	// expansion trigger: once one Insert call's CASes into empty cells have
	// failed more than this many times in total, every further failed CAS
	// expands the cell it targeted into an array interior even without a
	// genuine hash-prefix collision, to break up a contended slot.
	defaultMaxFailures = 10
)

// config is the resolved, immutable configuration shared by every
// container's constructor. Not every field matters to every container
// (maxFailures is hashtrie-only) but one struct keeps the option set
// uniform across Stack, Queue, SegQueue, and HashMap.
type config struct {
	scanThreshold    int
	hazardsPerThread int
	maxFailures      int
	recorder         Recorder
}

func defaultConfig() *config {
	return &config{
		scanThreshold:    defaultScanThreshold,
		hazardsPerThread: defaultHazardsPerThread,
		maxFailures:      defaultMaxFailures,
		recorder:         noopContainerRecorder{},
	}
}

// Option configures any container constructor in this package.
type Option func(*config)

// WithScanThreshold overrides how many retired pointers a hazard handle
// accumulates before scanning.
func WithScanThreshold(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.scanThreshold = n
		}
	}
}

// WithHazardsPerThread overrides the number of protect slots per hazard
// handle.
func WithHazardsPerThread(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.hazardsPerThread = n
		}
	}
}

// WithMetrics installs a Recorder shared by the hazard manager and the
// container's own structural counters.
func WithMetrics(r Recorder) Option {
	return func(c *config) {
		if r != nil {
			c.recorder = r
		}
	}
}

// WithMaxFailures overrides the hash trie's contention-driven forced-
// expansion trigger (default 10). Ignored by every container except
// HashMap.
func WithMaxFailures(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxFailures = n
		}
	}
}

func resolve(opts []Option) *config {
	c := defaultConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}
