package treepool

import (
	"log/slog"
	"time"

	"github.com/hupe1980/treepool/resource"
	"golang.org/x/time/rate"
)

const (
	// DefaultCapacity is the arena size used when WithCapacity is not given.
	DefaultCapacity = 32 << 10

	defaultFailureLogBurst = 10
)

// DefaultFailureLogRate is the steady rate of allocation failure warnings.
var DefaultFailureLogRate = rate.Every(100 * time.Millisecond)

type options struct {
	capacity         int
	maxIdentifiers   int
	offHeap          bool
	metricsCollector MetricsCollector
	logger           *Logger
	resources        *resource.Controller
	failureLogRate   rate.Limit
	failureLogBurst  int
}

// Option configures NewContext.
type Option func(*options)

// WithCapacity sets the arena size in bytes. The arena never grows; when it
// is full, handle operations degrade to allocation failure sentinels.
func WithCapacity(bytes int) Option {
	return func(o *options) {
		o.capacity = bytes
	}
}

// WithMaxIdentifiers bounds the number of simultaneously live nodes.
// The default is (capacity + 16) / 16, the most records the arena can hold,
// counting the reserve.
func WithMaxIdentifiers(n int) Option {
	return func(o *options) {
		o.maxIdentifiers = n
	}
}

// WithOffHeap backs the arena with an anonymous memory mapping instead of
// the Go heap, keeping large arenas out of the garbage collector's view.
func WithOffHeap(enabled bool) Option {
	return func(o *options) {
		o.offHeap = enabled
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &treepool.BasicMetricsCollector{}
//	ctx, _ := treepool.NewContext(reg, treepool.WithMetricsCollector(metrics))
//	// ... build trees ...
//	stats := metrics.GetStats()
//	fmt.Printf("Substitutions: %d\n", stats.SubstitutionCount)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := treepool.NewJSONLogger(slog.LevelInfo)
//	ctx, _ := treepool.NewContext(reg, treepool.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithResourceController makes the context reserve its arena capacity and
// one context slot from rc. Contexts sharing a controller share its limits.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.resources = rc
	}
}

// WithFailureLogRate throttles allocation failure warnings to r per second
// with bursts of up to burst entries. Use rate.Inf to log every failure.
func WithFailureLogRate(r rate.Limit, burst int) Option {
	return func(o *options) {
		o.failureLogRate = r
		o.failureLogBurst = burst
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		capacity:         DefaultCapacity,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
		failureLogRate:   DefaultFailureLogRate,
		failureLogBurst:  defaultFailureLogBurst,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.metricsCollector == nil {
		o.metricsCollector = NoopMetricsCollector{}
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	if o.failureLogBurst <= 0 {
		o.failureLogBurst = 1
	}
	return o
}
