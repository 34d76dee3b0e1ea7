package coordinator

import (
	"time"

	"github.com/dusk-indust/coordinate/internal/logging"
	"github.com/dusk-indust/coordinate/internal/session"
	"github.com/dusk-indust/coordinate/internal/store"
	"github.com/dusk-indust/coordinate/internal/strategy"
)

// ResourceEstimator derives a session's resource utilization from its final
// snapshot and efficiency.
type ResourceEstimator func(snap session.Snapshot, efficiency float64) float64

// Options configures a Coordinator. Use the With* helpers with New.
type Options struct {
	// Logger receives structured logs. Defaults to a no-op logger.
	Logger logging.Logger

	// AgentTimeout bounds each agent Process call. Zero disables the bound.
	AgentTimeout time.Duration

	// Strategy holds the duration-estimator constants and the fan-out limit.
	Strategy strategy.Config

	// CommunicationOverheadRatio is the share of wall-clock time reported as
	// communication overhead.
	CommunicationOverheadRatio float64

	// ConflictResolutionUnit is the time charged per recorded conflict.
	ConflictResolutionUnit time.Duration

	// ResourceUtilization estimates resource usage. The default reports
	// efficiency.
	ResourceUtilization ResourceEstimator

	// RebalanceThreshold is the multiple of the even-split average above
	// which an agent is overloaded.
	RebalanceThreshold float64

	// DefaultAgentCapacity is the resource capacity of each registered
	// agent, in assigned subtasks. Zero means unbounded.
	DefaultAgentCapacity int

	// InboxSize bounds each agent's network inbox.
	InboxSize int

	// Archive receives sessions removed by Cleanup. Nil disables archiving.
	Archive store.Store
}

// Option mutates Options.
type Option func(*Options)

// DefaultOptions returns the stock configuration.
func DefaultOptions() Options {
	return Options{
		Logger:                     logging.NoOp{},
		AgentTimeout:               5 * time.Minute,
		Strategy:                   strategy.DefaultConfig(),
		CommunicationOverheadRatio: 0.1,
		ConflictResolutionUnit:     10 * time.Millisecond,
		ResourceUtilization:        func(_ session.Snapshot, efficiency float64) float64 { return efficiency },
		RebalanceThreshold:         1.5,
	}
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

// WithAgentTimeout sets the per-call agent timeout.
func WithAgentTimeout(d time.Duration) Option {
	return func(o *Options) { o.AgentTimeout = d }
}

// WithStrategyConfig replaces the strategy constants.
func WithStrategyConfig(cfg strategy.Config) Option {
	return func(o *Options) { o.Strategy = cfg }
}

// WithMaxParallel caps concurrent dispatches for parallel execution.
func WithMaxParallel(n int) Option {
	return func(o *Options) { o.Strategy.MaxParallel = n }
}

// WithMetrics sets the communication-overhead ratio and the per-conflict
// resolution time.
func WithMetrics(ratio float64, unit time.Duration) Option {
	return func(o *Options) {
		o.CommunicationOverheadRatio = ratio
		o.ConflictResolutionUnit = unit
	}
}

// WithResourceEstimator replaces the resource-utilization estimator.
func WithResourceEstimator(fn ResourceEstimator) Option {
	return func(o *Options) { o.ResourceUtilization = fn }
}

// WithRebalanceThreshold sets the overload multiple.
func WithRebalanceThreshold(f float64) Option {
	return func(o *Options) { o.RebalanceThreshold = f }
}

// WithAgentCapacity sets the default per-agent resource capacity.
func WithAgentCapacity(n int) Option {
	return func(o *Options) { o.DefaultAgentCapacity = n }
}

// WithInboxSize sets the network inbox size.
func WithInboxSize(n int) Option {
	return func(o *Options) { o.InboxSize = n }
}

// WithArchive sets the store that Cleanup archives into.
func WithArchive(s store.Store) Option {
	return func(o *Options) { o.Archive = s }
}
