package stock

import (
	"time"

	"go.uber.org/zap"
)

// DefaultExpiryWindowDays is how far ahead EXPIRING_SOON looks.
const DefaultExpiryWindowDays = 3

// DefaultSweepParallelism bounds concurrent evaluations during a sweep.
const DefaultSweepParallelism = 4

// Observer receives engine events. observability.Metrics implements it.
type Observer interface {
	EntryApplied(entry Entry)
	ApplyRejected(t TxType, err error)
	AlertRaised(alert Alert)
	AlertFailed(id IngredientID, err error)
	SweepCompleted(report SweepReport, took time.Duration)
}

// NopObserver discards every event.
type NopObserver struct{}

func (NopObserver) EntryApplied(Entry)                        {}
func (NopObserver) ApplyRejected(TxType, error)               {}
func (NopObserver) AlertRaised(Alert)                         {}
func (NopObserver) AlertFailed(IngredientID, error)           {}
func (NopObserver) SweepCompleted(SweepReport, time.Duration) {}

// Option configures the ledger, the engines and the sweeper.
type Option func(*options)

type options struct {
	logger      *zap.Logger
	clock       Clock
	ids         IDGenerator
	observer    Observer
	locks       *KeyedMutex
	window      int
	parallelism int
}

func buildOptions(opts []Option) options {
	o := options{
		clock:       SystemClock{},
		ids:         NewID,
		observer:    NopObserver{},
		window:      DefaultExpiryWindowDays,
		parallelism: DefaultSweepParallelism,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.locks == nil {
		o.locks = NewKeyedMutex()
	}
	return o
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

func WithClock(c Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

func WithIDGenerator(g IDGenerator) Option {
	return func(o *options) {
		if g != nil {
			o.ids = g
		}
	}
}

func WithObserver(obs Observer) Option {
	return func(o *options) {
		if obs != nil {
			o.observer = obs
		}
	}
}

// WithLocks shares one KeyedMutex between components that write the same ledger.
func WithLocks(k *KeyedMutex) Option {
	return func(o *options) { o.locks = k }
}

// WithExpiryWindow sets the EXPIRING_SOON horizon in days. Negative values are ignored.
func WithExpiryWindow(days int) Option {
	return func(o *options) {
		if days >= 0 {
			o.window = days
		}
	}
}

func WithSweepParallelism(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.parallelism = n
		}
	}
}
