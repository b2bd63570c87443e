package transport

import (
	"github.com/benbjohnson/clock"
	"github.com/hashicorp/go-metrics"
	"go.uber.org/zap"

	"github.com/skshohagmiah/sockit/pkg/socket"
)

type options struct {
	logger       *zap.Logger
	metricSink   metrics.MetricSink
	metricLabels []metrics.Label
	binder       *socket.Binder
	clock        clock.Clock
}

// Option configures collaborators shared by servers and clients.
type Option func(*options) error

func newOptions(opts []Option) (*options, error) {
	o := &options{}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.metricSink == nil {
		o.metricSink = metrics.Default()
	}
	if o.binder == nil {
		o.binder = socket.NewBinder()
	}
	if o.clock == nil {
		o.clock = clock.New()
	}
	return o, nil
}

// WithLogger sets the logger used by the built-in observers. Defaults to a
// no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) error {
		o.logger = logger
		return nil
	}
}

// WithMetricSink chooses where counters are emitted. Defaults to the
// go-metrics global.
func WithMetricSink(sink metrics.MetricSink) Option {
	return func(o *options) error {
		if sink == nil {
			sink = &metrics.BlackholeSink{}
		}
		o.metricSink = sink
		return nil
	}
}

// WithMetricLabels adds static labels to every metric.
func WithMetricLabels(labels []metrics.Label) Option {
	return func(o *options) error {
		o.metricLabels = labels
		return nil
	}
}

// WithBinder shares a Binder between several handlers, so their ids are
// unique across all of them.
func WithBinder(binder *socket.Binder) Option {
	return func(o *options) error {
		if binder == nil {
			return ErrInvalidConfig
		}
		o.binder = binder
		return nil
	}
}

// WithClock replaces the clock driving the idle timeout checks.
func WithClock(c clock.Clock) Option {
	return func(o *options) error {
		o.clock = c
		return nil
	}
}
