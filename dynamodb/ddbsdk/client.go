// Package ddbsdk is a thin client over the DynamoDB API: typed item actions
// built with the expression builder, paged queries with opaque cursors, and a
// batch orchestrator that chunks, retries and reports partial failures.
package ddbsdk

import (
	"context"
	"time"

	"github.com/acksell/larder/dynamodb/ddbstore"
	"github.com/acksell/larder/dynamodb/table"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/acksell/larder/dynamodb/ddbsdk"

// Client issues requests against a DynamoDB-compatible store.
type Client struct {
	awsddb AWSDynamoClientV2

	log     *zap.Logger
	metrics Metrics
	tracer  trace.Tracer
	breaker *gobreaker.CircuitBreaker

	batch   BatchConfig
	backoff BackoffFunc
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		c.log = l
	}
}

// WithMetrics reports batch outcomes and breaker transitions to m.
func WithMetrics(m Metrics) Option {
	return func(c *Client) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithTracer overrides the tracer taken from the global otel provider.
func WithTracer(t trace.Tracer) Option {
	return func(c *Client) {
		c.tracer = t
	}
}

// WithBatchConfig sets chunk sizes, retry limits and delays of batch calls.
// Zero fields keep their defaults.
func WithBatchConfig(cfg BatchConfig) Option {
	return func(c *Client) {
		c.batch = cfg.withDefaults()
	}
}

// WithCustomBackoff replaces the delay before each batch retry.
func WithCustomBackoff(fn BackoffFunc) Option {
	return func(c *Client) {
		c.backoff = fn
	}
}

// WithExponentialBackoff uses a capped, jittered exponential backoff.
// See [ExponentialBackoff].
func WithExponentialBackoff(base time.Duration, multiplier float64, cap time.Duration) Option {
	return WithCustomBackoff(ExponentialBackoff(base, multiplier, cap))
}

// WithBreaker guards every store call with a circuit breaker.
func WithBreaker(s BreakerSettings) Option {
	return func(c *Client) {
		c.breaker = newBreaker(s, c)
	}
}

// New creates a client over awsddb.
func New(awsddb AWSDynamoClientV2, opts ...Option) *Client {
	c := &Client{
		awsddb:  awsddb,
		log:     zap.NewNop(),
		metrics: nopMetrics{},
		batch:   DefaultBatchConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.backoff == nil {
		c.backoff = DoublingBackoff(c.batch.BaseDelay)
	}
	if c.tracer == nil {
		c.tracer = otel.Tracer(tracerName)
	}
	return c
}

// NewMock returns a client over an in-memory ddbstore holding defs.
func NewMock(defs ...table.TableDefinition) *Client {
	store, err := ddbstore.New(ddbstore.StoreOptions{InMemory: true}, defs...)
	if err != nil {
		panic(err)
	}
	return New(store)
}

// call runs fn through the circuit breaker, if any, and maps store errors.
func (c *Client) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if c.breaker == nil {
		return mapErr(op, fn(ctx))
	}
	_, err := c.breaker.Execute(func() (any, error) {
		return nil, fn(ctx)
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		c.log.Warn("store call rejected by circuit breaker", zap.String("op", op), zap.Error(err))
		return mapErr(op, ErrStoreUnavailable)
	}
	return mapErr(op, err)
}
