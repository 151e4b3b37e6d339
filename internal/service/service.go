// Package service contains the custody business logic: the tag registry, the
// aggregation engine, the stage orchestrators and the read side (trace,
// transactions, summary). Services decide; repositories persist. Every write
// runs inside one Transactor unit so a rejection leaves no partial effect.
package service

import (
	"context"
	"crypto/rand"
	"errors"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pkordes/hidetrace/backend/internal/domain"
	"github.com/pkordes/hidetrace/backend/internal/repo"
)

// Transactor runs a unit of work against the custody store.
// *repo.TxRunner is the production implementation.
type Transactor interface {
	InTx(ctx context.Context, fn func(repo.Stores) error) error
	ReadOnly(ctx context.Context, fn func(repo.Stores) error) error
}

var _ Transactor = (*repo.TxRunner)(nil)

// ConfirmationSource is the read-only slaughter confirmation feed.
type ConfirmationSource interface {
	Confirmation(ctx context.Context, id int64) (domain.Confirmation, error)
}

// Hooks observes custody outcomes. outcome is "accepted", the rejection
// reason, or "error" for unclassified failures.
type Hooks interface {
	TransitionObserved(action domain.Action, outcome string)
	AggregationObserved(tags int, outcome string)
	RegistrationObserved(tags int, outcome string)
}

type nopHooks struct{}

func (nopHooks) TransitionObserved(domain.Action, string) {}
func (nopHooks) AggregationObserved(int, string)          {}
func (nopHooks) RegistrationObserved(int, string)         {}

// DefaultCodeAttempts bounds how many random codes are tried before giving up.
const DefaultCodeAttempts = 16

type options struct {
	logger       *slog.Logger
	now          func() time.Time
	hooks        Hooks
	random       io.Reader
	codeAttempts int
}

// Option configures a service.
type Option func(*options)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithHooks registers outcome observers such as Prometheus counters.
func WithHooks(h Hooks) Option {
	return func(o *options) { o.hooks = h }
}

// WithRandom replaces the randomness used for code generation.
func WithRandom(r io.Reader) Option {
	return func(o *options) { o.random = r }
}

// WithCodeAttempts bounds tag and product code generation.
func WithCodeAttempts(n int) Option {
	return func(o *options) { o.codeAttempts = n }
}

func newOptions(opts []Option) options {
	o := options{
		logger:       slog.Default(),
		now:          time.Now,
		hooks:        nopHooks{},
		random:       rand.Reader,
		codeAttempts: DefaultCodeAttempts,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.codeAttempts < 1 {
		o.codeAttempts = 1
	}
	return o
}

// clock returns the current instant truncated to microseconds, the precision
// Postgres keeps, so timestamps compare equal after a round trip.
func (o options) clock() time.Time {
	return o.now().UTC().Truncate(time.Microsecond)
}

// outcomeOf labels an operation result for hooks and logs.
func outcomeOf(err error) string {
	if err == nil {
		return "accepted"
	}
	if r := domain.ReasonOf(err); r != "" {
		return string(r)
	}
	if domain.KindOf(err) != nil {
		return "rejected"
	}
	return "error"
}

// logResult writes one line per custody operation: info when accepted, debug
// for typed rejections, error for anything unclassified.
func (o options) logResult(ctx context.Context, msg string, err error, attrs ...any) {
	switch {
	case err == nil:
		o.logger.InfoContext(ctx, msg, attrs...)
	case domain.KindOf(err) != nil:
		attrs = append(attrs, "kind", domain.KindOf(err).Error(), "reason", string(domain.ReasonOf(err)), "error", err)
		o.logger.DebugContext(ctx, msg+" rejected", attrs...)
	case errors.Is(err, context.Canceled):
		o.logger.DebugContext(ctx, msg+" canceled", attrs...)
	default:
		attrs = append(attrs, "error", err)
		o.logger.ErrorContext(ctx, msg+" failed", attrs...)
	}
}

var tracer = otel.Tracer("github.com/pkordes/hidetrace/backend/internal/service")

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// endSpan records err on span and ends it. Typed rejections are normal
// outcomes and do not mark the span as failed.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.SetAttributes(attribute.String("custody.outcome", outcomeOf(err)))
		if domain.KindOf(err) == nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}
	span.End()
}
