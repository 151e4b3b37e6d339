package service

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/pkordes/hidetrace/backend/internal/domain"
	"github.com/pkordes/hidetrace/backend/internal/repo"
)

// Trace is the public provenance of one key. A tag trace sets Tag (and
// Product when the tag is linked); a product trace sets Product and Tags.
// History holds every ledger entry naming the tag or product, oldest first.
type Trace struct {
	Tag     *domain.Tag
	Product *domain.Product
	Tags    []domain.Tag
	History []domain.Entry
}

// Tracer answers trace lookups. Traces are public and need no principal.
type Tracer struct {
	tx   Transactor
	opts options
}

// NewTracer constructs a Tracer.
func NewTracer(tx Transactor, opts ...Option) *Tracer {
	return &Tracer{tx: tx, opts: newOptions(opts)}
}

// GetTagTrace resolves key as a product code (when it has a product code's
// shape), then as a tag code, then as a stamp code.
func (t *Tracer) GetTagTrace(ctx context.Context, key string) (tr Trace, err error) {
	ctx, span := startSpan(ctx, "Tracer.GetTagTrace", attribute.String("custody.key", key))
	defer func() { endSpan(span, err) }()

	err = t.tx.ReadOnly(ctx, func(s repo.Stores) error {
		code := domain.NormalizeKey(key)
		if isProductKey(code) {
			p, err := s.Products.GetByCode(ctx, code)
			switch {
			case err == nil:
				tr, err = productTrace(ctx, s, p)
				return err
			case !errors.Is(err, domain.ErrNotFound):
				return err
			}
		}
		var err error
		tr, err = tagTrace(ctx, s, key)
		return err
	})
	if err != nil {
		t.opts.logResult(ctx, "trace lookup", err, "key", key)
		return Trace{}, fmt.Errorf("service.Tracer.GetTagTrace: %w", err)
	}
	return tr, nil
}

func tagTrace(ctx context.Context, s repo.Stores, key string) (Trace, error) {
	res, err := resolveTag(ctx, s.Tags, key)
	if err != nil {
		return Trace{}, err
	}
	history, err := s.Ledger.HistoryForTag(ctx, res.tag.Code)
	if err != nil {
		return Trace{}, err
	}
	tr := Trace{Tag: &res.tag, History: history}
	if res.tag.Linked() {
		p, err := s.Products.GetByCode(ctx, res.tag.Garment.ProductCode)
		if err != nil {
			return Trace{}, err
		}
		tr.Product = &p
	}
	return tr, nil
}

func productTrace(ctx context.Context, s repo.Stores, p domain.Product) (Trace, error) {
	tags, err := s.Tags.ListByProduct(ctx, p.Code)
	if err != nil {
		return Trace{}, err
	}
	history, err := s.Ledger.HistoryForProduct(ctx, p.Code)
	if err != nil {
		return Trace{}, err
	}
	return Trace{Product: &p, Tags: tags, History: history}, nil
}

func isProductKey(code string) bool {
	if len(code) != domain.ProductCodeLength {
		return false
	}
	for _, r := range code {
		if (r < '0' || r > '9') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}
