package service

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/multierr"

	"github.com/pkordes/hidetrace/backend/internal/domain"
	"github.com/pkordes/hidetrace/backend/internal/repo"
)

// Aggregate is a product together with the tags linked by one call.
type Aggregate struct {
	Product domain.Product
	Tags    []domain.Tag
}

// AggregationEngine merges tags into garment products. Every batch is
// all-or-nothing: if one tag is ineligible, no tag and no product changes.
type AggregationEngine struct {
	tx   Transactor
	opts options
}

// NewAggregationEngine constructs an AggregationEngine.
func NewAggregationEngine(tx Transactor, opts ...Option) *AggregationEngine {
	return &AggregationEngine{tx: tx, opts: newOptions(opts)}
}

// CreateProduct stores a product with no tags yet.
func (e *AggregationEngine) CreateProduct(ctx context.Context, p domain.Principal, spec domain.ProductSpec) (product domain.Product, err error) {
	ctx, span := startSpan(ctx, "AggregationEngine.CreateProduct")
	defer func() { endSpan(span, err) }()

	if err := domain.Authorize(p, domain.RoleGarment); err != nil {
		return domain.Product{}, err
	}
	err = e.tx.InTx(ctx, func(s repo.Stores) error {
		var err error
		product, err = e.createProduct(ctx, s, p, spec, e.opts.clock())
		return err
	})
	e.opts.logResult(ctx, "product created", err, "product", product.Code, "user", p.UserID)
	if err != nil {
		return domain.Product{}, fmt.Errorf("service.AggregationEngine.CreateProduct: %w", err)
	}
	return product, nil
}

// CreateGarmentAggregate creates a product from spec and links every tag in
// keys to it, dispatching each from the garment stage.
func (e *AggregationEngine) CreateGarmentAggregate(ctx context.Context, p domain.Principal, keys []string, spec domain.ProductSpec) (agg Aggregate, err error) {
	ctx, span := startSpan(ctx, "AggregationEngine.CreateGarmentAggregate", attribute.Int("custody.tags", len(keys)))
	defer func() { endSpan(span, err) }()

	if err := domain.Authorize(p, domain.RoleGarment); err != nil {
		return Aggregate{}, err
	}
	err = e.tx.InTx(ctx, func(s repo.Stores) error {
		at := e.opts.clock()
		// Validate the spec and every tag before the first write.
		if _, err := spec.Build(p.UserID, at); err != nil {
			return err
		}
		tags, err := e.eligible(ctx, s, keys, at)
		if err != nil {
			return err
		}
		product, err := e.createProduct(ctx, s, p, spec, at)
		if err != nil {
			return err
		}
		linked, err := e.link(ctx, s, p, product, tags, at)
		if err != nil {
			return err
		}
		agg = Aggregate{Product: product, Tags: linked}
		return nil
	})
	e.opts.hooks.AggregationObserved(len(keys), outcomeOf(err))
	e.opts.logResult(ctx, "garment aggregate created", err, "product", agg.Product.Code, "tags", len(keys), "user", p.UserID)
	if err != nil {
		return Aggregate{}, fmt.Errorf("service.AggregationEngine.CreateGarmentAggregate: %w", err)
	}
	return agg, nil
}

// ExtendProduct links more tags to an existing product, propagating the
// product's attributes onto each.
func (e *AggregationEngine) ExtendProduct(ctx context.Context, p domain.Principal, productCode string, keys []string) (agg Aggregate, err error) {
	ctx, span := startSpan(ctx, "AggregationEngine.ExtendProduct",
		attribute.String("custody.product", productCode), attribute.Int("custody.tags", len(keys)))
	defer func() { endSpan(span, err) }()

	if err := domain.Authorize(p, domain.RoleGarment); err != nil {
		return Aggregate{}, err
	}
	err = e.tx.InTx(ctx, func(s repo.Stores) error {
		var err error
		agg, err = e.extendWith(ctx, s, p, productCode, keys, e.opts.clock())
		return err
	})
	e.opts.hooks.AggregationObserved(len(keys), outcomeOf(err))
	e.opts.logResult(ctx, "product extended", err, "product", productCode, "tags", len(keys), "user", p.UserID)
	if err != nil {
		return Aggregate{}, fmt.Errorf("service.AggregationEngine.ExtendProduct: %w", err)
	}
	return agg, nil
}

// extendWith runs inside the caller's transaction so a stage orchestrator can
// dispatch a single tag into an existing product.
func (e *AggregationEngine) extendWith(ctx context.Context, s repo.Stores, p domain.Principal, productCode string, keys []string, at time.Time) (Aggregate, error) {
	code := domain.NormalizeKey(productCode)
	if code == "" {
		return Aggregate{}, domain.Reject(domain.ErrInvalidInput, domain.ReasonMissingField, "product code is required")
	}
	product, err := s.Products.GetByCode(ctx, code)
	if err != nil {
		if domain.KindOf(err) == domain.ErrNotFound {
			return Aggregate{}, domain.Reject(domain.ErrNotFound, domain.ReasonProductNotFound, "product %s not found", code)
		}
		return Aggregate{}, err
	}
	tags, err := e.eligible(ctx, s, keys, at)
	if err != nil {
		return Aggregate{}, err
	}
	linked, err := e.link(ctx, s, p, product, tags, at)
	if err != nil {
		return Aggregate{}, err
	}
	return Aggregate{Product: product, Tags: linked}, nil
}

// ListProducts returns one page of the products p may see, newest first.
// Garment users see the products they created, admins see all.
func (e *AggregationEngine) ListProducts(ctx context.Context, p domain.Principal, search string, params domain.PaginationParams) (page domain.Page[domain.Product], err error) {
	ctx, span := startSpan(ctx, "AggregationEngine.ListProducts")
	defer func() { endSpan(span, err) }()

	scope, err := domain.ScopeFor(p, domain.EntityProduct)
	if err != nil {
		return domain.Page[domain.Product]{}, err
	}
	f := domain.ProductFilter{Scope: scope, Search: search}
	params = domain.NewPaginationParams(&params.Page, &params.Limit)

	var (
		items []domain.Product
		total int64
	)
	err = e.tx.ReadOnly(ctx, func(s repo.Stores) error {
		var err error
		items, total, err = s.Products.List(ctx, f, params)
		return err
	})
	if err != nil {
		e.opts.logResult(ctx, "products listed", err, "user", p.UserID)
		return domain.Page[domain.Product]{}, fmt.Errorf("service.AggregationEngine.ListProducts: %w", err)
	}
	return domain.Page[domain.Product]{Items: items, Total: total, PaginationParams: params}, nil
}

// StampCheck says whether a tag may be dispatched into a garment product
// right now. Reason and Message explain an ineligible tag.
type StampCheck struct {
	Tag      domain.Tag
	ByStamp  bool
	Eligible bool
	Reason   domain.Reason
	Message  string
}

// ValidateStamp resolves key as a tag code or stamp code and runs the garment
// dispatch check on the tag without writing anything. An unknown key is
// NotFound; an ineligible tag is a successful check with Eligible false.
func (e *AggregationEngine) ValidateStamp(ctx context.Context, p domain.Principal, key string) (check StampCheck, err error) {
	ctx, span := startSpan(ctx, "AggregationEngine.ValidateStamp")
	defer func() { endSpan(span, err) }()

	if err := domain.Authorize(p, domain.RoleGarment); err != nil {
		return StampCheck{}, err
	}
	err = e.tx.ReadOnly(ctx, func(s repo.Stores) error {
		res, err := resolveTag(ctx, s.Tags, key)
		if err != nil {
			return err
		}
		check = StampCheck{Tag: res.tag, ByStamp: res.byStamp, Eligible: true}
		_, err = domain.Transition(res.tag, domain.GarmentDispatched, domain.TransitionInput{}, e.opts.clock())
		if rej, ok := domain.AsRejection(err); ok {
			check.Eligible, check.Reason, check.Message = false, rej.Reason, rej.Message
			return nil
		}
		return err
	})
	if err != nil {
		return StampCheck{}, fmt.Errorf("service.AggregationEngine.ValidateStamp: %w", err)
	}
	return check, nil
}

func (e *AggregationEngine) createProduct(ctx context.Context, s repo.Stores, p domain.Principal, spec domain.ProductSpec, at time.Time) (domain.Product, error) {
	product, err := spec.Build(p.UserID, at)
	if err != nil {
		return domain.Product{}, err
	}
	product.Code, err = mintCode(ctx, e.opts, domain.ProductCodeLength, s.Products.CodeExists)
	if err != nil {
		return domain.Product{}, err
	}
	product, err = s.Products.Create(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}
	if _, err := s.Ledger.Append(ctx, domain.Entry{
		UserID:      p.UserID,
		Role:        domain.RoleGarment,
		Action:      domain.ActionDataEntered,
		At:          at,
		Location:    p.Location,
		ProductCode: product.Code,
	}); err != nil {
		return domain.Product{}, err
	}
	return product, nil
}

// eligible resolves every key and runs the garment dispatch check on each
// tag without writing anything. All failures are collected; if there is any,
// the batch is rejected with the kind of the first.
func (e *AggregationEngine) eligible(ctx context.Context, s repo.Stores, keys []string, at time.Time) ([]domain.Tag, error) {
	if len(keys) == 0 {
		return nil, domain.Reject(domain.ErrInvalidInput, domain.ReasonMissingField, "at least one tag is required")
	}

	var (
		tags []domain.Tag
		errs error
		seen = make(map[string]bool, len(keys))
	)
	for _, key := range keys {
		res, err := resolveTag(ctx, s.Tags, key)
		if err != nil {
			if domain.KindOf(err) == nil {
				return nil, err
			}
			errs = multierr.Append(errs, err)
			continue
		}
		if seen[res.tag.Code] {
			errs = multierr.Append(errs, domain.Reject(domain.ErrInvalidInput, domain.ReasonInvalidValue,
				"tag %s is listed more than once", res.tag.Code))
			continue
		}
		seen[res.tag.Code] = true
		if _, err := domain.Transition(res.tag, domain.GarmentDispatched, domain.TransitionInput{}, at); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		tags = append(tags, res.tag)
	}
	if errs != nil {
		return nil, batchRejection(errs, len(keys))
	}
	return tags, nil
}

// link writes the garment dispatch onto each tag and appends one ledger
// entry per tag.
func (e *AggregationEngine) link(ctx context.Context, s repo.Stores, p domain.Principal, product domain.Product, tags []domain.Tag, at time.Time) ([]domain.Tag, error) {
	out := make([]domain.Tag, 0, len(tags))
	for _, tag := range tags {
		next, err := domain.Transition(tag, domain.GarmentDispatched, domain.TransitionInput{}, at)
		if err != nil {
			return nil, err
		}
		next.Garment = product.Details()
		saved, err := s.Tags.Save(ctx, next)
		if err != nil {
			return nil, err
		}
		if _, err := s.Ledger.Append(ctx, domain.Entry{
			UserID:      p.UserID,
			Role:        domain.RoleGarment,
			Action:      domain.ActionDispatched,
			At:          at,
			Location:    p.Location,
			TagCode:     saved.Code,
			ProductCode: product.Code,
			StampCode:   saved.Tannery.StampCode,
		}); err != nil {
			return nil, err
		}
		out = append(out, saved)
	}
	return out, nil
}

// batchRejection wraps per-tag rejections into one. Its kind is the first
// failure's kind; multierr.Errors on its Cause yields each failure whole. A
// batch of one reports its only failure directly.
func batchRejection(errs error, total int) error {
	all := multierr.Errors(errs)
	if total == 1 && len(all) == 1 {
		return all[0]
	}
	return &domain.Rejection{
		Kind:    domain.KindOf(all[0]),
		Reason:  domain.ReasonBatchRejected,
		Message: fmt.Sprintf("%d of %d tags rejected: %v", len(all), total, all[0]),
		Cause:   errs,
	}
}
