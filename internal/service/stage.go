package service

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/pkordes/hidetrace/backend/internal/domain"
	"github.com/pkordes/hidetrace/backend/internal/repo"
)

// CustodyRecorder applies one stage transition per call: authorize, resolve
// the tag by code or stamp, validate, save and append the ledger entry, all
// in one transaction. The stage façades below are thin views over it.
type CustodyRecorder struct {
	tx   Transactor
	agg  *AggregationEngine
	opts options
}

// NewCustodyRecorder constructs a CustodyRecorder. agg handles garment
// dispatch, which links the tag to a product.
func NewCustodyRecorder(tx Transactor, agg *AggregationEngine, opts ...Option) *CustodyRecorder {
	return &CustodyRecorder{tx: tx, agg: agg, opts: newOptions(opts)}
}

// RecordArrival marks the tag matching key as arrived at stage.
func (c *CustodyRecorder) RecordArrival(ctx context.Context, p domain.Principal, stage domain.Stage, key string, fields domain.StageFields) (domain.Tag, error) {
	return c.record(ctx, p, domain.Action{Stage: stage, Direction: domain.Arrived}, key, fields)
}

// RecordDispatch marks the tag matching key as dispatched from stage. A
// garment dispatch joins the product named by fields.ProductCode.
func (c *CustodyRecorder) RecordDispatch(ctx context.Context, p domain.Principal, stage domain.Stage, key string, fields domain.StageFields) (domain.Tag, error) {
	return c.record(ctx, p, domain.Action{Stage: stage, Direction: domain.Dispatched}, key, fields)
}

func (c *CustodyRecorder) record(ctx context.Context, p domain.Principal, action domain.Action, key string, fields domain.StageFields) (tag domain.Tag, err error) {
	ctx, span := startSpan(ctx, "CustodyRecorder."+action.String(), attribute.String("custody.key", key))
	defer func() { endSpan(span, err) }()

	defer func() {
		c.opts.hooks.TransitionObserved(action, outcomeOf(err))
		c.opts.logResult(ctx, "custody transition", err,
			"tag", tag.Code, "key", key, "stage", action.Stage.String(), "action", action.Direction.String(), "user", p.UserID)
	}()

	if err := domain.Authorize(p, action.Stage.Role()); err != nil {
		return domain.Tag{}, err
	}

	err = c.tx.InTx(ctx, func(s repo.Stores) error {
		var err error
		if action == domain.GarmentDispatched {
			tag, err = c.dispatchGarment(ctx, s, p, key, fields)
			return err
		}
		tag, err = c.apply(ctx, s, p, action, key, fields)
		return err
	})
	if err != nil {
		return domain.Tag{}, fmt.Errorf("service.CustodyRecorder.%s: %w", action, err)
	}
	return tag, nil
}

func (c *CustodyRecorder) apply(ctx context.Context, s repo.Stores, p domain.Principal, action domain.Action, key string, fields domain.StageFields) (domain.Tag, error) {
	res, err := resolveTag(ctx, s.Tags, key)
	if err != nil {
		return domain.Tag{}, err
	}
	if action == domain.TanneryDispatched && fields.StampCode == "" && res.byStamp {
		fields.StampCode = res.tag.Tannery.StampCode
	}

	in := domain.TransitionInput{Fields: fields}
	if action == domain.TanneryArrived {
		if stamp := domain.NormalizeKey(fields.StampCode); stamp != "" {
			if in.StampHolder, err = s.Tags.StampHolder(ctx, stamp); err != nil {
				return domain.Tag{}, err
			}
		}
	}

	at := c.opts.clock()
	next, err := domain.Transition(res.tag, action, in, at)
	if err != nil {
		return domain.Tag{}, err
	}
	saved, err := s.Tags.Save(ctx, next)
	if err != nil {
		return domain.Tag{}, err
	}
	if _, err := s.Ledger.Append(ctx, domain.Entry{
		UserID:    p.UserID,
		Role:      action.Stage.Role(),
		Action:    action.Direction.LedgerAction(),
		At:        at,
		Location:  p.Location,
		TagCode:   saved.Code,
		StampCode: saved.Tannery.StampCode,
	}); err != nil {
		return domain.Tag{}, err
	}
	return saved, nil
}

func (c *CustodyRecorder) dispatchGarment(ctx context.Context, s repo.Stores, p domain.Principal, key string, fields domain.StageFields) (domain.Tag, error) {
	if fields.ProductCode == "" {
		return domain.Tag{}, domain.Reject(domain.ErrInvalidInput, domain.ReasonMissingField,
			"garment dispatch of %s requires the product it joins", domain.NormalizeKey(key))
	}
	agg, err := c.agg.extendWith(ctx, s, p, fields.ProductCode, []string{key}, c.opts.clock())
	if err != nil {
		return domain.Tag{}, err
	}
	return agg.Tags[0], nil
}

// TraderStage is the trader's view of the custody recorder.
type TraderStage struct{ rec *CustodyRecorder }

// NewTraderStage returns the trader façade over rec.
func NewTraderStage(rec *CustodyRecorder) TraderStage { return TraderStage{rec: rec} }

// Arrive records that the trader received the tag.
func (t TraderStage) Arrive(ctx context.Context, p domain.Principal, key string) (domain.Tag, error) {
	return t.rec.RecordArrival(ctx, p, domain.StageTrader, key, domain.StageFields{})
}

// Dispatch records that the trader sent the tag on to a tannery.
func (t TraderStage) Dispatch(ctx context.Context, p domain.Principal, key string) (domain.Tag, error) {
	return t.rec.RecordDispatch(ctx, p, domain.StageTrader, key, domain.StageFields{})
}

// TanneryArrival are the values a tannery records on arrival.
type TanneryArrival struct {
	StampCode     string
	HideSource    string
	VehicleNumber string
}

// TanneryDispatch are the values a tannery records on dispatch.
type TanneryDispatch struct {
	StampCode   string
	LotNumber   string
	Destination string
	Article     string
	TannageType string
}

// TanneryStage is the tannery's view of the custody recorder.
type TanneryStage struct{ rec *CustodyRecorder }

// NewTanneryStage returns the tannery façade over rec.
func NewTanneryStage(rec *CustodyRecorder) TanneryStage { return TanneryStage{rec: rec} }

// Arrive stamps the tag and records its hide source.
func (t TanneryStage) Arrive(ctx context.Context, p domain.Principal, key string, a TanneryArrival) (domain.Tag, error) {
	return t.rec.RecordArrival(ctx, p, domain.StageTannery, key, domain.StageFields{
		StampCode:     a.StampCode,
		HideSource:    a.HideSource,
		VehicleNumber: a.VehicleNumber,
	})
}

// Dispatch ships the processed leather. The stamp must match the one
// recorded on arrival.
func (t TanneryStage) Dispatch(ctx context.Context, p domain.Principal, key string, d TanneryDispatch) (domain.Tag, error) {
	return t.rec.RecordDispatch(ctx, p, domain.StageTannery, key, domain.StageFields{
		StampCode:   d.StampCode,
		LotNumber:   d.LotNumber,
		Destination: d.Destination,
		Article:     d.Article,
		TannageType: d.TannageType,
	})
}

// GarmentStage is the garment manufacturer's view: arrivals go through the
// custody recorder, dispatches through the aggregation engine.
type GarmentStage struct {
	rec *CustodyRecorder
	agg *AggregationEngine
}

// NewGarmentStage returns the garment façade.
func NewGarmentStage(rec *CustodyRecorder, agg *AggregationEngine) GarmentStage {
	return GarmentStage{rec: rec, agg: agg}
}

// Arrive records that the garment facility received the leather.
func (g GarmentStage) Arrive(ctx context.Context, p domain.Principal, key string) (domain.Tag, error) {
	return g.rec.RecordArrival(ctx, p, domain.StageGarment, key, domain.StageFields{})
}

// Aggregate creates a product from spec and dispatches every tag into it.
func (g GarmentStage) Aggregate(ctx context.Context, p domain.Principal, keys []string, spec domain.ProductSpec) (Aggregate, error) {
	return g.agg.CreateGarmentAggregate(ctx, p, keys, spec)
}

// Extend dispatches more tags into an existing product.
func (g GarmentStage) Extend(ctx context.Context, p domain.Principal, productCode string, keys []string) (Aggregate, error) {
	return g.agg.ExtendProduct(ctx, p, productCode, keys)
}
