package service

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/pkordes/hidetrace/backend/internal/domain"
	"github.com/pkordes/hidetrace/backend/internal/repo"
)

// TagRegistry owns tag identity: it mints unique codes and turns slaughter
// confirmations into tags.
type TagRegistry struct {
	tx   Transactor
	src  ConfirmationSource
	opts options
}

// NewTagRegistry constructs a TagRegistry. src may be nil when only CreateTag
// is used.
func NewTagRegistry(tx Transactor, src ConfirmationSource, opts ...Option) *TagRegistry {
	return &TagRegistry{tx: tx, src: src, opts: newOptions(opts)}
}

// CreateTag mints a tag carrying origin and records its data_entered ledger
// entry. Only the slaughterhouse (or an admin) may create tags.
func (r *TagRegistry) CreateTag(ctx context.Context, p domain.Principal, origin domain.Origin) (tag domain.Tag, err error) {
	ctx, span := startSpan(ctx, "TagRegistry.CreateTag")
	defer func() { endSpan(span, err) }()

	if err := domain.Authorize(p, domain.RoleSlaughterhouse); err != nil {
		return domain.Tag{}, err
	}
	err = r.tx.InTx(ctx, func(s repo.Stores) error {
		var err error
		tag, err = r.createTag(ctx, s, p, origin, r.opts.clock())
		return err
	})
	r.opts.hooks.RegistrationObserved(1, outcomeOf(err))
	r.opts.logResult(ctx, "tag created", err, "tag", tag.Code, "user", p.UserID)
	if err != nil {
		return domain.Tag{}, fmt.Errorf("service.TagRegistry.CreateTag: %w", err)
	}
	return tag, nil
}

// RegisterTag creates exactly one tag from a confirmation. The tag keeps the
// label of the confirmation's first legacy tag row, if there is one.
// Returns NotFound if the feed has no such confirmation and Conflict if the
// confirmation already produced tags.
func (r *TagRegistry) RegisterTag(ctx context.Context, p domain.Principal, confirmationID int64) (tag domain.Tag, err error) {
	ctx, span := startSpan(ctx, "TagRegistry.RegisterTag", attribute.Int64("custody.confirmation", confirmationID))
	defer func() { endSpan(span, err) }()

	c, err := r.confirmation(ctx, p, confirmationID)
	if err != nil {
		return domain.Tag{}, fmt.Errorf("service.TagRegistry.RegisterTag: %w", err)
	}
	legacy := ""
	if len(c.LegacyTags) > 0 {
		legacy = c.LegacyTags[0]
	}

	err = r.tx.InTx(ctx, func(s repo.Stores) error {
		if err := ensureUnused(ctx, s, confirmationID); err != nil {
			return err
		}
		var err error
		tag, err = r.createTag(ctx, s, p, c.Origin(legacy), r.opts.clock())
		return err
	})
	r.opts.hooks.RegistrationObserved(1, outcomeOf(err))
	r.opts.logResult(ctx, "tag registered", err, "tag", tag.Code, "confirmation", confirmationID, "user", p.UserID)
	if err != nil {
		return domain.Tag{}, fmt.Errorf("service.TagRegistry.RegisterTag: %w", err)
	}
	return tag, nil
}

// RegisterBatch creates one tag per legacy tag row of a confirmation, all in
// one transaction. A confirmation without legacy tag rows is InvalidInput.
func (r *TagRegistry) RegisterBatch(ctx context.Context, p domain.Principal, confirmationID int64) (tags []domain.Tag, err error) {
	ctx, span := startSpan(ctx, "TagRegistry.RegisterBatch", attribute.Int64("custody.confirmation", confirmationID))
	defer func() { endSpan(span, err) }()

	c, err := r.confirmation(ctx, p, confirmationID)
	if err != nil {
		return nil, fmt.Errorf("service.TagRegistry.RegisterBatch: %w", err)
	}
	if len(c.LegacyTags) == 0 {
		return nil, domain.Reject(domain.ErrInvalidInput, domain.ReasonMissingField,
			"confirmation %d has no legacy tags to register", confirmationID)
	}

	err = r.tx.InTx(ctx, func(s repo.Stores) error {
		tags = make([]domain.Tag, 0, len(c.LegacyTags))
		if err := ensureUnused(ctx, s, confirmationID); err != nil {
			return err
		}
		at := r.opts.clock()
		for _, legacy := range c.LegacyTags {
			tag, err := r.createTag(ctx, s, p, c.Origin(legacy), at)
			if err != nil {
				return err
			}
			tags = append(tags, tag)
		}
		return nil
	})
	r.opts.hooks.RegistrationObserved(len(c.LegacyTags), outcomeOf(err))
	r.opts.logResult(ctx, "tag batch registered", err, "confirmation", confirmationID, "count", len(c.LegacyTags), "user", p.UserID)
	if err != nil {
		return nil, fmt.Errorf("service.TagRegistry.RegisterBatch: %w", err)
	}
	return tags, nil
}

// RecordPrint counts one more print of a tag's label and returns the new
// count. Only the slaughterhouse (or an admin) prints labels; printing is not
// a custody event and writes no ledger entry.
func (r *TagRegistry) RecordPrint(ctx context.Context, p domain.Principal, code string) (count int, err error) {
	ctx, span := startSpan(ctx, "TagRegistry.RecordPrint")
	defer func() { endSpan(span, err) }()

	if err := domain.Authorize(p, domain.RoleSlaughterhouse); err != nil {
		return 0, err
	}
	code = domain.NormalizeKey(code)
	if code == "" {
		return 0, domain.Reject(domain.ErrInvalidInput, domain.ReasonMissingField, "tag code is required")
	}
	err = r.tx.InTx(ctx, func(s repo.Stores) error {
		var err error
		count, err = s.Tags.IncrementPrints(ctx, code)
		if domain.KindOf(err) == domain.ErrNotFound {
			return domain.Reject(domain.ErrNotFound, domain.ReasonTagNotFound, "tag %s not found", code)
		}
		return err
	})
	r.opts.logResult(ctx, "tag print recorded", err, "tag", code, "count", count, "user", p.UserID)
	if err != nil {
		return 0, fmt.Errorf("service.TagRegistry.RecordPrint: %w", err)
	}
	return count, nil
}

func (r *TagRegistry) confirmation(ctx context.Context, p domain.Principal, id int64) (domain.Confirmation, error) {
	if err := domain.Authorize(p, domain.RoleSlaughterhouse); err != nil {
		return domain.Confirmation{}, err
	}
	if id <= 0 {
		return domain.Confirmation{}, domain.Reject(domain.ErrInvalidInput, domain.ReasonInvalidValue, "confirmation id must be positive, got %d", id)
	}
	if r.src == nil {
		return domain.Confirmation{}, fmt.Errorf("no confirmation source configured")
	}
	return r.src.Confirmation(ctx, id)
}

// ensureUnused rejects a confirmation that already produced tags.
func ensureUnused(ctx context.Context, s repo.Stores, confirmationID int64) error {
	n, err := s.Tags.CountByConfirmation(ctx, confirmationID)
	if err != nil {
		return err
	}
	if n > 0 {
		return domain.Reject(domain.ErrConflict, domain.ReasonConfirmationUsed,
			"confirmation %d was already used for %d tag(s)", confirmationID, n)
	}
	return nil
}

func (r *TagRegistry) createTag(ctx context.Context, s repo.Stores, p domain.Principal, origin domain.Origin, at time.Time) (domain.Tag, error) {
	code, err := mintCode(ctx, r.opts, domain.TagCodeLength, s.Tags.CodeExists)
	if err != nil {
		return domain.Tag{}, err
	}
	tag, err := s.Tags.Create(ctx, domain.Tag{Code: code, Origin: origin, CreatedBy: p.UserID})
	if err != nil {
		return domain.Tag{}, err
	}
	if _, err := s.Ledger.Append(ctx, domain.Entry{
		UserID:   p.UserID,
		Role:     domain.RoleSlaughterhouse,
		Action:   domain.ActionDataEntered,
		At:       at,
		Location: p.Location,
		TagCode:  tag.Code,
	}); err != nil {
		return domain.Tag{}, err
	}
	return tag, nil
}
