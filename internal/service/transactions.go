package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkordes/hidetrace/backend/internal/domain"
	"github.com/pkordes/hidetrace/backend/internal/repo"
)

// TransactionQuery narrows a ledger listing. Actor filters by the acting
// role's label; Search matches tag code, stamp code or action.
type TransactionQuery struct {
	Actor  string
	Search string
	Page   domain.PaginationParams
}

// LedgerReader serves the caller-scoped views of the custody ledger.
type LedgerReader struct {
	tx   Transactor
	opts options
}

// NewLedgerReader constructs a LedgerReader.
func NewLedgerReader(tx Transactor, opts ...Option) *LedgerReader {
	return &LedgerReader{tx: tx, opts: newOptions(opts)}
}

// ListTransactions returns one page of the entries p may see, newest first.
// Stage users see their own entries, admins see all, visitors none.
func (l *LedgerReader) ListTransactions(ctx context.Context, p domain.Principal, q TransactionQuery) (page domain.Page[domain.Entry], err error) {
	ctx, span := startSpan(ctx, "LedgerReader.ListTransactions")
	defer func() { endSpan(span, err) }()

	scope, err := domain.ScopeFor(p, domain.EntityTransaction)
	if err != nil {
		return domain.Page[domain.Entry]{}, err
	}
	f := domain.TransactionFilter{Scope: scope, Search: strings.TrimSpace(q.Search)}
	if actor := strings.TrimSpace(q.Actor); actor != "" {
		f.Role = domain.ParseRole(actor)
	}
	params := domain.NewPaginationParams(&q.Page.Page, &q.Page.Limit)

	var (
		items []domain.Entry
		total int64
	)
	err = l.tx.ReadOnly(ctx, func(s repo.Stores) error {
		var err error
		items, total, err = s.Ledger.List(ctx, f, params)
		return err
	})
	if err != nil {
		l.opts.logResult(ctx, "transactions listed", err, "user", p.UserID)
		return domain.Page[domain.Entry]{}, fmt.Errorf("service.LedgerReader.ListTransactions: %w", err)
	}
	return domain.Page[domain.Entry]{Items: items, Total: total, PaginationParams: params}, nil
}

// Summary counts the entries p may see by action, plus every tag by hide
// source. Every known source is present, zero when no tag has it.
func (l *LedgerReader) Summary(ctx context.Context, p domain.Principal) (sum domain.Summary, err error) {
	ctx, span := startSpan(ctx, "LedgerReader.Summary")
	defer func() { endSpan(span, err) }()

	scope, err := domain.ScopeFor(p, domain.EntityTransaction)
	if err != nil {
		return domain.Summary{}, err
	}
	err = l.tx.ReadOnly(ctx, func(s repo.Stores) error {
		var err error
		sum, err = s.Ledger.Summarize(ctx, scope)
		if err != nil {
			return err
		}
		counts, err := s.Tags.CountByHideSource(ctx)
		if err != nil {
			return err
		}
		sum.HideSources = make(map[domain.HideSource]int64, len(domain.KnownHideSources))
		for _, h := range domain.KnownHideSources {
			sum.HideSources[h] = counts[h]
		}
		return nil
	})
	if err != nil {
		return domain.Summary{}, fmt.Errorf("service.LedgerReader.Summary: %w", err)
	}
	return sum, nil
}
