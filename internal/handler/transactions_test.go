package handler_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/hidetrace/backend/internal/domain"
	"github.com/pkordes/hidetrace/backend/internal/handler"
	"github.com/pkordes/hidetrace/backend/internal/service"
)

func TestListTransactions_200(t *testing.T) {
	at := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	var got service.TransactionQuery
	svc := &mockLedger{
		list: func(_ context.Context, p domain.Principal, q service.TransactionQuery) (domain.Page[domain.Entry], error) {
			assert.Equal(t, traderUser, p)
			got = q
			return domain.Page[domain.Entry]{
				Items: []domain.Entry{{
					ID: uuid.New(), UserID: p.UserID, Role: domain.RoleTrader,
					Action: domain.ActionArrived, At: at, Location: "Kano", TagCode: "ABCD1234",
				}},
				Total:            5,
				PaginationParams: q.Page,
			}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/transactions?page=2&limit=2&actor=tannery&q=tz0", nil)
	rec := serve(t, handler.Services{Ledger: svc}, traderUser, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, service.TransactionQuery{
		Actor:  "tannery",
		Search: "tz0",
		Page:   domain.PaginationParams{Page: 2, Limit: 2},
	}, got)

	body := decodeBody[handler.TransactionList](t, rec)
	require.Len(t, body.Data, 1)
	assert.Equal(t, "arrived", body.Data[0].Action)
	assert.Equal(t, "Kano", body.Data[0].Location)
	assert.Equal(t, handler.Pagination{Page: 2, Limit: 2, Total: 5, TotalPages: 3}, body.Pagination)
}

func TestListTransactions_Defaults(t *testing.T) {
	svc := &mockLedger{
		list: func(_ context.Context, _ domain.Principal, q service.TransactionQuery) (domain.Page[domain.Entry], error) {
			assert.Equal(t, domain.PaginationParams{Page: 1, Limit: domain.DefaultPageLimit}, q.Page)
			assert.Empty(t, q.Actor)
			assert.Empty(t, q.Search)
			return domain.Page[domain.Entry]{PaginationParams: q.Page}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/transactions", nil)
	rec := serve(t, handler.Services{Ledger: svc}, adminUser, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[handler.TransactionList](t, rec)
	assert.NotNil(t, body.Data)
	assert.Empty(t, body.Data)
	assert.Equal(t, 0, body.Pagination.TotalPages)
}

func TestListTransactions_LimitIsCapped(t *testing.T) {
	svc := &mockLedger{
		list: func(_ context.Context, _ domain.Principal, q service.TransactionQuery) (domain.Page[domain.Entry], error) {
			assert.Equal(t, domain.MaxPageLimit, q.Page.Limit)
			return domain.Page[domain.Entry]{PaginationParams: q.Page}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/transactions?limit=1000", nil)
	rec := serve(t, handler.Services{Ledger: svc}, adminUser, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListTransactions_BadQuery(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/transactions?page=two", nil)
	rec := serve(t, handler.Services{Ledger: &mockLedger{}}, adminUser, req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "invalid_value", decodeBody[handler.ErrorResponse](t, rec).Error.Reason)
}

func TestListTransactions_Anonymous403(t *testing.T) {
	svc := &mockLedger{
		list: func(_ context.Context, p domain.Principal, _ service.TransactionQuery) (domain.Page[domain.Entry], error) {
			_, err := domain.ScopeFor(p, domain.EntityTransaction)
			return domain.Page[domain.Entry]{}, err
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/transactions", nil)
	rec := serve(t, handler.Services{Ledger: svc}, domain.Anonymous, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", decodeBody[handler.ErrorResponse](t, rec).Error.Code)
}

func TestGetSummary_200(t *testing.T) {
	svc := &mockLedger{
		summary: func(_ context.Context, p domain.Principal) (domain.Summary, error) {
			assert.Equal(t, traderUser, p)
			return domain.Summary{Arrived: 2, Dispatched: 1, HideSources: map[domain.HideSource]int64{domain.HideCow: 4, domain.HideGoat: 0}}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/summary", nil)
	rec := serve(t, handler.Services{Ledger: svc}, traderUser, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, handler.Summary{
		Arrived:     2,
		Dispatched:  1,
		HideSources: map[string]int64{"Cow": 4, "Goat": 0},
	}, decodeBody[handler.Summary](t, rec))
}
