package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pkordes/hidetrace/backend/internal/auth"
	"github.com/pkordes/hidetrace/backend/internal/domain"
	"github.com/pkordes/hidetrace/backend/internal/handler"
	"github.com/pkordes/hidetrace/backend/internal/service"
)

// ---- mocks -----------------------------------------------------------------

type mockRegistrar struct {
	register func(ctx context.Context, p domain.Principal, id int64) (domain.Tag, error)
	batch    func(ctx context.Context, p domain.Principal, id int64) ([]domain.Tag, error)
	print    func(ctx context.Context, p domain.Principal, code string) (int, error)
}

func (m *mockRegistrar) RegisterTag(ctx context.Context, p domain.Principal, id int64) (domain.Tag, error) {
	return m.register(ctx, p, id)
}

func (m *mockRegistrar) RegisterBatch(ctx context.Context, p domain.Principal, id int64) ([]domain.Tag, error) {
	return m.batch(ctx, p, id)
}

func (m *mockRegistrar) RecordPrint(ctx context.Context, p domain.Principal, code string) (int, error) {
	return m.print(ctx, p, code)
}

type recordFunc func(ctx context.Context, p domain.Principal, stage domain.Stage, key string, f domain.StageFields) (domain.Tag, error)

type mockRecorder struct {
	arrive   recordFunc
	dispatch recordFunc
}

func (m *mockRecorder) RecordArrival(ctx context.Context, p domain.Principal, stage domain.Stage, key string, f domain.StageFields) (domain.Tag, error) {
	return m.arrive(ctx, p, stage, key, f)
}

func (m *mockRecorder) RecordDispatch(ctx context.Context, p domain.Principal, stage domain.Stage, key string, f domain.StageFields) (domain.Tag, error) {
	return m.dispatch(ctx, p, stage, key, f)
}

type mockAggregator struct {
	create func(ctx context.Context, p domain.Principal, keys []string, spec domain.ProductSpec) (service.Aggregate, error)
	extend func(ctx context.Context, p domain.Principal, code string, keys []string) (service.Aggregate, error)
	list   func(ctx context.Context, p domain.Principal, search string, page domain.PaginationParams) (domain.Page[domain.Product], error)
	check  func(ctx context.Context, p domain.Principal, key string) (service.StampCheck, error)
}

func (m *mockAggregator) CreateGarmentAggregate(ctx context.Context, p domain.Principal, keys []string, spec domain.ProductSpec) (service.Aggregate, error) {
	return m.create(ctx, p, keys, spec)
}

func (m *mockAggregator) ExtendProduct(ctx context.Context, p domain.Principal, code string, keys []string) (service.Aggregate, error) {
	return m.extend(ctx, p, code, keys)
}

func (m *mockAggregator) ListProducts(ctx context.Context, p domain.Principal, search string, page domain.PaginationParams) (domain.Page[domain.Product], error) {
	return m.list(ctx, p, search, page)
}

func (m *mockAggregator) ValidateStamp(ctx context.Context, p domain.Principal, key string) (service.StampCheck, error) {
	return m.check(ctx, p, key)
}

type mockTraceLookup struct {
	trace func(ctx context.Context, key string) (service.Trace, error)
}

func (m *mockTraceLookup) GetTagTrace(ctx context.Context, key string) (service.Trace, error) {
	return m.trace(ctx, key)
}

type mockLedger struct {
	list    func(ctx context.Context, p domain.Principal, q service.TransactionQuery) (domain.Page[domain.Entry], error)
	summary func(ctx context.Context, p domain.Principal) (domain.Summary, error)
}

func (m *mockLedger) ListTransactions(ctx context.Context, p domain.Principal, q service.TransactionQuery) (domain.Page[domain.Entry], error) {
	return m.list(ctx, p, q)
}

func (m *mockLedger) Summary(ctx context.Context, p domain.Principal) (domain.Summary, error) {
	return m.summary(ctx, p)
}

// compile-time checks: mocks must satisfy the handler interfaces.
var (
	_ handler.Registrar     = (*mockRegistrar)(nil)
	_ handler.Recorder      = (*mockRecorder)(nil)
	_ handler.Aggregator    = (*mockAggregator)(nil)
	_ handler.TraceLookup   = (*mockTraceLookup)(nil)
	_ handler.LedgerQuerier = (*mockLedger)(nil)
)

// ---- helpers ---------------------------------------------------------------

var (
	traderUser  = domain.Principal{UserID: "u-trader", Role: domain.RoleTrader, Location: "Kano"}
	garmentUser = domain.Principal{UserID: "u-garment", Role: domain.RoleGarment}
	adminUser   = domain.Principal{UserID: "u-admin", Role: domain.RoleAdmin}
)

// serve routes req through a Server built from svc, as principal p.
func serve(t *testing.T, svc handler.Services, p domain.Principal, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	req = req.WithContext(auth.WithPrincipal(req.Context(), p))
	rec := httptest.NewRecorder()
	handler.NewServer(svc, nil).Routes().ServeHTTP(rec, req)
	return rec
}

func jsonBody(t *testing.T, v any) io.Reader {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(b)
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func tagFixture(code string) domain.Tag {
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return domain.Tag{
		Code: code,
		Origin: domain.Origin{
			ConfirmationID: 55,
			BatchNo:        "B-17",
			TotalAnimals:   2,
			Price:          "120.50",
			Amount:         "241.00",
			ConfirmedAt:    at,
			TotalTags:      2,
		},
		CreatedBy: "u-slaughter",
		CreatedAt: at,
	}
}
