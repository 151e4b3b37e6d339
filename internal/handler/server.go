// Package handler implements the HTTP transport of the custody API.
// All handlers are methods on Server. Methods are split into resource files
// (tag.go, product.go, trace.go, ...) but share the same Server struct so they
// can reach its dependencies. Handlers decode, call one service, and render;
// every decision, role check included, lives in the services.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pkordes/hidetrace/backend/internal/domain"
	"github.com/pkordes/hidetrace/backend/internal/service"
)

// Registrar mints tags from slaughter confirmations.
type Registrar interface {
	RegisterTag(ctx context.Context, p domain.Principal, confirmationID int64) (domain.Tag, error)
	RegisterBatch(ctx context.Context, p domain.Principal, confirmationID int64) ([]domain.Tag, error)
	RecordPrint(ctx context.Context, p domain.Principal, code string) (int, error)
}

// Recorder applies stage arrivals and dispatches.
type Recorder interface {
	RecordArrival(ctx context.Context, p domain.Principal, stage domain.Stage, key string, fields domain.StageFields) (domain.Tag, error)
	RecordDispatch(ctx context.Context, p domain.Principal, stage domain.Stage, key string, fields domain.StageFields) (domain.Tag, error)
}

// Aggregator builds and extends garment products.
type Aggregator interface {
	CreateGarmentAggregate(ctx context.Context, p domain.Principal, keys []string, spec domain.ProductSpec) (service.Aggregate, error)
	ExtendProduct(ctx context.Context, p domain.Principal, productCode string, keys []string) (service.Aggregate, error)
	ListProducts(ctx context.Context, p domain.Principal, search string, page domain.PaginationParams) (domain.Page[domain.Product], error)
	ValidateStamp(ctx context.Context, p domain.Principal, key string) (service.StampCheck, error)
}

// TraceLookup answers public provenance queries.
type TraceLookup interface {
	GetTagTrace(ctx context.Context, key string) (service.Trace, error)
}

// LedgerQuerier serves the caller-scoped ledger views.
type LedgerQuerier interface {
	ListTransactions(ctx context.Context, p domain.Principal, q service.TransactionQuery) (domain.Page[domain.Entry], error)
	Summary(ctx context.Context, p domain.Principal) (domain.Summary, error)
}

var (
	_ Registrar     = (*service.TagRegistry)(nil)
	_ Recorder      = (*service.CustodyRecorder)(nil)
	_ Aggregator    = (*service.AggregationEngine)(nil)
	_ TraceLookup   = (*service.Tracer)(nil)
	_ LedgerQuerier = (*service.LedgerReader)(nil)
)

// Services are the collaborators a Server dispatches to. A nil service
// leaves its routes unregistered.
type Services struct {
	Registry Registrar
	Recorder Recorder
	Products Aggregator
	Traces   TraceLookup
	Ledger   LedgerQuerier
	// Ready reports whether the store is reachable, for /readyz.
	Ready func(ctx context.Context) error
}

// Server holds the HTTP handlers.
type Server struct {
	svc Services
	log *slog.Logger
}

// NewServer constructs the Server with all its dependencies.
func NewServer(svc Services, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{svc: svc, log: log}
}

// NewHealthHandler returns a Server for health-check-only use.
func NewHealthHandler() *Server {
	return NewServer(Services{}, nil)
}

// Routes returns the router for every API endpoint. Identity middleware must
// run before it so handlers find a principal in the request context.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/healthz", s.GetHealth)
	r.Get("/readyz", s.GetReady)
	r.Get("/openapi.yaml", s.GetOpenAPI)

	if s.svc.Registry != nil {
		r.Post("/tags", s.RegisterTag)
		r.Post("/confirmations/{confirmationID}/tags", s.RegisterBatch)
		r.Post("/tags/{code}/prints", s.RecordPrint)
	}
	if s.svc.Recorder != nil {
		r.Post("/tags/{key}/arrivals", s.RecordArrival)
		r.Post("/tags/{key}/dispatches", s.RecordDispatch)
	}
	if s.svc.Products != nil {
		r.Post("/products", s.CreateProduct)
		r.Post("/products/{code}/tags", s.ExtendProduct)
		r.Get("/products", s.ListProducts)
		r.Get("/stamps/{key}/eligibility", s.ValidateStamp)
	}
	if s.svc.Traces != nil {
		r.Get("/trace/{key}", s.GetTrace)
	}
	if s.svc.Ledger != nil {
		r.Get("/transactions", s.ListTransactions)
		r.Get("/summary", s.GetSummary)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, domain.Reject(domain.ErrNotFound, domain.ReasonUnknownReference, "no route for %s %s", r.Method, r.URL.Path))
	})
	return r
}
