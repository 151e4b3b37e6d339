package service_test

import (
	"fmt"
	"sync"
	"time"

	"github.com/pkordes/hidetrace/backend/internal/domain"
	"github.com/pkordes/hidetrace/backend/internal/service"
	"github.com/pkordes/hidetrace/backend/internal/service/servicetest"
)

var _ service.Transactor = (*servicetest.Store)(nil)

// recordingHooks counts hook calls by outcome.
type recordingHooks struct {
	mu           sync.Mutex
	transitions  map[string]int
	aggregations map[string]int
	registered   map[string]int
}

var _ service.Hooks = (*recordingHooks)(nil)

func newRecordingHooks() *recordingHooks {
	return &recordingHooks{transitions: map[string]int{}, aggregations: map[string]int{}, registered: map[string]int{}}
}

func (h *recordingHooks) TransitionObserved(a domain.Action, outcome string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.transitions[a.String()+"/"+outcome]++
}

func (h *recordingHooks) AggregationObserved(_ int, outcome string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.aggregations[outcome]++
}

func (h *recordingHooks) RegistrationObserved(n int, outcome string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.registered[outcome] += n
}

var (
	slaughter = domain.Principal{UserID: "slaughter-1", Role: domain.RoleSlaughterhouse, Location: "Addis"}
	trader    = domain.Principal{UserID: "trader-1", Role: domain.RoleTrader, Location: "Modjo"}
	tannery   = domain.Principal{UserID: "tannery-1", Role: domain.RoleTannery, Location: "Mojo Tannery"}
	garment   = domain.Principal{UserID: "garment-1", Role: domain.RoleGarment, Location: "GarmentCo"}
	admin     = domain.Principal{UserID: "admin-1", Role: domain.RoleAdmin}
	visitor   = domain.Principal{UserID: "visitor-1", Role: domain.RoleVisitor}
)

func confirmation(id int64, legacy ...string) domain.Confirmation {
	return domain.Confirmation{
		ID:           id,
		ConfirmedAt:  time.Date(2025, 6, 1, 7, 0, 0, 0, time.UTC),
		BatchNo:      fmt.Sprintf("B-%d", id),
		OwnerName:    "Abebe",
		ExpiryDays:   7,
		AccountType:  "Cash",
		Command:      "B",
		TotalAnimals: 1,
		Price:        "120.50",
		Amount:       "120.50",
		LegacyTags:   legacy,
	}
}

// fixture wires every service over one in-memory store.
type fixture struct {
	store    *servicetest.Store
	hooks    *recordingHooks
	registry *service.TagRegistry
	agg      *service.AggregationEngine
	rec      *service.CustodyRecorder
	tracer   *service.Tracer
	ledger   *service.LedgerReader
}

func newFixture(src servicetest.Source, opts ...service.Option) *fixture {
	store := servicetest.NewStore()
	hooks := newRecordingHooks()
	opts = append([]service.Option{service.WithClock(servicetest.StepClock()), service.WithHooks(hooks)}, opts...)
	agg := service.NewAggregationEngine(store, opts...)
	return &fixture{
		store:    store,
		hooks:    hooks,
		registry: service.NewTagRegistry(store, src, opts...),
		agg:      agg,
		rec:      service.NewCustodyRecorder(store, agg, opts...),
		tracer:   service.NewTracer(store, opts...),
		ledger:   service.NewLedgerReader(store, opts...),
	}
}

// at returns a distinct past instant for seeding tag timestamps.
func at(minute int) *time.Time {
	t := time.Date(2025, 5, 1, 0, minute, 0, 0, time.UTC)
	return &t
}

// seedTag stores a tag that has already reached the state set by stages.
func (f *fixture) seedTag(code string, stages domain.StageTimes, stamp string) domain.Tag {
	t := domain.Tag{Code: code, Origin: domain.Origin{ConfirmationID: 1}, Stages: stages, CreatedBy: "seed"}
	t.Tannery.StampCode = stamp
	f.store.Put(t)
	return t
}

// atGarment is the stage state of a tag waiting at the garment facility.
func atGarment() domain.StageTimes {
	return domain.StageTimes{
		TraderArrived: at(1), TraderDispatched: at(2),
		TanneryArrived: at(3), TanneryDispatched: at(4),
		GarmentArrived: at(5),
	}
}
