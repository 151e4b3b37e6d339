// Package servicetest provides an in-memory custody store and deterministic
// collaborators for exercising the real services without Postgres.
package servicetest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pkordes/hidetrace/backend/internal/domain"
	"github.com/pkordes/hidetrace/backend/internal/repo"
)

// Store is an in-memory custody store with transactional semantics: each
// unit of work runs on a copy of the state, and the copy replaces the state
// only if the work succeeds. Units run one at a time, which is the strongest
// serializable schedule.
type Store struct {
	mu    sync.Mutex
	state *state

	appendErr error
	commits   int
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{state: &state{
		tags:     map[string]domain.Tag{},
		products: map[string]domain.Product{},
	}}
}

// InTx runs fn on a copy of the state and commits the copy if fn succeeds.
func (m *Store) InTx(_ context.Context, fn func(repo.Stores) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.state.clone()
	work.appendErr = m.appendErr
	if err := fn(work.stores()); err != nil {
		return err
	}
	m.state = work
	m.commits++
	return nil
}

// ReadOnly runs fn on a throwaway copy of the state.
func (m *Store) ReadOnly(_ context.Context, fn func(repo.Stores) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(m.state.clone().stores())
}

// FailAppends makes every later ledger append return err. Nil clears it.
func (m *Store) FailAppends(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendErr = err
}

// Commits counts the InTx units that committed.
func (m *Store) Commits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commits
}

// Tag returns the committed state of a tag.
func (m *Store) Tag(code string) (domain.Tag, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.state.tags[code]
	return t, ok
}

// EntriesFor returns the committed ledger entries naming a tag.
func (m *Store) EntriesFor(code string) []domain.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Entry
	for _, e := range m.state.entries {
		if e.TagCode == code {
			out = append(out, e)
		}
	}
	return out
}

func (m *Store) ProductCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.products)
}

func (m *Store) EntryCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.entries)
}

// Put stores a tag directly, bypassing the registry.
func (m *Store) Put(t domain.Tag) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.tags[t.Code] = t
}

type state struct {
	tags      map[string]domain.Tag
	products  map[string]domain.Product
	entries   []domain.Entry
	appendErr error
}

func (s *state) clone() *state {
	return &state{
		tags:     maps.Clone(s.tags),
		products: maps.Clone(s.products),
		entries:  slices.Clone(s.entries),
	}
}

func (s *state) stores() repo.Stores {
	return repo.Stores{
		Tags:     tags{s},
		Products: products{s},
		Ledger:   ledger{s},
	}
}

type tags struct{ s *state }

var _ repo.TagRepo = tags{}

func (r tags) Create(_ context.Context, t domain.Tag) (domain.Tag, error) {
	if _, ok := r.s.tags[t.Code]; ok {
		return domain.Tag{}, domain.Reject(domain.ErrConflict, domain.ReasonDuplicateCode, "tag %s exists", t.Code)
	}
	t.CreatedAt = time.Now()
	r.s.tags[t.Code] = t
	return t, nil
}

func (r tags) CodeExists(_ context.Context, code string) (bool, error) {
	_, ok := r.s.tags[code]
	return ok, nil
}

func (r tags) GetByCode(_ context.Context, code string) (domain.Tag, error) {
	t, ok := r.s.tags[code]
	if !ok {
		return domain.Tag{}, fmt.Errorf("tags.GetByCode: %w", domain.ErrNotFound)
	}
	return t, nil
}

func (r tags) GetByStampCode(_ context.Context, stamp string) (domain.Tag, error) {
	for _, t := range r.s.tags {
		if t.Tannery.StampCode == stamp {
			return t, nil
		}
	}
	return domain.Tag{}, fmt.Errorf("tags.GetByStampCode: %w", domain.ErrNotFound)
}

func (r tags) StampHolder(ctx context.Context, stamp string) (string, error) {
	t, err := r.GetByStampCode(ctx, stamp)
	if errors.Is(err, domain.ErrNotFound) {
		return "", nil
	}
	return t.Code, err
}

func (r tags) CountByConfirmation(_ context.Context, id int64) (int, error) {
	n := 0
	for _, t := range r.s.tags {
		if t.Origin.ConfirmationID == id {
			n++
		}
	}
	return n, nil
}

func (r tags) Save(_ context.Context, t domain.Tag) (domain.Tag, error) {
	cur, ok := r.s.tags[t.Code]
	if !ok {
		return domain.Tag{}, fmt.Errorf("tags.Save: %w", domain.ErrNotFound)
	}
	if t.Tannery.StampCode != "" {
		for code, other := range r.s.tags {
			if code != t.Code && other.Tannery.StampCode == t.Tannery.StampCode {
				return domain.Tag{}, domain.Reject(domain.ErrConflict, domain.ReasonStampCodeConflict, "stamp %s taken", t.Tannery.StampCode)
			}
		}
	}
	if t.Garment.ProductCode != "" {
		if _, ok := r.s.products[t.Garment.ProductCode]; !ok {
			return domain.Tag{}, domain.Reject(domain.ErrPreconditionFailed, domain.ReasonUnknownReference, "no product %s", t.Garment.ProductCode)
		}
	}
	// Stored timestamps, stamp and product link are never overwritten.
	keep := func(stored, next *time.Time) *time.Time {
		if stored != nil {
			return stored
		}
		return next
	}
	st := &t.Stages
	st.TraderArrived = keep(cur.Stages.TraderArrived, st.TraderArrived)
	st.TraderDispatched = keep(cur.Stages.TraderDispatched, st.TraderDispatched)
	st.TanneryArrived = keep(cur.Stages.TanneryArrived, st.TanneryArrived)
	st.TanneryDispatched = keep(cur.Stages.TanneryDispatched, st.TanneryDispatched)
	st.GarmentArrived = keep(cur.Stages.GarmentArrived, st.GarmentArrived)
	st.GarmentDispatched = keep(cur.Stages.GarmentDispatched, st.GarmentDispatched)
	if cur.Tannery.StampCode != "" {
		t.Tannery.StampCode = cur.Tannery.StampCode
	}
	if cur.Garment.ProductCode != "" {
		t.Garment.ProductCode = cur.Garment.ProductCode
	}
	t.Origin, t.CreatedBy, t.CreatedAt, t.PrintCount = cur.Origin, cur.CreatedBy, cur.CreatedAt, cur.PrintCount
	t.Garment.ProductTypes = t.Garment.ProductTypes.Clone()
	r.s.tags[t.Code] = t
	return t, nil
}

func (r tags) ListByProduct(_ context.Context, code string) ([]domain.Tag, error) {
	out := []domain.Tag{}
	for _, t := range r.s.tags {
		if t.Garment.ProductCode == code {
			out = append(out, t)
		}
	}
	slices.SortFunc(out, func(a, b domain.Tag) int { return strings.Compare(a.Code, b.Code) })
	return out, nil
}

func (r tags) IncrementPrints(_ context.Context, code string) (int, error) {
	t, ok := r.s.tags[code]
	if !ok {
		return 0, fmt.Errorf("tags.IncrementPrints: %w", domain.ErrNotFound)
	}
	t.PrintCount++
	r.s.tags[code] = t
	return t.PrintCount, nil
}

func (r tags) CountByHideSource(context.Context) (map[domain.HideSource]int64, error) {
	counts := map[domain.HideSource]int64{}
	for _, t := range r.s.tags {
		if t.Tannery.HideSource != "" {
			counts[t.Tannery.HideSource]++
		}
	}
	return counts, nil
}

type products struct{ s *state }

var _ repo.ProductRepo = products{}

func (r products) Create(_ context.Context, p domain.Product) (domain.Product, error) {
	if _, ok := r.s.products[p.Code]; ok {
		return domain.Product{}, domain.Reject(domain.ErrConflict, domain.ReasonDuplicateCode, "product %s exists", p.Code)
	}
	// Strictly increasing so newest-first listings are deterministic.
	p.CreatedAt = time.Now().Add(time.Duration(len(r.s.products)) * time.Millisecond)
	p.ProductTypes = p.ProductTypes.Clone()
	r.s.products[p.Code] = p
	return p, nil
}

func (r products) CodeExists(_ context.Context, code string) (bool, error) {
	_, ok := r.s.products[code]
	return ok, nil
}

func (r products) GetByCode(_ context.Context, code string) (domain.Product, error) {
	p, ok := r.s.products[code]
	if !ok {
		return domain.Product{}, fmt.Errorf("products.GetByCode: %w", domain.ErrNotFound)
	}
	return p, nil
}

func (r products) List(_ context.Context, f domain.ProductFilter, page domain.PaginationParams) ([]domain.Product, int64, error) {
	terms := f.Terms()
	matched := []domain.Product{}
	for _, p := range r.s.products {
		if !f.Scope.All && p.CreatedBy != f.Scope.UserID {
			continue
		}
		if r.matchesAll(p, terms) {
			matched = append(matched, p)
		}
	}
	slices.SortFunc(matched, func(a, b domain.Product) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.Code, b.Code)
	})
	total := int64(len(matched))
	start := min(page.Offset(), len(matched))
	end := min(start+page.Limit, len(matched))
	return matched[start:end], total, nil
}

func (r products) matchesAll(p domain.Product, terms []string) bool {
	for _, term := range terms {
		fields := append([]string{p.Code, p.Brand}, p.ProductTypes.Strings()...)
		for _, t := range r.s.tags {
			if t.Garment.ProductCode == p.Code {
				fields = append(fields, t.Code)
			}
		}
		if !slices.ContainsFunc(fields, func(v string) bool { return strings.Contains(strings.ToUpper(v), term) }) {
			return false
		}
	}
	return true
}

type ledger struct{ s *state }

var _ repo.LedgerRepo = ledger{}

func (r ledger) Append(_ context.Context, e domain.Entry) (uuid.UUID, error) {
	if r.s.appendErr != nil {
		return uuid.Nil, r.s.appendErr
	}
	if e.TagCode != "" {
		if _, ok := r.s.tags[e.TagCode]; !ok {
			return uuid.Nil, domain.Reject(domain.ErrPreconditionFailed, domain.ReasonUnknownReference, "no tag %s", e.TagCode)
		}
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	r.s.entries = append(r.s.entries, e)
	return e.ID, nil
}

func (r ledger) history(match func(domain.Entry) bool) []domain.Entry {
	out := []domain.Entry{}
	for _, e := range r.s.entries {
		if match(e) {
			out = append(out, e)
		}
	}
	// Stable: append order breaks timestamp ties, like the seq column.
	slices.SortStableFunc(out, func(a, b domain.Entry) int { return a.At.Compare(b.At) })
	return out
}

func (r ledger) HistoryForTag(_ context.Context, code string) ([]domain.Entry, error) {
	return r.history(func(e domain.Entry) bool { return e.TagCode == code }), nil
}

func (r ledger) HistoryForProduct(_ context.Context, code string) ([]domain.Entry, error) {
	return r.history(func(e domain.Entry) bool { return e.ProductCode == code }), nil
}

func visible(scope domain.Scope) func(domain.Entry) bool {
	return func(e domain.Entry) bool { return scope.All || e.UserID == scope.UserID }
}

func (r ledger) List(_ context.Context, f domain.TransactionFilter, p domain.PaginationParams) ([]domain.Entry, int64, error) {
	search := strings.ToLower(f.Search)
	matched := r.history(func(e domain.Entry) bool {
		if !visible(f.Scope)(e) {
			return false
		}
		if f.Role != "" && e.Role != f.Role {
			return false
		}
		if search == "" {
			return true
		}
		return strings.Contains(strings.ToLower(e.TagCode), search) ||
			strings.Contains(strings.ToLower(e.StampCode), search) ||
			strings.Contains(string(e.Action), search)
	})
	slices.Reverse(matched)
	total := int64(len(matched))
	start := min(p.Offset(), len(matched))
	end := min(start+p.Limit, len(matched))
	return matched[start:end], total, nil
}

func (r ledger) Summarize(_ context.Context, scope domain.Scope) (domain.Summary, error) {
	var s domain.Summary
	for _, e := range r.s.entries {
		if !visible(scope)(e) {
			continue
		}
		switch e.Action {
		case domain.ActionArrived:
			s.Arrived++
		case domain.ActionDispatched:
			s.Dispatched++
		case domain.ActionDataEntered:
			s.DataEntered++
		}
	}
	return s, nil
}

// Source is a map-backed confirmation feed.
type Source map[int64]domain.Confirmation

func (f Source) Confirmation(_ context.Context, id int64) (domain.Confirmation, error) {
	c, ok := f[id]
	if !ok {
		return domain.Confirmation{}, domain.Reject(domain.ErrNotFound, domain.ReasonUnknownReference, "confirmation %d not found", id)
	}
	return c, nil
}

// StepClock returns a clock that advances one minute per call.
func StepClock() func() time.Time {
	var (
		mu  sync.Mutex
		cur = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		cur = cur.Add(time.Minute)
		return cur
	}
}

// CodeBytes returns random bytes that the code minter turns into exactly the
// given codes, in order.
func CodeBytes(codes ...string) *bytes.Reader {
	const alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	var b []byte
	for _, c := range codes {
		for _, r := range c {
			b = append(b, byte(strings.IndexRune(alphabet, r)))
		}
	}
	return bytes.NewReader(b)
}
