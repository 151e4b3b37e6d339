package domain_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/pkordes/hidetrace/backend/internal/domain"
)

func ptr(t time.Time) *time.Time { return &t }

func TestStatusOf(t *testing.T) {
	tests := []struct {
		name   string
		st     domain.StageTimes
		linked bool
		want   domain.Status
	}{
		{"nothing set", domain.StageTimes{}, false, domain.StatusAtSlaughterhouse},
		{"trader arrived", domain.StageTimes{TraderArrived: ptr(t0)}, false, domain.StatusWithTrader},
		{"trader dispatched", domain.StageTimes{TraderArrived: ptr(t0), TraderDispatched: ptr(t0)}, false, domain.StatusDispatchedToTannery},
		{"tannery arrived", domain.StageTimes{TanneryArrived: ptr(t0)}, false, domain.StatusAtTannery},
		{"tannery dispatched", domain.StageTimes{TanneryDispatched: ptr(t0)}, false, domain.StatusDispatchedFromTannery},
		{"garment arrived", domain.StageTimes{GarmentArrived: ptr(t0)}, false, domain.StatusAtGarment},
		{"garment dispatched", domain.StageTimes{GarmentDispatched: ptr(t0)}, false, domain.StatusDispatchedFromGarment},
		{"linked", domain.StageTimes{GarmentArrived: ptr(t0)}, true, domain.StatusDispatchedFromGarment},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, domain.StatusOf(tc.st, tc.linked))
		})
	}
}

func TestStatus_Describe(t *testing.T) {
	assert.Equal(t, "Dispatched to GarmentCo", domain.StatusDispatchedFromTannery.Describe("GarmentCo"))
	assert.Equal(t, "Dispatched from tannery", domain.StatusDispatchedFromTannery.Describe(""))
	assert.Equal(t, "with_trader", domain.StatusWithTrader.String())
}

func TestProductTypes_OrderedSet(t *testing.T) {
	set, err := domain.NewProductTypes([]string{"bag", "Jacket", "BAG", " belt "})

	require.NoError(t, err)
	assert.Equal(t, []string{"Bag", "Jacket", "Belt"}, set.Strings())
	assert.True(t, set.Has(domain.ProductJacket))
	assert.False(t, set.Has(domain.ProductShoes))

	clone := set.Clone()
	clone.Add(domain.ProductShoes)
	assert.Equal(t, 3, set.Len(), "clone must not alias the original")
	assert.False(t, set.Equal(clone))
}

func TestProductTypes_UnknownLabel(t *testing.T) {
	_, err := domain.NewProductTypes([]string{"Jacket", "Hat"})

	require.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Contains(t, err.Error(), "Hat")
}

func TestProductSpec_Build(t *testing.T) {
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("defaults process date to now", func(t *testing.T) {
		p, err := domain.ProductSpec{PieceCount: 10, ProductTypes: []string{"Jacket"}, Brand: " X "}.Build("u1", now)

		require.NoError(t, err)
		assert.True(t, p.ProcessDate.Equal(now))
		assert.Equal(t, "X", p.Brand)
		assert.Equal(t, "u1", p.CreatedBy)
	})

	t.Run("other requires text", func(t *testing.T) {
		_, err := domain.ProductSpec{PieceCount: 1, ProductTypes: []string{"Other"}}.Build("u1", now)

		require.ErrorIs(t, err, domain.ErrInvalidInput)
		assert.Equal(t, domain.ReasonMissingField, domain.ReasonOf(err))
	})

	t.Run("other text dropped without Other", func(t *testing.T) {
		p, err := domain.ProductSpec{PieceCount: 1, ProductTypes: []string{"Bag"}, OtherProductType: "Hat"}.Build("u1", now)

		require.NoError(t, err)
		assert.Empty(t, p.OtherProductType)
	})

	t.Run("future date rejected", func(t *testing.T) {
		future := now.Add(time.Hour)
		_, err := domain.ProductSpec{PieceCount: 1, ProductTypes: []string{"Bag"}, ProcessDate: &future}.Build("u1", now)

		require.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("zero pieces rejected", func(t *testing.T) {
		_, err := domain.ProductSpec{ProductTypes: []string{"Bag"}}.Build("u1", now)

		require.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("no types rejected", func(t *testing.T) {
		_, err := domain.ProductSpec{PieceCount: 2}.Build("u1", now)

		require.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestRejection_UnwrapsThroughLayers(t *testing.T) {
	cause := errors.New("boom")
	rej := &domain.Rejection{Kind: domain.ErrConflict, Reason: domain.ReasonAlreadyLinked, Message: "tag X is linked", Cause: cause}
	wrapped := fmt.Errorf("service.AggregationEngine.Create: %w", rej)

	assert.ErrorIs(t, wrapped, domain.ErrConflict)
	assert.ErrorIs(t, wrapped, cause)
	assert.Equal(t, domain.ReasonAlreadyLinked, domain.ReasonOf(wrapped))
	assert.Equal(t, domain.ErrConflict, domain.KindOf(wrapped))
	assert.Equal(t, "conflict: tag X is linked", rej.Error())
}

func TestRejection_StaysWholeInMultiErrors(t *testing.T) {
	cause := errors.New("unique violation")
	rej := &domain.Rejection{Kind: domain.ErrConflict, Reason: domain.ReasonStampCodeConflict, Message: "stamp TZ001 is taken", Cause: cause}

	parts := multierr.Errors(rej)
	require.Len(t, parts, 1)
	assert.Equal(t, domain.ReasonStampCodeConflict, domain.ReasonOf(parts[0]))

	combined := multierr.Combine(rej, domain.Reject(domain.ErrNotFound, domain.ReasonTagNotFound, "tag Z not found"))
	parts = multierr.Errors(combined)
	require.Len(t, parts, 2)
	assert.Equal(t, domain.ReasonStampCodeConflict, domain.ReasonOf(parts[0]))
	assert.Equal(t, domain.ReasonTagNotFound, domain.ReasonOf(parts[1]))

	assert.ErrorIs(t, rej, domain.ErrConflict)
	assert.ErrorIs(t, rej, cause)
	assert.NotErrorIs(t, rej, domain.ErrNotFound)
}

func TestKindOf_OuterRejectionWins(t *testing.T) {
	inner := domain.Reject(domain.ErrNotFound, domain.ReasonTagNotFound, "tag A not found")
	outer := &domain.Rejection{Kind: domain.ErrPreconditionFailed, Reason: domain.ReasonBatchRejected, Cause: inner}

	assert.Equal(t, domain.ErrPreconditionFailed, domain.KindOf(outer))
	assert.Nil(t, domain.KindOf(errors.New("plain")))
}

func TestScopeFor(t *testing.T) {
	admin := domain.Principal{UserID: "a", Role: domain.RoleAdmin}
	trader := domain.Principal{UserID: "t1", Role: domain.RoleTrader}

	s, err := domain.ScopeFor(admin, domain.EntityTransaction)
	require.NoError(t, err)
	assert.True(t, s.All)

	s, err = domain.ScopeFor(trader, domain.EntityTransaction)
	require.NoError(t, err)
	assert.Equal(t, domain.Scope{UserID: "t1"}, s)

	_, err = domain.ScopeFor(domain.Anonymous, domain.EntityTransaction)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	s, err = domain.ScopeFor(domain.Anonymous, domain.EntityTag)
	require.NoError(t, err)
	assert.True(t, s.All, "tags are public provenance")

	s, err = domain.ScopeFor(trader, domain.EntityProduct)
	require.NoError(t, err)
	assert.Equal(t, domain.Scope{UserID: "t1"}, s, "products list only the caller's own")

	s, err = domain.ScopeFor(admin, domain.EntityProduct)
	require.NoError(t, err)
	assert.True(t, s.All)

	_, err = domain.ScopeFor(domain.Principal{UserID: "v1", Role: domain.RoleVisitor}, domain.EntityProduct)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestProductFilter_Terms(t *testing.T) {
	f := domain.ProductFilter{Search: "  jacket   garmentco "}
	assert.Equal(t, []string{"JACKET", "GARMENTCO"}, f.Terms())
	assert.Empty(t, domain.ProductFilter{}.Terms())
}

func TestAuthorize(t *testing.T) {
	assert.NoError(t, domain.Authorize(domain.Principal{UserID: "t", Role: domain.RoleTannery}, domain.RoleTannery))
	assert.NoError(t, domain.Authorize(domain.Principal{UserID: "a", Role: domain.RoleAdmin}, domain.RoleGarment))
	assert.ErrorIs(t, domain.Authorize(domain.Principal{UserID: "t", Role: domain.RoleTrader}, domain.RoleTannery), domain.ErrUnauthorized)
	assert.ErrorIs(t, domain.Authorize(domain.Anonymous, domain.RoleTrader), domain.ErrUnauthorized)
}

func TestConfirmation_TotalTagsAndOrigin(t *testing.T) {
	c := domain.Confirmation{ID: 55, Command: "B12", TotalAnimals: 3, PrintsCounter: 2}
	assert.Equal(t, 12, c.TotalTags())

	c.Command = "M1"
	assert.Equal(t, 3, c.TotalTags())

	c.Command = ""
	o := c.Origin("OLD-1")
	assert.Equal(t, 0, o.TotalTags)
	assert.Equal(t, "N/A", o.Command)
	assert.Equal(t, "N/A", o.OffalCollector)
	assert.Equal(t, int64(55), o.ConfirmationID)
	assert.Equal(t, "OLD-1", o.LegacyTag)
	assert.Equal(t, 2, o.TotalPrints)
}

func TestPaginationParams(t *testing.T) {
	five, big, zero := 5, 500, 0

	assert.Equal(t, domain.PaginationParams{Page: 1, Limit: 20}, domain.NewPaginationParams(nil, nil))
	assert.Equal(t, domain.PaginationParams{Page: 5, Limit: 100}, domain.NewPaginationParams(&five, &big))
	assert.Equal(t, domain.PaginationParams{Page: 1, Limit: 20}, domain.NewPaginationParams(&zero, &zero))
	assert.Equal(t, 80, domain.PaginationParams{Page: 5, Limit: 20}.Offset())

	page := domain.Page[int]{Total: 41, PaginationParams: domain.PaginationParams{Page: 1, Limit: 20}}
	assert.Equal(t, 3, page.TotalPages())
}

func TestParseRole(t *testing.T) {
	assert.Equal(t, domain.RoleTannery, domain.ParseRole(" Tannery "))
	assert.Equal(t, domain.RoleVisitor, domain.ParseRole("superuser"))
}
