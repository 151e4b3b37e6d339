package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/hidetrace/backend/internal/domain"
	"github.com/pkordes/hidetrace/backend/internal/service"
	"github.com/pkordes/hidetrace/backend/internal/service/servicetest"
)

// TestCustodyChain walks one hide from slaughter confirmation #55 to a
// garment product, checking each rejection along the way.
func TestCustodyChain(t *testing.T) {
	f := newFixture(
		servicetest.Source{55: confirmation(55, "L-55-1"), 56: confirmation(56, "L-56-1")},
		service.WithRandom(servicetest.CodeBytes("ABCD1234", "EFGH5678", "PRODUCT00001")),
	)
	ctx := context.Background()
	traderStage := service.NewTraderStage(f.rec)
	tanneryStage := service.NewTanneryStage(f.rec)
	garmentStage := service.NewGarmentStage(f.rec, f.agg)

	tag, err := f.registry.RegisterTag(ctx, slaughter, 55)
	require.NoError(t, err)
	require.Equal(t, "ABCD1234", tag.Code)
	assert.Equal(t, "L-55-1", tag.Origin.LegacyTag)
	assert.Equal(t, 4, tag.Origin.TotalTags)
	assert.Equal(t, "N/A", tag.Origin.OffalCollector)

	other, err := f.registry.RegisterTag(ctx, slaughter, 56)
	require.NoError(t, err)
	require.Equal(t, "EFGH5678", other.Code)

	// Trader arrival, once.
	got, err := traderStage.Arrive(ctx, trader, "ABCD1234")
	require.NoError(t, err)
	require.NotNil(t, got.Stages.TraderArrived)
	firstArrival := *got.Stages.TraderArrived

	_, err = traderStage.Arrive(ctx, trader, "abcd1234 ")
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Equal(t, domain.ReasonAlreadyArrived, domain.ReasonOf(err))
	stored, _ := f.store.Tag("ABCD1234")
	assert.True(t, stored.Stages.TraderArrived.Equal(firstArrival), "second arrival must not move the timestamp")

	_, err = traderStage.Dispatch(ctx, trader, "ABCD1234")
	require.NoError(t, err)

	got, err = tanneryStage.Arrive(ctx, tannery, "ABCD1234", service.TanneryArrival{StampCode: "TZ001", HideSource: "cow", VehicleNumber: "3-A1234"})
	require.NoError(t, err)
	assert.Equal(t, "TZ001", got.Tannery.StampCode)
	assert.Equal(t, domain.HideCow, got.Tannery.HideSource)
	assert.Equal(t, "Hide", got.LeatherType())

	// The second tag cannot take the same stamp.
	_, err = traderStage.Arrive(ctx, trader, "EFGH5678")
	require.NoError(t, err)
	_, err = traderStage.Dispatch(ctx, trader, "EFGH5678")
	require.NoError(t, err)
	_, err = tanneryStage.Arrive(ctx, tannery, "EFGH5678", service.TanneryArrival{StampCode: "tz001", HideSource: "Goat"})
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Equal(t, domain.ReasonStampCodeConflict, domain.ReasonOf(err))

	// Dispatch addressed by stamp code.
	got, err = tanneryStage.Dispatch(ctx, tannery, "TZ001", service.TanneryDispatch{LotNumber: "LOT-9", Destination: "GarmentCo", TannageType: "Chrome"})
	require.NoError(t, err)
	assert.Equal(t, "ABCD1234", got.Code)
	assert.Equal(t, "Dispatched to GarmentCo", got.Status().Describe(got.Tannery.Destination))

	_, err = garmentStage.Arrive(ctx, garment, "ABCD1234")
	require.NoError(t, err)

	agg, err := garmentStage.Aggregate(ctx, garment, []string{"ABCD1234"}, domain.ProductSpec{
		PieceCount: 10, ProductTypes: []string{"Jacket"}, Brand: "X",
	})
	require.NoError(t, err)
	assert.Len(t, agg.Product.Code, domain.ProductCodeLength)
	assert.Equal(t, "PRODUCT00001", agg.Product.Code)
	require.Len(t, agg.Tags, 1)

	stored, _ = f.store.Tag("ABCD1234")
	require.NotNil(t, stored.Stages.GarmentDispatched)
	assert.Equal(t, agg.Product.Code, stored.Garment.ProductCode)
	assert.Equal(t, []string{"Jacket"}, stored.Garment.ProductTypes.Strings())
	assert.Equal(t, "X", stored.Garment.Brand)
	assert.Equal(t, domain.StatusDispatchedFromGarment, stored.Status())

	tr, err := f.tracer.GetTagTrace(ctx, "ABCD1234")
	require.NoError(t, err)
	require.NotNil(t, tr.Tag)
	require.NotNil(t, tr.Product)
	assert.Equal(t, agg.Product.Code, tr.Product.Code)

	// data_entered plus one entry per accepted transition; rejections left none.
	actions := make([]string, 0, len(tr.History))
	for i, e := range tr.History {
		actions = append(actions, string(e.Role)+"."+string(e.Action))
		if i > 0 {
			assert.False(t, e.At.Before(tr.History[i-1].At), "history must be in timestamp order")
		}
	}
	assert.Equal(t, []string{
		"slaughterhouse.data_entered",
		"trader.arrived", "trader.dispatched",
		"tannery.arrived", "tannery.dispatched",
		"garment.arrived", "garment.dispatched",
	}, actions)

	// The product code is itself a trace key.
	ptr, err := f.tracer.GetTagTrace(ctx, agg.Product.Code)
	require.NoError(t, err)
	assert.Nil(t, ptr.Tag)
	require.Len(t, ptr.Tags, 1)
	assert.Equal(t, "ABCD1234", ptr.Tags[0].Code)

	// As is the stamp code.
	str, err := f.tracer.GetTagTrace(ctx, "TZ001")
	require.NoError(t, err)
	assert.Equal(t, "ABCD1234", str.Tag.Code)
}
