package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/hidetrace/backend/internal/domain"
)

var t0 = time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

func at(h int) time.Time { return t0.Add(time.Duration(h) * time.Hour) }

func freshTag() domain.Tag {
	return domain.Tag{Code: "ABCD1234"}
}

// advance applies a sequence of actions with valid fields, failing the test
// on any rejection.
func advance(t *testing.T, tag domain.Tag, actions ...domain.Action) domain.Tag {
	t.Helper()
	for i, a := range actions {
		var err error
		tag, err = domain.Transition(tag, a, validInput(a), at(i+1))
		require.NoError(t, err, "advance %s", a)
	}
	return tag
}

func validInput(a domain.Action) domain.TransitionInput {
	switch a {
	case domain.TanneryArrived:
		return domain.TransitionInput{Fields: domain.StageFields{StampCode: "tz001", HideSource: "cow", VehicleNumber: " KA-01 "}}
	case domain.TanneryDispatched:
		return domain.TransitionInput{Fields: domain.StageFields{StampCode: "TZ001", LotNumber: "L-7", Destination: "GarmentCo", TannageType: "Chrome"}}
	}
	return domain.TransitionInput{}
}

func TestTransition_FullPath(t *testing.T) {
	tag := advance(t, freshTag(),
		domain.TraderArrived, domain.TraderDispatched,
		domain.TanneryArrived, domain.TanneryDispatched,
		domain.GarmentArrived, domain.GarmentDispatched,
	)

	require.NotNil(t, tag.Stages.GarmentDispatched)
	assert.Equal(t, domain.StatusDispatchedFromGarment, tag.Status())
	assert.Equal(t, "TZ001", tag.Tannery.StampCode, "stamp is stored normalised")
	assert.Equal(t, domain.HideCow, tag.Tannery.HideSource)
	assert.Equal(t, "KA-01", tag.Tannery.VehicleNumber)
	assert.Equal(t, "GarmentCo", tag.Tannery.Destination)
	assert.Equal(t, domain.TannageChrome, tag.Tannery.TannageType)
	assert.Equal(t, "Hide", tag.LeatherType())
}

func TestTransition_DoesNotMutateInput(t *testing.T) {
	tag := freshTag()

	out, err := domain.Transition(tag, domain.TraderArrived, domain.TransitionInput{}, at(1))

	require.NoError(t, err)
	assert.Nil(t, tag.Stages.TraderArrived)
	require.NotNil(t, out.Stages.TraderArrived)
	assert.True(t, out.Stages.TraderArrived.Equal(at(1)))
}

func TestTransition_RepeatIsConflict(t *testing.T) {
	path := []domain.Action{
		domain.TraderArrived, domain.TraderDispatched,
		domain.TanneryArrived, domain.TanneryDispatched,
		domain.GarmentArrived,
	}
	for i, a := range path {
		t.Run(a.String(), func(t *testing.T) {
			tag := advance(t, freshTag(), path[:i+1]...)

			_, err := domain.Transition(tag, a, validInput(a), at(20))

			require.ErrorIs(t, err, domain.ErrConflict)
			want := domain.ReasonAlreadyArrived
			if a.Direction == domain.Dispatched {
				want = domain.ReasonAlreadyDispatched
			}
			assert.Equal(t, want, domain.ReasonOf(err))
			assert.Contains(t, err.Error(), "ABCD1234")
		})
	}
}

func TestTransition_OutOfOrderIsPreconditionFailed(t *testing.T) {
	path := []domain.Action{
		domain.TraderArrived, domain.TraderDispatched,
		domain.TanneryArrived, domain.TanneryDispatched,
		domain.GarmentArrived, domain.GarmentDispatched,
	}
	// Every action after the first fails when its predecessor is missing.
	for i := 1; i < len(path); i++ {
		a := path[i]
		t.Run(a.String(), func(t *testing.T) {
			tag := advance(t, freshTag(), path[:i-1]...)

			_, err := domain.Transition(tag, a, validInput(a), at(20))

			require.ErrorIs(t, err, domain.ErrPreconditionFailed)
		})
	}
}

func TestTransition_TannerySkipsAheadRejected(t *testing.T) {
	_, err := domain.Transition(freshTag(), domain.TanneryDispatched, validInput(domain.TanneryDispatched), at(1))

	require.ErrorIs(t, err, domain.ErrPreconditionFailed)
	assert.Equal(t, domain.ReasonNotYetArrived, domain.ReasonOf(err))
}

func TestTransition_TanneryArrival_Fields(t *testing.T) {
	base := advance(t, freshTag(), domain.TraderArrived, domain.TraderDispatched)

	tests := []struct {
		name   string
		in     domain.TransitionInput
		kind   error
		reason domain.Reason
	}{
		{"missing stamp", domain.TransitionInput{Fields: domain.StageFields{HideSource: "Cow"}}, domain.ErrInvalidInput, domain.ReasonMissingField},
		{"missing hide source", domain.TransitionInput{Fields: domain.StageFields{StampCode: "S1"}}, domain.ErrInvalidInput, domain.ReasonMissingField},
		{"unknown hide source", domain.TransitionInput{Fields: domain.StageFields{StampCode: "S1", HideSource: "Camel"}}, domain.ErrInvalidInput, domain.ReasonInvalidValue},
		{"stamp held by other tag", domain.TransitionInput{Fields: domain.StageFields{StampCode: "S1", HideSource: "Goat"}, StampHolder: "ZZZZ9999"}, domain.ErrConflict, domain.ReasonStampCodeConflict},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := domain.Transition(base, domain.TanneryArrived, tc.in, at(5))

			require.ErrorIs(t, err, tc.kind)
			assert.Equal(t, tc.reason, domain.ReasonOf(err))
		})
	}
}

func TestTransition_TanneryDispatch_StampMismatch(t *testing.T) {
	tag := advance(t, freshTag(), domain.TraderArrived, domain.TraderDispatched, domain.TanneryArrived)
	in := validInput(domain.TanneryDispatched)
	in.Fields.StampCode = "OTHER"

	_, err := domain.Transition(tag, domain.TanneryDispatched, in, at(9))

	require.ErrorIs(t, err, domain.ErrPreconditionFailed)
	assert.Equal(t, domain.ReasonStampMismatch, domain.ReasonOf(err))
}

func TestTransition_TanneryDispatch_MissingFieldsListed(t *testing.T) {
	tag := advance(t, freshTag(), domain.TraderArrived, domain.TraderDispatched, domain.TanneryArrived)

	_, err := domain.Transition(tag, domain.TanneryDispatched, domain.TransitionInput{Fields: domain.StageFields{StampCode: "TZ001"}}, at(9))

	require.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Contains(t, err.Error(), "lot number, destination")
}

func TestTransition_GarmentDispatch_AlreadyLinked(t *testing.T) {
	tag := advance(t, freshTag(),
		domain.TraderArrived, domain.TraderDispatched,
		domain.TanneryArrived, domain.TanneryDispatched,
		domain.GarmentArrived,
	)
	tag.Garment.ProductCode = "PRODUCT00001"

	_, err := domain.Transition(tag, domain.GarmentDispatched, domain.TransitionInput{}, at(9))

	require.ErrorIs(t, err, domain.ErrConflict)
	assert.Equal(t, domain.ReasonAlreadyLinked, domain.ReasonOf(err))
}

func TestTransition_ClockSkewRejected(t *testing.T) {
	tag := advance(t, freshTag(), domain.TraderArrived)

	_, err := domain.Transition(tag, domain.TraderDispatched, domain.TransitionInput{}, t0)

	require.ErrorIs(t, err, domain.ErrPreconditionFailed)
	assert.Equal(t, domain.ReasonClockSkew, domain.ReasonOf(err))
}

func TestTransition_UnknownAction(t *testing.T) {
	_, err := domain.Transition(freshTag(), domain.Action{Stage: domain.Stage(7)}, domain.TransitionInput{}, t0)

	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
}

func TestParseStage(t *testing.T) {
	for _, s := range domain.Stages {
		got, err := domain.ParseStage(" " + s.String() + " ")
		require.NoError(t, err)
		assert.Equal(t, s, got)

		fromRole, ok := domain.StageForRole(s.Role())
		require.True(t, ok)
		assert.Equal(t, s, fromRole)
	}

	_, err := domain.ParseStage("slaughterhouse")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
