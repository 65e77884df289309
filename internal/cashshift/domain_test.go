package cashshift

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestOriginRefConstructors(t *testing.T) {
	paymentID := uuid.New()
	shiftID := uuid.New()

	ref := SalePaymentOrigin(paymentID)
	require.Equal(t, OriginSalePayment, ref.Kind)
	require.Equal(t, paymentID, ref.ID)

	ref = ShiftOrigin(shiftID)
	require.Equal(t, OriginShift, ref.Kind)
	require.Equal(t, shiftID, ref.ID)

	ref = ManualOrigin()
	require.Equal(t, OriginManual, ref.Kind)
	require.Equal(t, uuid.Nil, ref.ID)
}

func TestDirectionForFixedPolarity(t *testing.T) {
	cases := map[MovementType]Direction{
		MovementOpeningFloat: DirectionIn,
		MovementSupply:       DirectionIn,
		MovementWithdrawal:   DirectionOut,
		MovementClosing:      DirectionOut,
		MovementRefund:       DirectionOut,
	}
	for mt, want := range cases {
		got, ok := directionFor(mt)
		require.True(t, ok, "type %s", mt)
		require.Equal(t, want, got, "type %s", mt)
	}

	// Sale payments carry the method's polarity, not a fixed one.
	_, ok := directionFor(MovementSalePayment)
	require.False(t, ok)
}
