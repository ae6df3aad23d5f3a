package procurement

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveReceivingStatus(t *testing.T) {
	cases := []struct {
		name                         string
		expected, received, rejected int64
		want                         ReceivingStatus
	}{
		{"nothing arrived", 10, 0, 0, ReceivingPending},
		{"complete", 10, 10, 0, ReceivingComplete},
		{"partial", 10, 4, 0, ReceivingPartial},
		{"divergence beats complete", 12, 12, 1, ReceivingDivergence},
		{"divergence beats partial", 12, 5, 2, ReceivingDivergence},
		{"divergence with nothing accepted", 12, 0, 3, ReceivingDivergence},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DeriveReceivingStatus(tc.expected, tc.received, tc.rejected))
		})
	}
}

func TestNewReceivingRecordCountsAgainstOutstanding(t *testing.T) {
	now := newTestClock().Now()
	po := buildOrder(t,
		OrderItemInput{ID: "a", Description: "Glass", Quantity: 8, UnitPrice: 100},
		OrderItemInput{ID: "b", Description: "Plate", Quantity: 4, UnitPrice: 100},
	)
	confirm(t, po)
	require.NoError(t, po.ApplyReceiving("r0", []ReceivingLine{{ItemID: "a", ReceivedQty: 2}}, now))

	rec, err := newReceivingRecord("r1", po, ReceivingInput{Responsible: "Joana", Lines: []ReceivingLine{
		{ItemID: "a", ReceivedQty: 6},
		{ItemID: "b", ReceivedQty: 3, RejectedQty: 1},
	}}, now)
	require.NoError(t, err)
	require.EqualValues(t, 10, rec.ExpectedItemCount)
	require.EqualValues(t, 9, rec.ReceivedItemCount)
	require.EqualValues(t, 1, rec.RejectedItemCount)
	require.Equal(t, ReceivingDivergence, rec.Status())
	require.Equal(t, "po-1", rec.OrderID)

	_, err = newReceivingRecord("r2", po, ReceivingInput{}, now)
	require.ErrorIs(t, err, ErrValidation)
}

func TestReceivingRecordJSONCarriesDerivedStatus(t *testing.T) {
	rec := ReceivingRecord{Meta: Meta{ID: "r1"}, ExpectedItemCount: 12, ReceivedItemCount: 12, RejectedItemCount: 1}
	body, err := json.Marshal(rec)
	require.NoError(t, err)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(body, &raw))
	require.Equal(t, "com_divergencia", raw["status"])
	require.Equal(t, "r1", raw["id"])

	var back ReceivingRecord
	require.NoError(t, json.Unmarshal(body, &back))
	require.Equal(t, rec.Status(), back.Status())
}
