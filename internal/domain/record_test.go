package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord_RoundTripPreservesOrder(t *testing.T) {
	snap := CartSnapshot{Items: []CartLineItem{
		{LineItemID: "b", ProductID: "p2", Name: "Keyboard", UnitPrice: decimal.RequireFromString("5.50"), Quantity: 1, ImageRef: "kb.png"},
		{LineItemID: "a", ProductID: "p1", Name: "Mouse", UnitPrice: decimal.RequireFromString("10.00"), Quantity: 2},
	}}

	b, err := EncodeRecord(TierLongLived, snap, time.Now())
	require.NoError(t, err)

	rec, err := DecodeRecord(b, TierLongLived)
	require.NoError(t, err)
	assert.Equal(t, TierLongLived, rec.Tier)
	require.Len(t, rec.Items, 2)
	for i := range snap.Items {
		assert.Equal(t, snap.Items[i].LineItemID, rec.Items[i].LineItemID)
		assert.Equal(t, snap.Items[i].Quantity, rec.Items[i].Quantity)
		assert.True(t, snap.Items[i].UnitPrice.Equal(rec.Items[i].UnitPrice))
	}
}

func TestRecord_EmptySnapshotEncodesEmptyList(t *testing.T) {
	b, err := EncodeRecord(TierSession, CartSnapshot{}, time.Now())
	require.NoError(t, err)
	assert.Contains(t, string(b), `"items":[]`)
}

func TestDecodeRecord_Garbage(t *testing.T) {
	_, err := DecodeRecord([]byte("{not json"), TierSession)
	assert.Error(t, err)
}

func TestDecodeRecord_RejectsOtherTier(t *testing.T) {
	b, err := EncodeRecord(TierLongLived, CartSnapshot{}, time.Now())
	require.NoError(t, err)

	_, err = DecodeRecord(b, TierSession)
	assert.ErrorIs(t, err, ErrTierMismatch)
}
