package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStockRequest_Extradition(t *testing.T) {
	profile := uuid.New()
	destination := uuid.New()

	request, err := NewStockRequest("EX-1", KindExtradition, profile, &destination)

	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, request.ID)
	assert.Equal(t, StatusPackage, request.Status)
	assert.Nil(t, request.Destination, "extraditions never carry a destination")
	assert.False(t, request.IsClaimed())
	assert.False(t, request.ModifiedAt.IsZero())
}

func TestNewStockRequest_Move(t *testing.T) {
	profile := uuid.New()
	destination := uuid.New()

	request, err := NewStockRequest("MV-1", KindMove, profile, &destination)

	require.NoError(t, err)
	assert.Equal(t, StatusMoving, request.Status)
	require.NotNil(t, request.Destination)
	assert.Equal(t, destination, *request.Destination)
}

func TestNewStockRequest_Invalid(t *testing.T) {
	_, err := NewStockRequest("", KindExtradition, uuid.New(), nil)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = NewStockRequest("EX-1", KindExtradition, uuid.Nil, nil)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = NewStockRequest("MV-1", KindMove, uuid.New(), nil)
	assert.ErrorIs(t, err, ErrMissingDestination)

	empty := uuid.Nil
	_, err = NewStockRequest("MV-1", KindMove, uuid.New(), &empty)
	assert.ErrorIs(t, err, ErrMissingDestination)
}

func TestQueueKind(t *testing.T) {
	assert.Equal(t, StatusPackage, KindExtradition.Status())
	assert.Equal(t, StatusExtradition, KindExtradition.CompletedStatus())
	assert.Equal(t, CapabilityPackage, KindExtradition.Capability())

	assert.Equal(t, StatusMoving, KindMove.Status())
	assert.Equal(t, StatusWarehouse, KindMove.CompletedStatus())
	assert.Equal(t, CapabilityWarehouseSend, KindMove.Capability())

	kind, err := ParseQueueKind(" Move ")
	require.NoError(t, err)
	assert.Equal(t, KindMove, kind)

	_, err = ParseQueueKind("return")
	assert.Error(t, err)
}

func TestKindOf(t *testing.T) {
	for _, status := range []Status{StatusIncoming, StatusExtradition, StatusWarehouse, StatusCompleted, StatusCancel, StatusError} {
		_, ok := KindOf(status)
		assert.False(t, ok, string(status))
		assert.False(t, status.Actionable(), string(status))
	}

	kind, ok := KindOf(StatusMoving)
	assert.True(t, ok)
	assert.Equal(t, KindMove, kind)
	assert.True(t, StatusPackage.Actionable())
}

func TestStockRequest_Claims(t *testing.T) {
	operator := uuid.New()
	other := uuid.New()
	request, err := NewStockRequest("EX-1", KindExtradition, uuid.New(), nil)
	require.NoError(t, err)

	assert.True(t, request.EligibleFor(operator))
	assert.False(t, request.ClaimedBy(operator))

	request.FixedBy = &operator

	assert.True(t, request.IsClaimed())
	assert.True(t, request.ClaimedBy(operator))
	assert.True(t, request.EligibleFor(operator))
	assert.False(t, request.EligibleFor(other))
}

func TestStockRequest_NextOwner(t *testing.T) {
	warehouse := uuid.New()
	store := uuid.New()

	extradition, err := NewStockRequest("EX-1", KindExtradition, warehouse, nil)
	require.NoError(t, err)
	assert.Equal(t, warehouse, extradition.NextOwner())

	move, err := NewStockRequest("MV-1", KindMove, warehouse, &store)
	require.NoError(t, err)
	assert.Equal(t, store, move.NextOwner())
}

func TestLineItem_Postfix(t *testing.T) {
	item := LineItem{OfferPostfix: "XL", VariationPostfix: " ", ModificationPostfix: "хлопок"}
	assert.Equal(t, "XL хлопок", item.Postfix())
	assert.Equal(t, "", LineItem{}.Postfix())
}
