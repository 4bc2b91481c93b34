package purchases

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchReportsDelivery(t *testing.T) {
	client := NewAppStoreClient("http://unused", "http://unused", "", "")

	var delivered []Purchase
	client.SetListeners(func(p Purchase) { delivered = append(delivered, p) }, nil)

	// Not connected yet: the event is dropped and the caller is told.
	assert.False(t, client.Dispatch(Purchase{TransactionID: "tx-1"}))
	assert.Empty(t, delivered)

	require.NoError(t, client.Connect(context.Background()))
	assert.True(t, client.Dispatch(Purchase{TransactionID: "tx-2"}))
	require.Len(t, delivered, 1)
	assert.Equal(t, "tx-2", delivered[0].TransactionID)

	require.NoError(t, client.Disconnect())
	assert.False(t, client.Dispatch(Purchase{TransactionID: "tx-3"}))
	assert.Len(t, delivered, 1)
}

func TestDispatchWithoutListener(t *testing.T) {
	client := NewAppStoreClient("http://unused", "http://unused", "", "")
	require.NoError(t, client.Connect(context.Background()))

	assert.False(t, client.Dispatch(Purchase{TransactionID: "tx-1"}))
}
