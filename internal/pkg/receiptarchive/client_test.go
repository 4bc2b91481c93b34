package receiptarchive

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestObjectKeyDeterministic(t *testing.T) {
	payload := []byte(`{"receipt":"abc"}`)

	first := ObjectKey("apple", 42, payload)
	second := ObjectKey("apple", 42, payload)
	assert.Equal(t, first, second, "same payload maps to the same key")
	assert.Contains(t, first, "receipts/apple/42/")
	assert.Contains(t, first, ".json")

	other := ObjectKey("apple", 42, []byte(`{"receipt":"def"}`))
	assert.NotEqual(t, first, other)
}
