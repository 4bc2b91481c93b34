package sweeper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subtrack-app/subtrack/internal/pkg/cache"
)

func TestInitCronSchedulesAndStarts(t *testing.T) {
	sw := NewSweeper(&fakeStore{}, nil, cache.NewMemory(), nil)

	c := sw.InitCron()
	require.NotNil(t, c)
	defer c.Stop()

	// Correction sweep, grace expiry, expiry warnings, counter flush.
	assert.Len(t, c.Entries(), 4)
}
