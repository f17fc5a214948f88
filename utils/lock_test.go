package utils

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLockerExclusive(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	release, ok, err := l.TryLock(ctx, "aggregation")
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.TryLock(ctx, "aggregation")
	require.NoError(t, err)
	assert.False(t, ok, "second TryLock on a held name should fail")

	_, ok, _ = l.TryLock(ctx, "normalization")
	assert.True(t, ok, "different names are independent")

	release()
	release() // idempotent

	_, ok, _ = l.TryLock(ctx, "aggregation")
	assert.True(t, ok, "lock should be free after release")
}
