package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMemory_SetGet(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_, ok := m.Get(ctx, "a1")
	assert.False(t, ok)

	m.Set(ctx, "a1", 12345)
	v, ok := m.Get(ctx, "a1")
	assert.True(t, ok)
	assert.Equal(t, int64(12345), v)
}

func TestMemory_Invalidate(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	m.Set(ctx, "a1", 12345)
	m.Invalidate(ctx, "a1")

	_, ok := m.Get(ctx, "a1")
	assert.False(t, ok)
}

func TestMemory_InvalidateMissingKeyIsNoOp(t *testing.T) {
	m := NewMemory()
	m.Invalidate(context.Background(), "ghost")
}

func TestMemory_KeysAreIndependent(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	m.Set(ctx, "a1", 1)
	m.Set(ctx, "a2", 2)
	m.Invalidate(ctx, "a1")

	v, ok := m.Get(ctx, "a2")
	assert.True(t, ok)
	assert.Equal(t, int64(2), v)
}
