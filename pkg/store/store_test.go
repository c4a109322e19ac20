package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCopiesBlobs(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	data, err := m.Load(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, data)

	in := []byte("abc")
	require.NoError(t, m.Save(ctx, "k", in))
	in[0] = 'z'

	out, err := m.Load(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), out)
	assert.ErrorIs(t, m.Save(ctx, "", nil), ErrEmptyKey)
}
