package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounterKeyFormat(t *testing.T) {
	assert.Equal(t, "lecture:c1:users", lectureUsersKey("c1"))
}

func TestCounterWithoutClientIsNoop(t *testing.T) {
	repo := NewCounterRepository(nil)

	count, err := repo.Associate(context.Background(), "c1", "s1")
	require.NoError(t, err)
	assert.Zero(t, count)

	count, err = repo.Disassociate(context.Background(), "c1", "s1")
	require.NoError(t, err)
	assert.Zero(t, count)

	counts, err := repo.Counts(context.Background(), []string{"c1"})
	require.NoError(t, err)
	assert.Empty(t, counts)
}
