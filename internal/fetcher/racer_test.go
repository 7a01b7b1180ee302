package fetcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRacerFirstSuccessWins(t *testing.T) {
	r := NewRacer[int](context.Background())
	r.Push(func(ctx context.Context) (int, bool, error) {
		time.Sleep(20 * time.Millisecond)
		return 1, true, nil
	})
	r.Push(func(ctx context.Context) (int, bool, error) {
		return 2, true, nil
	})
	v, err := r.Resolve()
	require.NoError(t, err)
	assert.Contains(t, []int{1, 2}, v)
}

func TestRacerSkipsSoftNegatives(t *testing.T) {
	r := NewRacer[int](context.Background())
	r.Push(func(ctx context.Context) (int, bool, error) {
		return 0, false, nil
	})
	r.Push(func(ctx context.Context) (int, bool, error) {
		time.Sleep(10 * time.Millisecond)
		return 7, true, nil
	})
	v, err := r.Resolve()
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestRacerSkipsErrorsForLaterSuccess(t *testing.T) {
	r := NewRacer[int](context.Background())
	r.Push(func(ctx context.Context) (int, bool, error) {
		return 0, false, errors.New("transient")
	})
	r.Push(func(ctx context.Context) (int, bool, error) {
		time.Sleep(10 * time.Millisecond)
		return 9, true, nil
	})
	v, err := r.Resolve()
	require.NoError(t, err)
	assert.Equal(t, 9, v)
}

func TestRacerAllFailReturnsError(t *testing.T) {
	r := NewRacer[int](context.Background())
	r.Push(func(ctx context.Context) (int, bool, error) {
		return 0, false, errors.New("boom")
	})
	r.Push(func(ctx context.Context) (int, bool, error) {
		return 0, false, nil
	})
	_, err := r.Resolve()
	assert.Error(t, err)
}

func TestRacerNoCandidates(t *testing.T) {
	r := NewRacer[int](context.Background())
	_, err := r.Resolve()
	assert.ErrorIs(t, err, ErrNoCandidateSucceeded)
}
