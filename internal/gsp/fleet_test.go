package gsp

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRunOptions(t *testing.T) {
	opts := DefaultRunOptions()
	assert.Equal(t, 10, opts.MaxRetries)
	assert.Equal(t, 5*time.Second, opts.Backoff)
}

func TestRunFleet_AllSucceedFirstRound(t *testing.T) {
	var calls int32
	outcomes := RunFleet([]string{"A", "B", "C"}, func(string) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}, RunOptions{MaxRetries: 3, Backoff: time.Millisecond})

	require.Len(t, outcomes, 3)
	for _, o := range outcomes {
		assert.True(t, o.Success)
		assert.NoError(t, o.Err)
	}
	assert.EqualValues(t, 3, calls)
}

func TestRunFleet_RetriesOnlyFailedSerials(t *testing.T) {
	var mu sync.Mutex
	attempts := map[string]int{}

	op := func(serial string) error {
		mu.Lock()
		attempts[serial]++
		n := attempts[serial]
		mu.Unlock()
		if serial == "B" && n < 2 {
			return errors.New("transient failure")
		}
		return nil
	}

	outcomes := RunFleet([]string{"A", "B"}, op, RunOptions{MaxRetries: 3, Backoff: time.Millisecond})
	require.Len(t, outcomes, 2)
	assert.Equal(t, "A", outcomes[0].Serial)
	assert.True(t, outcomes[0].Success)
	assert.Equal(t, "B", outcomes[1].Serial)
	assert.True(t, outcomes[1].Success)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, attempts["A"])
	assert.Equal(t, 2, attempts["B"])
}

func TestRunFleet_ExhaustsRetriesAndReportsFailure(t *testing.T) {
	sentinel := errors.New("permanent failure")
	outcomes := RunFleet([]string{"A"}, func(string) error {
		return sentinel
	}, RunOptions{MaxRetries: 2, Backoff: time.Millisecond})

	require.Len(t, outcomes, 1)
	assert.False(t, outcomes[0].Success)
	assert.ErrorIs(t, outcomes[0].Err, sentinel)
}

func TestRunFleet_ZeroRetriesIsOneAttempt(t *testing.T) {
	var calls int32
	outcomes := RunFleet([]string{"A"}, func(string) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("fails")
	}, RunOptions{MaxRetries: 0, Backoff: time.Millisecond})

	assert.EqualValues(t, 1, calls)
	assert.False(t, outcomes[0].Success)
}

func TestRunFleet_PreservesCallerOrder(t *testing.T) {
	serials := []string{"Z", "A", "M"}
	outcomes := RunFleet(serials, func(string) error { return nil }, RunOptions{MaxRetries: 0})
	for i, o := range outcomes {
		assert.Equal(t, serials[i], o.Serial)
	}
}

func TestRunOptions_BackoffFallsBackToDefault(t *testing.T) {
	opts := RunOptions{}
	assert.Equal(t, 5*time.Second, opts.backoff())
}
