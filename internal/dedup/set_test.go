package dedup

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdmitRejectsDuplicates(t *testing.T) {
	t.Parallel()

	s := NewSet(10)
	require.True(t, s.Admit("m1"))
	require.False(t, s.Admit("m1"))
	require.True(t, s.Admit("m2"))
	assert.Equal(t, 2, s.Len())
}

func TestAdmitEmptyIDIsNotRecorded(t *testing.T) {
	t.Parallel()

	s := NewSet(10)
	assert.True(t, s.Admit(""))
	assert.True(t, s.Admit(""))
	assert.Equal(t, 0, s.Len())
}

func TestSetClearsWholesaleAtCapacity(t *testing.T) {
	t.Parallel()

	s := NewSet(3)
	for i := 0; i < 3; i++ {
		require.True(t, s.Admit(fmt.Sprintf("m%d", i)))
	}
	require.False(t, s.Admit("m0"))

	require.True(t, s.Admit("m3"))
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, 1, s.Resets())
	// Previously seen ids are re-admitted after a reset.
	assert.True(t, s.Admit("m0"))
	assert.True(t, s.Contains("m3"))
}

func TestAddAndContains(t *testing.T) {
	t.Parallel()

	s := NewSet(0)
	s.Add("rec1")
	s.Add("rec1")
	assert.True(t, s.Contains("rec1"))
	assert.False(t, s.Contains("rec2"))
	assert.Equal(t, 1, s.Len())
}

func TestAdmitConcurrentSingleWinner(t *testing.T) {
	t.Parallel()

	s := NewSet(100)
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.Admit("same") {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}
