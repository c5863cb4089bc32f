package dedup

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	rewards  = "challenge-rewards-by-duelist"
	duelists = "duelists-by-id"
)

func TestGetNewIDs_SetDifference(t *testing.T) {
	tr := New()
	tr.Commit(rewards, []string{"2"})

	assert.Equal(t, []string{"1", "3"}, tr.GetNewIDs(rewards, []string{"1", "2", "3"}))
	assert.Equal(t, []string{"1", "2", "3"}, tr.GetNewIDs(duelists, []string{"1", "2", "3"}), "purposes are independent")
}

func TestGetNewIDs_IsPure(t *testing.T) {
	tr := New()

	first := tr.GetNewIDs(rewards, []string{"1", "2"})
	second := tr.GetNewIDs(rewards, []string{"1", "2"})
	assert.Equal(t, first, second)
	assert.Equal(t, 0, tr.Len(rewards))
}

func TestGetNewIDs_NormalizesAndDedupes(t *testing.T) {
	tr := New()
	tr.Commit(rewards, []string{"0x0a"})

	got := tr.GetNewIDs(rewards, []string{"10", "0x1", "1", "0", "", "0x0", "alice", "alice"})
	assert.Equal(t, []string{"0x1", "alice"}, got)
}

func TestCommit_Monotonic(t *testing.T) {
	tr := New()
	tr.Commit(rewards, []string{"1"})
	tr.Commit(rewards, []string{"2", "0x1"})

	assert.Equal(t, 2, tr.Len(rewards))
	assert.Empty(t, tr.GetNewIDs(rewards, []string{"1", "2"}))
}

func TestClaim_ExcludesInFlight(t *testing.T) {
	tr := New()

	first := tr.Claim(rewards, []string{"1", "2"})
	assert.Equal(t, []string{"1", "2"}, first)

	second := tr.Claim(rewards, []string{"2", "3"})
	assert.Equal(t, []string{"3"}, second, "2 is already being fetched")
	assert.Equal(t, 3, tr.InFlight(rewards))

	// GetNewIDs ignores in-flight state: nothing is resolved yet
	assert.Equal(t, []string{"1", "2", "3"}, tr.GetNewIDs(rewards, []string{"1", "2", "3"}))
}

func TestClaim_ReleaseOnFailure(t *testing.T) {
	tr := New()

	claimed := tr.Claim(rewards, []string{"1", "2"})
	tr.Release(rewards, claimed)

	assert.Equal(t, 0, tr.InFlight(rewards))
	assert.Equal(t, 0, tr.Len(rewards), "failed fetch never commits")
	assert.Equal(t, []string{"1", "2"}, tr.Claim(rewards, []string{"1", "2"}))
}

func TestClaim_CommitSettles(t *testing.T) {
	tr := New()

	claimed := tr.Claim(rewards, []string{"1"})
	tr.Commit(rewards, claimed)

	assert.Equal(t, 0, tr.InFlight(rewards))
	assert.Empty(t, tr.Claim(rewards, []string{"1"}))
}

func TestClaim_ConcurrentOverlapNeverDoubleIssues(t *testing.T) {
	tr := New()
	ids := []string{"1", "2", "3", "4", "5", "6", "7", "8"}

	var mu sync.Mutex
	counts := map[string]int{}
	var wg sync.WaitGroup
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed := tr.Claim(rewards, ids)
			mu.Lock()
			for _, id := range claimed {
				counts[id]++
			}
			mu.Unlock()
			tr.Commit(rewards, claimed)
		}()
	}
	wg.Wait()

	require.Len(t, counts, len(ids))
	for id, n := range counts {
		assert.Equal(t, 1, n, "id %s fetched more than once", id)
	}
}

func TestReset(t *testing.T) {
	tr := New()
	tr.Commit(rewards, []string{"1"})
	tr.Claim(duelists, []string{"2"})

	tr.Reset()

	assert.Equal(t, 0, tr.Len(rewards))
	assert.Equal(t, 0, tr.InFlight(duelists))
	assert.Equal(t, []string{"1"}, tr.GetNewIDs(rewards, []string{"1"}))
}
