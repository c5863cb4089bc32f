package progress

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUpdate_PageFraction(t *testing.T) {
	tests := []struct {
		page     int
		finished bool
		want     float64
	}{
		{0, false, 0},
		{1, false, 0.5},
		{3, false, 0.75},
		{3, true, 1},
		{-2, false, 0},
	}

	for _, tt := range tests {
		tr := New()
		tr.Update("duels", tt.page, tt.finished)
		got, ok := tr.Of("duels")
		assert.True(t, ok)
		assert.InDelta(t, tt.want, got, 1e-9, "page %d finished %v", tt.page, tt.finished)
	}
}

func TestProgress_AveragesPurposes(t *testing.T) {
	tr := New()
	assert.Equal(t, 0.0, tr.Progress())
	assert.False(t, tr.Finished(), "nothing loaded is not finished")

	tr.Update("entities_get", 1, false) // 0.5
	tr.Update("duelists", 1, true)      // 1
	assert.InDelta(t, 0.75, tr.Progress(), 1e-9)
	assert.False(t, tr.Finished())

	tr.Update("entities_get", 2, true)
	assert.Equal(t, 1.0, tr.Progress())
	assert.True(t, tr.Finished())

	tr.Reset()
	assert.Equal(t, 0.0, tr.Progress())
}

func TestUpdate_Concurrent(t *testing.T) {
	tr := New()
	var wg sync.WaitGroup
	for _, p := range []string{"a", "b", "c", "d"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for page := 1; page <= 50; page++ {
				tr.Update(p, page, page == 50)
			}
		}()
	}
	wg.Wait()
	assert.True(t, tr.Finished())
}
