package decoder

import (
	"testing"

	"github.com/GoldenFealla/GaplessPlayerGo/internal/media"
	"github.com/stretchr/testify/assert"
)

func TestPtsCorrector_PrefersReorderedPts(t *testing.T) {
	c := NewPtsCorrector()
	for i := range int64(10) {
		assert.Equal(t, i*2, c.Guess(i*2, i))
	}
	pts, dts := c.Faults()
	assert.Zero(t, pts)
	assert.Zero(t, dts)
}

func TestPtsCorrector_FallsBackToDts(t *testing.T) {
	c := NewPtsCorrector()
	reordered := []int64{0, 3, 1, 2, 6, 4, 5, 9, 7, 8, 12, 10, 11}

	var out []int64
	for i, pts := range reordered {
		out = append(out, c.Guess(pts, int64(i)))
	}

	faultyPts, faultyDts := c.Faults()
	assert.Greater(t, faultyPts, faultyDts)

	// Once the reordered faults dominate, the output follows dts.
	settled := -1
	for i := range out {
		if i > 0 && out[i] < out[i-1] {
			settled = i
		}
	}
	for i := settled + 1; i < len(out); i++ {
		if i > 0 {
			assert.GreaterOrEqual(t, out[i], out[i-1])
		}
	}
	assert.Equal(t, int64(len(reordered)-1), out[len(out)-1])
}

func TestPtsCorrector_MissingTimestamps(t *testing.T) {
	c := NewPtsCorrector()
	assert.Equal(t, int64(5), c.Guess(media.NoPTS, 5))
	assert.Equal(t, int64(7), c.Guess(7, media.NoPTS))
	assert.Equal(t, media.NoPTS, c.Guess(media.NoPTS, media.NoPTS))

	c.Reset()
	pts, dts := c.Faults()
	assert.Zero(t, pts+dts)
}

func TestSyncVideo(t *testing.T) {
	pts, clock := SyncVideo(0, 1.0, 0, 0.04)
	assert.Equal(t, 1.0, pts)
	assert.InDelta(t, 1.04, clock, 1e-12)

	pts, clock = SyncVideo(clock, 0, 0, 0.04)
	assert.InDelta(t, 1.04, pts, 1e-12)
	assert.InDelta(t, 1.08, clock, 1e-12)

	_, clock = SyncVideo(2, 0, 2, 0.04)
	assert.InDelta(t, 2.08, clock, 1e-12)
}
