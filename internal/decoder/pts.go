package decoder

import "github.com/GoldenFealla/GaplessPlayerGo/internal/media"

// PtsCorrector picks between the reordered pts and the packet dts of decoded
// frames, whichever has been monotonic more often.
type PtsCorrector struct {
	faultyPts, faultyDts int64
	lastPts, lastDts     int64
}

func NewPtsCorrector() *PtsCorrector {
	c := &PtsCorrector{}
	c.Reset()
	return c
}

func (c *PtsCorrector) Reset() {
	*c = PtsCorrector{lastPts: media.NoPTS, lastDts: media.NoPTS}
}

func (c *PtsCorrector) Faults() (pts, dts int64) {
	return c.faultyPts, c.faultyDts
}

func (c *PtsCorrector) Guess(reorderedPts, dts int64) int64 {
	if dts != media.NoPTS {
		if dts <= c.lastDts {
			c.faultyDts++
		}
		c.lastDts = dts
	} else if reorderedPts != media.NoPTS {
		c.lastDts = reorderedPts
	}

	if reorderedPts != media.NoPTS {
		if reorderedPts <= c.lastPts {
			c.faultyPts++
		}
		c.lastPts = reorderedPts
	} else if dts != media.NoPTS {
		c.lastPts = dts
	}

	if (c.faultyPts <= c.faultyDts || dts == media.NoPTS) && reorderedPts != media.NoPTS {
		return reorderedPts
	}
	return dts
}

// SyncVideo returns the pts of a frame and the video clock after it. A zero
// pts takes the clock; frameDelay grows by half per repeated picture.
func SyncVideo(clock, pts float64, repeat int, frameDelay float64) (float64, float64) {
	if pts != 0 {
		clock = pts
	} else {
		pts = clock
	}
	frameDelay += float64(repeat) * frameDelay * 0.5
	return pts, clock + frameDelay
}
