package renderer

import "math"

// FrameDelay is the time the previous frame stays on screen. Corrupt
// timestamps fall back to the last good delay.
func FrameDelay(pts, lastPts, lastDelay float64) float64 {
	delay := pts - lastPts
	if delay <= 0 || delay >= 1 {
		return lastDelay
	}
	return delay
}

// SyncDelay adjusts delay for a video frame that is diff seconds ahead of
// the master clock: a late frame is shown at once, an early one twice as long.
func SyncDelay(delay, diff, threshold, noSync float64) float64 {
	threshold = math.Max(delay, threshold)
	if math.Abs(diff) >= noSync {
		return delay
	}
	switch {
	case diff <= -threshold:
		return 0
	case diff >= threshold:
		return 2 * delay
	}
	return delay
}
