package media

import "image"

type Frame struct {
	Image         image.Image
	Width, Height int
	AspectRatio   Rational

	// Samples holds interleaved audio in the device format.
	Samples   []byte
	NbSamples int

	RawPts     int64
	PktDts     int64
	RepeatPict int

	// Pts is the presentation time in seconds, filled in by the decoder.
	Pts float64

	release func()
}

func NewVideoFrame(img image.Image, sar Rational, rawPts, pktDts int64, repeat int, release func()) *Frame {
	b := img.Bounds()
	return &Frame{
		Image:       img,
		Width:       b.Dx(),
		Height:      b.Dy(),
		AspectRatio: sar,
		RawPts:      rawPts,
		PktDts:      pktDts,
		RepeatPict:  repeat,
		release:     release,
	}
}

func NewAudioFrame(samples []byte, nbSamples int, rawPts int64, release func()) *Frame {
	return &Frame{
		Samples:   samples,
		NbSamples: nbSamples,
		RawPts:    rawPts,
		PktDts:    NoPTS,
		release:   release,
	}
}

func (f *Frame) Size() int {
	if f.Samples != nil {
		return len(f.Samples)
	}
	return f.Width * f.Height * 4
}

func (f *Frame) Release() {
	if f == nil || f.release == nil {
		return
	}
	f.release()
	f.release = nil
}
