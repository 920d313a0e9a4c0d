package ffmpeg

import (
	"errors"
	"fmt"

	"github.com/GoldenFealla/GaplessPlayerGo/internal/media"
	"github.com/asticode/go-astiav"
)

type audioCodec struct {
	*codec

	format media.AudioFormat
	layout astiav.ChannelLayout

	rc      *astiav.SoftwareResampleContext
	rf      *astiav.Frame
	drained bool
}

func newAudioCodec(st *astiav.Stream, format media.AudioFormat) (*audioCodec, error) {
	if format.BytesPerSample != 4 {
		return nil, fmt.Errorf("ffmpeg: unsupported sample size %d", format.BytesPerSample)
	}

	c, err := newCodec(st)
	if err != nil {
		return nil, err
	}

	a := &audioCodec{
		codec:  c,
		format: format,
		layout: channelLayout(format.Channels),
		rc:     astiav.AllocSoftwareResampleContext(),
		rf:     astiav.AllocFrame(),
	}
	a.closer.Add(func() {
		a.rc.Free()
		a.rf.Free()
	})
	return a, nil
}

func channelLayout(channels int) astiav.ChannelLayout {
	if channels == 1 {
		return astiav.ChannelLayoutMono
	}
	return astiav.ChannelLayoutStereo
}

// ReceiveFrame returns the next decoded frame converted to the device
// format. Frames the resampler buffers entirely are skipped.
func (a *audioCodec) ReceiveFrame() (*media.Frame, error) {
	for {
		if err := a.receive(); err != nil {
			if errors.Is(err, media.ErrEndOfStream) && !a.drained {
				a.drained = true
				if f, ferr := a.resample(nil); ferr != nil || f != nil {
					return f, ferr
				}
			}
			return nil, err
		}

		f, err := a.resample(a.df)
		a.df.Unref()
		if err != nil {
			return nil, err
		}
		if f != nil {
			return f, nil
		}
	}
}

func (a *audioCodec) resample(src *astiav.Frame) (*media.Frame, error) {
	a.rf.Unref()
	a.rf.SetChannelLayout(a.layout)
	a.rf.SetSampleFormat(astiav.SampleFormatFlt)
	a.rf.SetSampleRate(a.format.SampleRate)

	if err := a.rc.ConvertFrame(src, a.rf); err != nil {
		return nil, fmt.Errorf("ffmpeg: resampling decoded frame failed: %w", err)
	}

	n := a.rf.NbSamples()
	if n <= 0 {
		return nil, nil
	}
	b, err := a.rf.Data().Bytes(1)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg: getting resampled data failed: %w", err)
	}

	pts := media.NoPTS
	if src != nil {
		pts = timestamp(src.Pts())
	}
	return media.NewAudioFrame(b, n, pts, nil), nil
}

func (a *audioCodec) Reset() error {
	a.rc.Free()
	a.rc = astiav.AllocSoftwareResampleContext()
	a.drained = false
	return a.codec.Reset()
}
