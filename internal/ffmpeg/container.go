// Package ffmpeg implements the media contracts on top of go-astiav.
package ffmpeg

import (
	"errors"
	"fmt"

	"github.com/GoldenFealla/GaplessPlayerGo/internal/media"
	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"
)

var ErrStreamNotFound = errors.New("stream not found")

// Opener opens files with libavformat. Decoded audio is converted to Format.
type Opener struct {
	Format media.AudioFormat
}

func NewOpener(format media.AudioFormat) *Opener {
	return &Opener{Format: format}
}

func (o *Opener) Open(path string) (media.Container, error) {
	c := &Container{
		closer: astikit.NewCloser(),
		format: o.Format,
	}

	if c.fc = astiav.AllocFormatContext(); c.fc == nil {
		return nil, errors.New("ffmpeg: format context is nil")
	}
	c.closer.Add(c.fc.Free)

	if err := c.fc.OpenInput(path, nil, nil); err != nil {
		c.closer.Close()
		return nil, fmt.Errorf("ffmpeg: opening input failed: %w", err)
	}
	c.closer.Add(c.fc.CloseInput)

	if err := c.fc.FindStreamInfo(nil); err != nil {
		c.closer.Close()
		return nil, fmt.Errorf("ffmpeg: finding stream info failed: %w", err)
	}

	for _, s := range c.fc.Streams() {
		c.streams = append(c.streams, streamInfo(s))
	}
	return c, nil
}

type Container struct {
	closer *astikit.Closer
	fc     *astiav.FormatContext
	format media.AudioFormat

	streams []media.StreamInfo
}

func streamInfo(s *astiav.Stream) media.StreamInfo {
	cp := s.CodecParameters()
	info := media.StreamInfo{
		Index:    s.Index(),
		Codec:    cp.CodecID().String(),
		TimeBase: rational(s.TimeBase()),
	}

	switch cp.MediaType() {
	case astiav.MediaTypeVideo:
		info.Type = media.MediaTypeVideo
		info.Width, info.Height = cp.Width(), cp.Height()
		info.FrameDuration = frameDuration(s.AvgFrameRate(), s.RFrameRate())
	case astiav.MediaTypeAudio:
		info.Type = media.MediaTypeAudio
		info.SampleRate = cp.SampleRate()
		info.Channels = cp.ChannelLayout().Channels()
	}
	return info
}

// frameDuration returns the duration of one frame at the first valid rate.
func frameDuration(rates ...astiav.Rational) float64 {
	for _, fr := range rates {
		if fr.Num() > 0 && fr.Den() > 0 {
			return 1 / fr.Float64()
		}
	}
	return 0
}

func (c *Container) Streams() []media.StreamInfo {
	return c.streams
}

func (c *Container) ReadPacket() (*media.Packet, error) {
	pkt := astiav.AllocPacket()
	if err := c.fc.ReadFrame(pkt); err != nil {
		pkt.Free()
		switch {
		case errors.Is(err, astiav.ErrEof):
			return nil, media.ErrEndOfStream
		case errors.Is(err, astiav.ErrEagain):
			return nil, media.ErrWouldBlock
		}
		return nil, fmt.Errorf("ffmpeg: reading packet failed: %w", err)
	}

	return media.NewPacket(pkt.StreamIndex(), timestamp(pkt.Pts()), timestamp(pkt.Dts()), pkt.Size(), pkt, pkt.Free), nil
}

func (c *Container) Seek(streamIndex int, ts int64, backward bool) error {
	flags := astiav.NewSeekFlags()
	if backward {
		flags = astiav.NewSeekFlags(astiav.SeekFlagBackward)
	}
	if err := c.fc.SeekFrame(streamIndex, ts, flags); err != nil {
		return fmt.Errorf("ffmpeg: seeking stream %d failed: %w", streamIndex, err)
	}
	return nil
}

func (c *Container) OpenCodec(streamIndex int) (media.Codec, error) {
	var st *astiav.Stream
	for _, s := range c.fc.Streams() {
		if s.Index() == streamIndex {
			st = s
			break
		}
	}
	if st == nil {
		return nil, fmt.Errorf("ffmpeg: opening codec of stream %d failed: %w", streamIndex, ErrStreamNotFound)
	}

	switch st.CodecParameters().MediaType() {
	case astiav.MediaTypeVideo:
		v, err := newVideoCodec(st)
		if err != nil {
			return nil, err
		}
		return v, nil
	case astiav.MediaTypeAudio:
		a, err := newAudioCodec(st, c.format)
		if err != nil {
			return nil, err
		}
		return a, nil
	}
	return nil, fmt.Errorf("ffmpeg: stream %d is neither audio nor video", streamIndex)
}

func (c *Container) Close() error {
	return c.closer.Close()
}

func rational(r astiav.Rational) media.Rational {
	return media.Rational{Num: r.Num(), Den: r.Den()}
}

func timestamp(ts int64) int64 {
	if ts == astiav.NoPtsValue {
		return media.NoPTS
	}
	return ts
}
