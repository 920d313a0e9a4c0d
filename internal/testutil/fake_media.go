// Package testutil provides fake codecs and devices for pipeline tests.
package testutil

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/GoldenFealla/GaplessPlayerGo/internal/media"
)

var ErrFakeDecode = errors.New("fake decode error")

// File describes a synthetic media file.
type File struct {
	VideoFrames int
	AudioFrames int

	// FrameRate defaults to 25; the video time base is 1/FrameRate.
	FrameRate     int
	Width, Height int
	NoVideo       bool
	// OpenErr is returned by the opener.
	OpenErr error
	// ReadErr is returned once AfterPackets packets were read.
	ReadErr      error
	AfterPackets int
	// BadPackets is the number of leading packets the codecs reject.
	BadPackets int
}

// SamplesPerFrame is the sample count of every fake audio frame.
const SamplesPerFrame = 1024

type SeekCall struct {
	StreamIndex int
	Timestamp   int64
	Backward    bool
}

// Opener hands out fake containers by path.
type Opener struct {
	mutex  sync.Mutex
	Files  map[string]File
	opened []string
	conts  map[string]*Container
}

func NewOpener(files map[string]File) *Opener {
	return &Opener{Files: files, conts: map[string]*Container{}}
}

func (o *Opener) Open(path string) (media.Container, error) {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	f, ok := o.Files[path]
	if !ok {
		return nil, fmt.Errorf("fake: %s: no such file", path)
	}
	if f.OpenErr != nil {
		return nil, f.OpenErr
	}
	o.opened = append(o.opened, path)
	c := newContainer(f)
	o.conts[path] = c
	return c, nil
}

func (o *Opener) Opened() []string {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	return append([]string(nil), o.opened...)
}

func (o *Opener) Container(path string) *Container {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	return o.conts[path]
}

const (
	videoIndex = 0
	audioIndex = 1
	dataIndex  = 2
)

type Container struct {
	mutex   sync.Mutex
	file    File
	streams []media.StreamInfo
	packets []*media.Packet
	pos     int
	read    int
	seeks   []SeekCall
	closed  bool
	codecs  []*Codec
}

func newContainer(f File) *Container {
	if f.FrameRate == 0 {
		f.FrameRate = 25
	}
	if f.Width == 0 {
		f.Width, f.Height = 32, 18
	}

	c := &Container{file: f}
	if !f.NoVideo {
		c.streams = append(c.streams, media.StreamInfo{
			Index:         videoIndex,
			Type:          media.MediaTypeVideo,
			Codec:         "fakevideo",
			TimeBase:      media.Rational{Num: 1, Den: f.FrameRate},
			FrameDuration: 1 / float64(f.FrameRate),
			Width:         f.Width,
			Height:        f.Height,
		})
	}
	if f.AudioFrames > 0 {
		c.streams = append(c.streams, media.StreamInfo{
			Index:      audioIndex,
			Type:       media.MediaTypeAudio,
			Codec:      "fakeaudio",
			TimeBase:   media.Rational{Num: 1, Den: media.DefaultAudioFormat.SampleRate},
			SampleRate: media.DefaultAudioFormat.SampleRate,
			Channels:   media.DefaultAudioFormat.Channels,
		})
	}
	c.streams = append(c.streams, media.StreamInfo{Index: dataIndex, Codec: "fakedata"})

	n := max(f.VideoFrames, f.AudioFrames)
	for i := range n {
		if i < f.VideoFrames && !f.NoVideo {
			c.packets = append(c.packets, media.NewPacket(videoIndex, int64(i), int64(i), 512, i, nil))
		}
		if i < f.AudioFrames {
			pts := int64(i * SamplesPerFrame)
			c.packets = append(c.packets, media.NewPacket(audioIndex, pts, pts, 128, i, nil))
		}
		if i == 0 {
			c.packets = append(c.packets, media.NewPacket(dataIndex, 0, 0, 8, nil, nil))
		}
	}
	return c
}

func (c *Container) Streams() []media.StreamInfo {
	return c.streams
}

func (c *Container) ReadPacket() (*media.Packet, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.file.ReadErr != nil && c.read >= c.file.AfterPackets {
		return nil, c.file.ReadErr
	}
	if c.pos >= len(c.packets) {
		return nil, media.ErrEndOfStream
	}
	p := *c.packets[c.pos]
	c.pos++
	c.read++
	return &p, nil
}

// Seek positions the container on the first packet of streamIndex at or
// after ts, or at or before ts when backward is set.
func (c *Container) Seek(streamIndex int, ts int64, backward bool) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.seeks = append(c.seeks, SeekCall{StreamIndex: streamIndex, Timestamp: ts, Backward: backward})

	target := -1
	for i, p := range c.packets {
		if p.StreamIndex != streamIndex {
			continue
		}
		if backward && p.Pts <= ts {
			target = i
		}
		if !backward && p.Pts >= ts {
			target = i
			break
		}
	}
	if target < 0 {
		if backward {
			target = 0
		} else {
			target = len(c.packets)
		}
	}
	c.pos = target
	return nil
}

func (c *Container) Seeks() []SeekCall {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return append([]SeekCall(nil), c.seeks...)
}

func (c *Container) Position() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.pos
}

func (c *Container) OpenCodec(streamIndex int) (media.Codec, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	for _, st := range c.streams {
		if st.Index == streamIndex {
			codec := &Codec{info: st, bad: c.file.BadPackets, width: c.file.Width, height: c.file.Height}
			c.codecs = append(c.codecs, codec)
			return codec, nil
		}
	}
	return nil, fmt.Errorf("fake: stream %d: no such stream", streamIndex)
}

func (c *Container) Codec(streamIndex int) *Codec {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	for _, codec := range c.codecs {
		if codec.info.Index == streamIndex {
			return codec
		}
	}
	return nil
}

func (c *Container) Close() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.closed = true
	return nil
}

func (c *Container) Closed() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.closed
}

// Codec turns every accepted packet into one frame.
type Codec struct {
	mutex    sync.Mutex
	info     media.StreamInfo
	width    int
	height   int
	bad      int
	pending  []*media.Packet
	draining bool
	resets   int
	sent     int
}

func (c *Codec) SendPacket(pkt *media.Packet) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if pkt == nil {
		c.draining = true
		return nil
	}
	c.sent++
	if c.sent <= c.bad {
		return ErrFakeDecode
	}
	c.pending = append(c.pending, pkt)
	return nil
}

func (c *Codec) ReceiveFrame() (*media.Frame, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if len(c.pending) == 0 {
		if c.draining {
			return nil, media.ErrEndOfStream
		}
		return nil, media.ErrWouldBlock
	}

	p := c.pending[0]
	c.pending = c.pending[1:]

	if c.info.Type == media.MediaTypeAudio {
		af := media.DefaultAudioFormat
		samples := make([]byte, SamplesPerFrame*af.Channels*af.BytesPerSample)
		return media.NewAudioFrame(samples, SamplesPerFrame, p.Pts, nil), nil
	}
	img := image.NewRGBA(image.Rect(0, 0, c.width, c.height))
	return media.NewVideoFrame(img, media.Rational{Num: 1, Den: 1}, p.Pts, p.Dts, 0, nil), nil
}

func (c *Codec) Reset() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.pending = nil
	c.draining = false
	c.resets++
	return nil
}

func (c *Codec) Resets() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.resets
}

func (c *Codec) Close() error {
	return nil
}
