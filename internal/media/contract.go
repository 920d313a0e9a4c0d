package media

import (
	"errors"
	"math"
)

// NoPTS marks an absent timestamp.
const NoPTS int64 = math.MinInt64

// TimeBase is the number of seek units per second.
const TimeBase = 1_000_000

var (
	ErrEndOfStream   = errors.New("end of stream")
	ErrWouldBlock    = errors.New("resource temporarily unavailable")
	ErrNoVideo       = errors.New("no video stream")
	ErrNoAudio       = errors.New("no audio stream")
	ErrQueueFinished = errors.New("queue finished")
	ErrQueueFlushed  = errors.New("queue flushed")
)

type MediaType int

const (
	MediaTypeUnknown MediaType = iota
	MediaTypeVideo
	MediaTypeAudio
)

func (t MediaType) String() string {
	switch t {
	case MediaTypeVideo:
		return "video"
	case MediaTypeAudio:
		return "audio"
	}
	return "unknown"
}

type Rational struct {
	Num, Den int
}

func (r Rational) Float() float64 {
	if r.Den == 0 {
		return 0
	}
	return float64(r.Num) / float64(r.Den)
}

// FromMicros converts a microsecond position into ticks of r.
func (r Rational) FromMicros(us int64) int64 {
	if r.Num == 0 {
		return us
	}
	return int64(math.Round(float64(us) * float64(r.Den) / (float64(r.Num) * TimeBase)))
}

type StreamInfo struct {
	Index    int
	Type     MediaType
	Codec    string
	TimeBase Rational

	// FrameDuration is the nominal video frame duration in seconds, 0 if unknown.
	FrameDuration float64
	Width, Height int

	SampleRate int
	Channels   int
}

// Container is an opened media file.
type Container interface {
	Streams() []StreamInfo
	// ReadPacket returns ErrEndOfStream at the end of the file and
	// ErrWouldBlock when the caller should retry later.
	ReadPacket() (*Packet, error)
	Seek(streamIndex int, ts int64, backward bool) error
	OpenCodec(streamIndex int) (Codec, error)
	Close() error
}

// Codec decodes the packets of one stream.
type Codec interface {
	// SendPacket with a nil packet starts draining.
	SendPacket(pkt *Packet) error
	// ReceiveFrame returns ErrWouldBlock when more input is needed and
	// ErrEndOfStream once drained.
	ReceiveFrame() (*Frame, error)
	Reset() error
	Close() error
}

type Opener interface {
	Open(path string) (Container, error)
}

// AudioFormat is the device sample format decoded audio is converted to.
type AudioFormat struct {
	SampleRate     int
	Channels       int
	BytesPerSample int
}

var DefaultAudioFormat = AudioFormat{
	SampleRate:     44100,
	Channels:       2,
	BytesPerSample: 4,
}

func (f AudioFormat) BytesPerSecond() float64 {
	return float64(f.SampleRate * f.Channels * f.BytesPerSample)
}
