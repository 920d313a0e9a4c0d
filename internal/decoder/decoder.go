package decoder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/GoldenFealla/GaplessPlayerGo/internal/media"
	"github.com/GoldenFealla/GaplessPlayerGo/internal/stage"
	"github.com/sirupsen/logrus"
)

type Config struct {
	// MaxDecodeErrors is the number of consecutive failed packets after
	// which a stream is given up.
	MaxDecodeErrors int
}

var DefaultConfig = Config{
	MaxDecodeErrors: 32,
}

var ErrTooManyErrors = errors.New("too many decode errors")

// Decoder runs one decode loop per stream of a session.
type Decoder struct {
	*stage.Subject

	session *media.Session
	cfg     Config
	log     logrus.FieldLogger

	ctx    context.Context
	cancel context.CancelFunc

	mutex         sync.Mutex
	stopRequested bool

	running    atomic.Int32
	firstFrame sync.Once
}

func New(s *media.Session, role stage.Role, cfg Config) *Decoder {
	if cfg.MaxDecodeErrors <= 0 {
		cfg.MaxDecodeErrors = DefaultConfig.MaxDecodeErrors
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Decoder{
		Subject: stage.NewSubject(role, stage.Decoder),
		session: s,
		cfg:     cfg,
		log:     s.Logger().WithFields(logrus.Fields{"component": "decoder", "role": role}),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (d *Decoder) Start() {
	go d.run()
}

func (d *Decoder) Stop() {
	d.mutex.Lock()
	d.stopRequested = true
	d.mutex.Unlock()
	d.cancel()
}

func (d *Decoder) stopped() bool {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.stopRequested
}

func (d *Decoder) run() {
	select {
	case <-d.session.Ready():
	case <-d.ctx.Done():
		d.NotifyFinished()
		return
	}
	if err := d.session.Err(); err != nil {
		d.NotifyFinished()
		return
	}

	streams := []*stream{d.newStream(d.session.Video(), d.session.VideoCodec(), d.session.VideoPackets, d.session.VideoFrames)}
	if st := d.session.Audio(); st != nil {
		streams = append(streams, d.newStream(st, d.session.AudioCodec(), d.session.AudioPackets, d.session.AudioFrames))
	}

	d.running.Store(int32(len(streams)))
	for _, st := range streams {
		go d.loop(st)
	}
}

type stream struct {
	info    *media.StreamInfo
	codec   media.Codec
	packets *media.PacketQueue
	frames  *media.FrameQueue
	log     logrus.FieldLogger

	errors int

	// video
	corrector  *PtsCorrector
	frameDelay float64

	// audio
	clock          float64
	bytesPerSecond float64
}

func (d *Decoder) newStream(info *media.StreamInfo, codec media.Codec, packets *media.PacketQueue, frames *media.FrameQueue) *stream {
	st := &stream{
		info:    info,
		codec:   codec,
		packets: packets,
		frames:  frames,
		log:     d.log.WithField("stream", info.Index),
	}

	switch info.Type {
	case media.MediaTypeVideo:
		st.corrector = NewPtsCorrector()
		st.frameDelay = FrameDuration(info)
	case media.MediaTypeAudio:
		st.bytesPerSecond = d.session.AudioFormat().BytesPerSecond()
	}
	return st
}

// FrameDuration is the clock step of a video frame without a timestamp.
// Streams without a known frame rate step by media.DefaultFrameDelay.
func FrameDuration(info *media.StreamInfo) float64 {
	if info.FrameDuration > 0 {
		return info.FrameDuration
	}
	return media.DefaultFrameDelay
}

func (d *Decoder) loop(st *stream) {
	defer func() {
		st.frames.Finish()
		if d.running.Add(-1) == 0 {
			d.log.Debug("decoder: finished")
			d.NotifyFinished()
		}
	}()

	for {
		if d.stopped() {
			return
		}

		pkt, ok := st.packets.Pop(d.ctx)
		if !ok {
			if d.ctx.Err() == nil {
				d.drain(st)
			}
			return
		}

		if pkt.IsFlush() {
			d.reset(st)
			continue
		}

		err := d.decode(st, pkt)
		pkt.Release()
		if err == nil {
			st.errors = 0
			continue
		}

		st.errors++
		st.log.WithError(err).Warn("decoder: dropping packet")
		if st.errors >= d.cfg.MaxDecodeErrors {
			st.log.WithError(ErrTooManyErrors).Error("decoder: giving up stream")
			st.packets.Abort()
			return
		}
	}
}

func (d *Decoder) decode(st *stream, pkt *media.Packet) error {
	if err := st.codec.SendPacket(pkt); err != nil {
		return fmt.Errorf("%s decode: sending packet failed: %w", st.info.Type, err)
	}
	return d.receive(st)
}

func (d *Decoder) receive(st *stream) error {
	for {
		f, err := st.codec.ReceiveFrame()
		if err != nil {
			if errors.Is(err, media.ErrEndOfStream) || errors.Is(err, media.ErrWouldBlock) {
				return nil
			}
			return fmt.Errorf("%s decode: receiving frame failed: %w", st.info.Type, err)
		}
		d.publish(st, f)
	}
}

func (d *Decoder) drain(st *stream) {
	if err := st.codec.SendPacket(nil); err != nil {
		st.log.WithError(err).Debug("decoder: draining codec failed")
		return
	}
	if err := d.receive(st); err != nil {
		st.log.WithError(err).Warn("decoder: draining codec failed")
	}
}

func (d *Decoder) reset(st *stream) {
	if err := st.codec.Reset(); err != nil {
		st.log.WithError(err).Warn("decoder: resetting codec failed")
	}
	st.frames.Flush()
	st.errors = 0

	switch st.info.Type {
	case media.MediaTypeVideo:
		st.corrector.Reset()
		d.session.SetVideoDecodeClock(0)
	case media.MediaTypeAudio:
		st.clock = 0
	}
	st.log.Debug("decoder: flushed")
}

func (d *Decoder) publish(st *stream, f *media.Frame) {
	switch st.info.Type {
	case media.MediaTypeVideo:
		d.stampVideo(st, f)
	case media.MediaTypeAudio:
		stampAudio(st, f)
	}

	if err := st.frames.Push(d.ctx, f); err != nil {
		f.Release()
		return
	}
	d.firstFrame.Do(func() {
		d.Post(stage.EventFirstFrame)
	})
}

func (d *Decoder) stampVideo(st *stream, f *media.Frame) {
	pts := st.corrector.Guess(f.RawPts, f.PktDts)
	if pts == media.NoPTS {
		pts = 0
	}

	var clock float64
	f.Pts, clock = SyncVideo(d.session.VideoDecodeClock(), float64(pts)*st.info.TimeBase.Float(), f.RepeatPict, st.frameDelay)
	d.session.SetVideoDecodeClock(clock)
}

func stampAudio(st *stream, f *media.Frame) {
	if f.RawPts != media.NoPTS {
		st.clock = float64(f.RawPts) * st.info.TimeBase.Float()
	}
	f.Pts = st.clock
	if st.bytesPerSecond > 0 {
		st.clock += float64(len(f.Samples)) / st.bytesPerSecond
	}
}
