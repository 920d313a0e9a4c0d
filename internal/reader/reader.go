package reader

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/GoldenFealla/GaplessPlayerGo/internal/media"
	"github.com/GoldenFealla/GaplessPlayerGo/internal/stage"
	"github.com/asticode/go-astikit"
	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
)

type Config struct {
	// MaxQueueBytes bounds the packets queued for both streams.
	MaxQueueBytes int
	RetryDelay    time.Duration
}

var DefaultConfig = Config{
	MaxQueueBytes: 15 * 1024 * 1024,
	RetryDelay:    10 * time.Millisecond,
}

type State int32

const (
	Idle State = iota
	Opening
	Streaming
	Draining
	Finished
)

func (s State) String() string {
	switch s {
	case Opening:
		return "opening"
	case Streaming:
		return "streaming"
	case Draining:
		return "draining"
	case Finished:
		return "finished"
	}
	return "idle"
}

// Reader demultiplexes one file into the session's packet queues.
type Reader struct {
	*stage.Subject

	session *media.Session
	path    string
	cfg     Config
	log     logrus.FieldLogger

	state  atomic.Int32
	ctx    context.Context
	cancel context.CancelFunc
}

func New(s *media.Session, path string, role stage.Role, cfg Config) *Reader {
	if cfg.MaxQueueBytes <= 0 {
		cfg.MaxQueueBytes = DefaultConfig.MaxQueueBytes
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultConfig.RetryDelay
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Reader{
		Subject: stage.NewSubject(role, stage.Reader),
		session: s,
		path:    path,
		cfg:     cfg,
		log:     s.Logger().WithFields(logrus.Fields{"component": "reader", "role": role}),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (r *Reader) Start() {
	go r.run()
}

// Stop cancels every wait of the reader. It does not wait for it to exit.
func (r *Reader) Stop() {
	r.cancel()
}

func (r *Reader) State() State {
	return State(r.state.Load())
}

func (r *Reader) setState(s State) {
	r.state.Store(int32(s))
	r.log.WithField("state", s).Debug("reader: state changed")
}

func (r *Reader) run() {
	defer r.finish()

	r.setState(Opening)
	if err := r.session.Setup(r.path); err != nil {
		r.log.WithError(err).Error("reader: setup failed")
		return
	}

	r.setState(Streaming)
	if err := r.stream(); err != nil {
		if !errors.Is(err, context.Canceled) {
			r.log.WithError(err).Error("reader: reading failed")
		}
		r.session.VideoPackets.Finish()
		r.session.AudioPackets.Finish()
		return
	}

	r.setState(Draining)
	r.drain()
}

func (r *Reader) finish() {
	r.session.CloseSeeks()
	r.setState(Finished)
	r.NotifyFinished()
}

// stream reads packets until the end of the file. It returns nil on end of
// stream.
func (r *Reader) stream() error {
	c := r.session.Container()
	for {
		if err := r.ctx.Err(); err != nil {
			return err
		}

		if pos, backward, ok := r.session.PendingSeek(); ok {
			r.seek(pos, backward)
		}

		if queued := r.session.QueuedPacketBytes(); queued > r.cfg.MaxQueueBytes {
			r.log.WithField("queued", humanize.IBytes(uint64(queued))).Trace("reader: queues full")
			r.wait()
			continue
		}

		pkt, err := c.ReadPacket()
		switch {
		case errors.Is(err, media.ErrEndOfStream):
			return nil
		case errors.Is(err, media.ErrWouldBlock):
			astikit.Sleep(r.ctx, r.cfg.RetryDelay)
			continue
		case err != nil:
			return err
		}

		r.route(pkt)
	}
}

func (r *Reader) route(pkt *media.Packet) {
	q := r.session.PacketQueueFor(pkt.StreamIndex)
	if q == nil {
		pkt.Release()
		return
	}
	if err := q.Push(r.ctx, pkt); err != nil {
		pkt.Release()
		if !errors.Is(err, context.Canceled) {
			r.log.WithError(err).WithField("stream", pkt.StreamIndex).Debug("reader: dropping packet")
		}
	}
}

// wait blocks until a packet queue changed or the retry delay elapsed.
func (r *Reader) wait() {
	t := time.NewTimer(r.cfg.RetryDelay)
	defer t.Stop()

	select {
	case <-r.ctx.Done():
	case <-r.session.VideoPackets.Changed():
	case <-r.session.AudioPackets.Changed():
	case <-t.C:
	}
}

func (r *Reader) seek(pos int64, backward bool) {
	defer r.session.ClearSeek()

	st := r.session.Video()
	ts := st.TimeBase.FromMicros(pos)
	l := r.log.WithFields(logrus.Fields{"position": pos, "backward": backward})

	// The demuxer repositions every stream from a seek on the video stream.
	if err := r.session.Container().Seek(st.Index, ts, backward); err != nil {
		l.WithError(err).Error("reader: seeking failed")
		return
	}

	queues := []*media.PacketQueue{r.session.VideoPackets}
	if r.session.Audio() != nil {
		queues = append(queues, r.session.AudioPackets)
	}
	for _, q := range queues {
		if q.Aborted() {
			continue
		}
		q.Flush()
		if err := q.Push(r.ctx, r.session.FlushMarker()); err != nil {
			l.WithError(err).Warn("reader: pushing flush marker failed")
		}
	}
	l.Info("reader: seeked")
}

func (r *Reader) drain() {
	r.session.VideoPackets.Finish()
	r.session.AudioPackets.Finish()

	for !r.session.VideoPackets.Done() || !r.session.AudioPackets.Done() {
		if r.ctx.Err() != nil {
			return
		}
		if _, _, ok := r.session.PendingSeek(); ok {
			r.log.Debug("reader: ignoring seek while draining")
			r.session.ClearSeek()
		}
		r.wait()
	}
}
