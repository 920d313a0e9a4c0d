package renderer

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/GoldenFealla/GaplessPlayerGo/internal/media"
	"github.com/GoldenFealla/GaplessPlayerGo/internal/stage"
	"github.com/sirupsen/logrus"
)

type AudioSource interface {
	// ReadAudio fills p with device samples and never blocks.
	ReadAudio(p []byte) int
}

type AudioSink interface {
	Attach(src AudioSource)
	Detach(src AudioSource)
}

type Config struct {
	MinDelay   time.Duration
	RetryDelay time.Duration
	IdleDelay  time.Duration

	SyncThreshold   float64
	NoSyncThreshold float64
}

var DefaultConfig = Config{
	MinDelay:        10 * time.Millisecond,
	RetryDelay:      time.Millisecond,
	IdleDelay:       100 * time.Millisecond,
	SyncThreshold:   0.01,
	NoSyncThreshold: 1.0,
}

// Renderer presents the frames of one session on time.
type Renderer struct {
	*stage.Subject

	session *media.Session
	out     *Output
	sink    AudioSink
	cfg     Config
	log     logrus.FieldLogger

	ctx      context.Context
	cancel   context.CancelFunc
	finished atomic.Bool

	presented atomic.Int64
	discard   []byte
}

func New(s *media.Session, out *Output, sink AudioSink, role stage.Role, cfg Config) *Renderer {
	if cfg.MinDelay <= 0 {
		cfg.MinDelay = DefaultConfig.MinDelay
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultConfig.RetryDelay
	}
	if cfg.IdleDelay <= 0 {
		cfg.IdleDelay = DefaultConfig.IdleDelay
	}
	if cfg.SyncThreshold <= 0 {
		cfg.SyncThreshold = DefaultConfig.SyncThreshold
	}
	if cfg.NoSyncThreshold <= 0 {
		cfg.NoSyncThreshold = DefaultConfig.NoSyncThreshold
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Renderer{
		Subject: stage.NewSubject(role, stage.Renderer),
		session: s,
		out:     out,
		sink:    sink,
		cfg:     cfg,
		log:     s.Logger().WithFields(logrus.Fields{"component": "renderer", "role": role}),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (r *Renderer) Start() {
	go r.run()
}

func (r *Renderer) Stop() {
	r.finished.Store(true)
	r.cancel()
}

func (r *Renderer) Session() *media.Session {
	return r.session
}

func (r *Renderer) Presented() int {
	return int(r.presented.Load())
}

func (r *Renderer) run() {
	defer r.NotifyFinished()

	select {
	case <-r.session.Ready():
	case <-r.ctx.Done():
		return
	}
	if r.session.Err() != nil {
		return
	}

	now := r.session.Now()
	r.session.ResetFrameTimer(now)
	r.session.StartExternalClock(now)

	if r.session.Audio() != nil && r.sink != nil {
		r.sink.Attach(r.session)
		defer r.sink.Detach(r.session)
	}
	if r.sink == nil && r.session.SyncMode() == media.AudioMaster {
		r.session.SetSyncMode(media.ExternalMaster)
		r.log.Debug("renderer: no audio device, syncing to the external clock")
	}

	r.log.Debug("renderer: started")
	defer func() {
		r.log.WithField("frames", r.Presented()).Debug("renderer: finished")
	}()

	t := time.NewTimer(0)
	defer t.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-t.C:
		}
		if r.finished.Load() {
			return
		}

		next, done := r.refresh()
		if done {
			return
		}
		t.Reset(next)
	}
}

// refresh shows the next frame and returns when to run again, or true once
// the session has nothing left to present.
func (r *Renderer) refresh() (time.Duration, bool) {
	s := r.session

	if s.Audio() != nil && r.sink == nil {
		r.discardAudio()
	}

	if s.Video() == nil {
		if s.VideoFrames.Finished() {
			return 0, true
		}
		return r.cfg.IdleDelay, false
	}

	f, ok := s.VideoFrames.TryPop()
	if !ok {
		if s.VideoFrames.Done() && s.AudioDrained() {
			return 0, true
		}
		return r.cfg.RetryDelay, false
	}
	defer f.Release()

	now := s.Now()
	lastPts, lastDelay := s.FrameLast()
	delay := FrameDelay(f.Pts, lastPts, lastDelay)
	s.SetFrameLast(f.Pts, delay)

	if s.SyncMode() != media.VideoMaster {
		delay = SyncDelay(delay, f.Pts-s.MasterClock(), r.cfg.SyncThreshold, r.cfg.NoSyncThreshold)
	}
	target := s.AdvanceFrameTimer(delay)

	if err := r.out.Present(f); err != nil {
		r.log.WithError(err).Warn("renderer: presenting frame failed")
	} else {
		r.presented.Add(1)
	}
	s.SetVideoCurrentPts(f.Pts, now)
	if s.SyncMode() == media.ExternalMaster {
		s.SyncExternalClock(f.Pts, now, r.cfg.NoSyncThreshold)
	}

	return max(r.cfg.MinDelay, target.Sub(now)), false
}

// discardAudio consumes decoded audio when no device is attached.
func (r *Renderer) discardAudio() {
	if r.discard == nil {
		r.discard = make([]byte, 64*1024)
	}
	for r.session.ReadAudio(r.discard) > 0 {
	}
}
