package media

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/asticode/go-astikit"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type SyncMode int

const (
	SyncAuto SyncMode = iota
	AudioMaster
	VideoMaster
	ExternalMaster
)

func (m SyncMode) String() string {
	switch m {
	case AudioMaster:
		return "audio"
	case VideoMaster:
		return "video"
	case ExternalMaster:
		return "external"
	}
	return "auto"
}

var ErrUnknownSyncMode = errors.New("unknown sync mode")

// ParseSyncMode maps the names printed by SyncMode.String back to modes.
func ParseSyncMode(name string) (SyncMode, error) {
	for _, m := range []SyncMode{SyncAuto, AudioMaster, VideoMaster, ExternalMaster} {
		if m.String() == name {
			return m, nil
		}
	}
	return SyncAuto, fmt.Errorf("%w: %q", ErrUnknownSyncMode, name)
}

var (
	// DefaultFrameDelay seeds the frame timer before the first frame was shown.
	DefaultFrameDelay = 0.04
)

type Options struct {
	PacketQueueSize int
	FrameQueueSize  int
	Audio           AudioFormat
	Sync            SyncMode
	Logger          logrus.FieldLogger

	// Now replaces the wall clock in tests.
	Now func() time.Time
}

// Session is the state shared by the reader, decoder and renderer of one file.
type Session struct {
	ID   string
	Path string

	opener Opener
	closer *astikit.Closer
	once   sync.Once
	log    logrus.FieldLogger
	now    func() time.Time
	format AudioFormat

	container  Container
	video      *StreamInfo
	audio      *StreamInfo
	videoCodec Codec
	audioCodec Codec

	VideoPackets *PacketQueue
	AudioPackets *PacketQueue
	VideoFrames  *FrameQueue
	AudioFrames  *FrameQueue

	flush *Packet

	ready    chan struct{}
	setupErr error

	clockMu             sync.Mutex
	syncMode            SyncMode
	videoClock          float64
	videoCurrentPts     float64
	videoCurrentPtsTime time.Time
	frameTimer          time.Time
	frameLastPts        float64
	frameLastDelay      float64
	externalClock       float64
	externalClockTime   time.Time

	audioMu       sync.Mutex
	audioClock    float64
	audioBuf      []byte
	audioBufIndex int

	seekMu       sync.Mutex
	seekClosed   bool
	seekReq      bool
	seekPos      int64
	seekBackward bool
}

func NewSession(opener Opener, opts Options) *Session {
	if opts.PacketQueueSize <= 0 {
		opts.PacketQueueSize = DefaultPacketQueueSize
	}
	if opts.FrameQueueSize <= 0 {
		opts.FrameQueueSize = DefaultFrameQueueSize
	}
	if opts.Audio.SampleRate == 0 {
		opts.Audio = DefaultAudioFormat
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	id := uuid.NewString()
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Session{
		ID:       id,
		opener:   opener,
		closer:   astikit.NewCloser(),
		log:      logger.WithField("session", id[:8]),
		now:      opts.Now,
		format:   opts.Audio,
		syncMode: opts.Sync,

		VideoPackets: NewPacketQueue(opts.PacketQueueSize),
		AudioPackets: NewPacketQueue(opts.PacketQueueSize),
		VideoFrames:  NewFrameQueue(opts.FrameQueueSize),
		AudioFrames:  NewFrameQueue(opts.FrameQueueSize),

		flush: NewFlushPacket(),
		ready: make(chan struct{}),

		frameLastDelay: DefaultFrameDelay,
	}
}

// Setup opens path, picks the first video and audio stream and opens their
// codecs. It must be called once; Ready is closed when it returns.
func (s *Session) Setup(path string) (err error) {
	defer close(s.ready)
	defer func() {
		if err != nil {
			s.setupErr = err
			s.abortQueues()
		}
	}()

	s.Path = path
	s.log = s.log.WithField("file", path)

	c, err := s.opener.Open(path)
	if err != nil {
		return fmt.Errorf("session: opening %s failed: %w", path, err)
	}
	s.container = c
	s.closer.Add(func() {
		if err := c.Close(); err != nil {
			s.log.WithError(err).Warn("session: closing container failed")
		}
	})

	for _, st := range c.Streams() {
		s.log.WithFields(logrus.Fields{
			"index":     st.Index,
			"type":      st.Type,
			"codec":     st.Codec,
			"time_base": fmt.Sprintf("%d/%d", st.TimeBase.Num, st.TimeBase.Den),
		}).Debug("session: stream")

		switch {
		case st.Type == MediaTypeVideo && s.video == nil:
			s.video = &st
		case st.Type == MediaTypeAudio && s.audio == nil:
			s.audio = &st
		}
	}

	if s.video == nil {
		return fmt.Errorf("session: probing %s failed: %w", path, ErrNoVideo)
	}

	if s.videoCodec, err = s.openCodec(s.video); err != nil {
		return err
	}
	if s.audio != nil {
		if s.audioCodec, err = s.openCodec(s.audio); err != nil {
			return err
		}
	}

	s.clockMu.Lock()
	if s.syncMode == SyncAuto {
		s.syncMode = VideoMaster
		if s.audio != nil {
			s.syncMode = AudioMaster
		}
	}
	if s.syncMode == AudioMaster && s.audio == nil {
		s.syncMode = ExternalMaster
	}
	s.frameTimer = s.now()
	s.frameLastDelay = DefaultFrameDelay
	s.clockMu.Unlock()

	s.log.WithField("sync", s.syncMode).Info("session: ready")
	return nil
}

func (s *Session) openCodec(st *StreamInfo) (Codec, error) {
	codec, err := s.container.OpenCodec(st.Index)
	if err != nil {
		return nil, fmt.Errorf("session: opening %s codec failed: %w", st.Type, err)
	}
	s.closer.Add(func() {
		if err := codec.Close(); err != nil {
			s.log.WithError(err).Warn("session: closing codec failed")
		}
	})
	return codec, nil
}

func (s *Session) abortQueues() {
	s.VideoPackets.Abort()
	s.AudioPackets.Abort()
	s.VideoFrames.Abort()
	s.AudioFrames.Abort()
}

// Ready is closed once Setup returned.
func (s *Session) Ready() <-chan struct{} {
	return s.ready
}

func (s *Session) Err() error {
	return s.setupErr
}

func (s *Session) Close() {
	s.once.Do(func() {
		s.abortQueues()
		if err := s.closer.Close(); err != nil {
			s.log.WithError(err).Warn("session: closing failed")
		}
	})
}

func (s *Session) Logger() logrus.FieldLogger {
	return s.log
}

func (s *Session) Container() Container {
	return s.container
}

func (s *Session) Video() *StreamInfo {
	return s.video
}

func (s *Session) Audio() *StreamInfo {
	return s.audio
}

func (s *Session) VideoCodec() Codec {
	return s.videoCodec
}

func (s *Session) AudioCodec() Codec {
	return s.audioCodec
}

func (s *Session) AudioFormat() AudioFormat {
	return s.format
}

func (s *Session) FlushMarker() *Packet {
	return s.flush
}

func (s *Session) Now() time.Time {
	return s.now()
}

// PacketQueueFor returns the queue packets of streamIndex are routed to.
func (s *Session) PacketQueueFor(streamIndex int) *PacketQueue {
	switch {
	case s.video != nil && s.video.Index == streamIndex:
		return s.VideoPackets
	case s.audio != nil && s.audio.Index == streamIndex:
		return s.AudioPackets
	}
	return nil
}

func (s *Session) QueuedPacketBytes() int {
	return s.VideoPackets.Bytes() + s.AudioPackets.Bytes()
}

func (s *Session) SyncMode() SyncMode {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()
	return s.syncMode
}

// SetSyncMode changes the master clock, e.g. when no audio device plays
// the audio stream.
func (s *Session) SetSyncMode(m SyncMode) {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()
	s.syncMode = m
}

// VideoDecodeClock is the pts the next video frame without a timestamp gets.
func (s *Session) VideoDecodeClock() float64 {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()
	return s.videoClock
}

func (s *Session) SetVideoDecodeClock(c float64) {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()
	s.videoClock = c
}

// SetVideoCurrentPts records the pts of the frame on screen.
func (s *Session) SetVideoCurrentPts(pts float64, at time.Time) {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()
	s.videoCurrentPts = pts
	s.videoCurrentPtsTime = at
}

func (s *Session) VideoClock() float64 {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()
	if s.videoCurrentPtsTime.IsZero() {
		return s.videoCurrentPts
	}
	return s.videoCurrentPts + s.now().Sub(s.videoCurrentPtsTime).Seconds()
}

// AudioClockAt is the time of the sample the device plays next.
func AudioClockAt(last float64, bufSize, bufIndex int, bytesPerSecond float64) float64 {
	if bytesPerSecond <= 0 {
		return last
	}
	return last - float64(bufSize-bufIndex)/bytesPerSecond
}

func (s *Session) AudioClock() float64 {
	s.audioMu.Lock()
	defer s.audioMu.Unlock()
	return AudioClockAt(s.audioClock, len(s.audioBuf), s.audioBufIndex, s.format.BytesPerSecond())
}

// StartExternalClock anchors the external clock at at.
func (s *Session) StartExternalClock(at time.Time) {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()
	s.externalClock = 0
	s.externalClockTime = at
}

func (s *Session) ExternalClock() float64 {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()
	if s.externalClockTime.IsZero() {
		return s.externalClock
	}
	return s.externalClock + s.now().Sub(s.externalClockTime).Seconds()
}

// SyncExternalClock moves the external clock to pts when it drifted more
// than threshold seconds away, e.g. after a seek.
func (s *Session) SyncExternalClock(pts float64, at time.Time, threshold float64) {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()

	clock := s.externalClock
	if !s.externalClockTime.IsZero() {
		clock += at.Sub(s.externalClockTime).Seconds()
	}
	if math.Abs(clock-pts) > threshold {
		s.externalClock = pts
		s.externalClockTime = at
	}
}

func (s *Session) MasterClock() float64 {
	switch s.SyncMode() {
	case AudioMaster:
		return s.AudioClock()
	case ExternalMaster:
		return s.ExternalClock()
	}
	return s.VideoClock()
}

func (s *Session) FrameLast() (pts, delay float64) {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()
	return s.frameLastPts, s.frameLastDelay
}

func (s *Session) SetFrameLast(pts, delay float64) {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()
	s.frameLastPts = pts
	s.frameLastDelay = delay
}

func (s *Session) ResetFrameTimer(at time.Time) {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()
	s.frameTimer = at
}

// AdvanceFrameTimer adds delay seconds to the frame timer and returns it.
func (s *Session) AdvanceFrameTimer(delay float64) time.Time {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()
	s.frameTimer = s.frameTimer.Add(time.Duration(delay * float64(time.Second)))
	return s.frameTimer
}

// RequestSeek asks the reader to seek to pos microseconds. rel is the
// requested increment and only its sign is kept. A pending request wins.
func (s *Session) RequestSeek(pos int64, rel float64) bool {
	s.seekMu.Lock()
	defer s.seekMu.Unlock()

	if s.seekReq || s.seekClosed {
		return false
	}
	if pos < 0 {
		pos = 0
	}
	s.seekReq = true
	s.seekPos = pos
	s.seekBackward = rel < 0
	return true
}

func (s *Session) PendingSeek() (pos int64, backward bool, ok bool) {
	s.seekMu.Lock()
	defer s.seekMu.Unlock()
	return s.seekPos, s.seekBackward, s.seekReq
}

func (s *Session) ClearSeek() {
	s.seekMu.Lock()
	defer s.seekMu.Unlock()
	s.seekReq = false
}

// CloseSeeks drops a pending request and refuses every later one. The reader
// calls it once it stopped reading.
func (s *Session) CloseSeeks() {
	s.seekMu.Lock()
	defer s.seekMu.Unlock()
	s.seekReq = false
	s.seekClosed = true
}

// ReadAudio copies decoded samples into p and reports how many bytes were
// written. It never blocks.
func (s *Session) ReadAudio(p []byte) int {
	s.audioMu.Lock()
	defer s.audioMu.Unlock()

	n := 0
	for n < len(p) {
		if s.audioBufIndex >= len(s.audioBuf) {
			f, ok := s.AudioFrames.TryPop()
			if !ok {
				break
			}
			s.audioBuf = append(s.audioBuf[:0], f.Samples...)
			s.audioBufIndex = 0
			s.audioClock = f.Pts + float64(len(f.Samples))/s.format.BytesPerSecond()
			f.Release()
		}

		c := copy(p[n:], s.audioBuf[s.audioBufIndex:])
		n += c
		s.audioBufIndex += c
	}
	return n
}

// AudioDrained reports whether no decoded audio is left to play.
func (s *Session) AudioDrained() bool {
	if s.audio == nil {
		return true
	}
	s.audioMu.Lock()
	pending := s.audioBufIndex < len(s.audioBuf)
	s.audioMu.Unlock()
	return !pending && s.AudioFrames.Done()
}
