package media_test

import (
	"context"
	"testing"
	"time"

	"github.com/GoldenFealla/GaplessPlayerGo/internal/media"
	"github.com/GoldenFealla/GaplessPlayerGo/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSession(t *testing.T, f testutil.File) (*media.Session, *testutil.Opener) {
	t.Helper()
	op := testutil.NewOpener(map[string]testutil.File{"a.mp4": f})
	s := media.NewSession(op, media.Options{FrameQueueSize: 4})
	t.Cleanup(s.Close)
	return s, op
}

func TestSession_Setup(t *testing.T) {
	s, op := newSession(t, testutil.File{VideoFrames: 10, AudioFrames: 10})

	require.NoError(t, s.Setup("a.mp4"))
	select {
	case <-s.Ready():
	default:
		t.Fatal("ready not closed after setup")
	}

	require.NotNil(t, s.Video())
	require.NotNil(t, s.Audio())
	assert.Equal(t, 0, s.Video().Index)
	assert.Equal(t, 1, s.Audio().Index)
	assert.Equal(t, media.AudioMaster, s.SyncMode())
	assert.NotNil(t, s.VideoCodec())
	assert.NotNil(t, s.AudioCodec())

	assert.Same(t, s.VideoPackets, s.PacketQueueFor(0))
	assert.Same(t, s.AudioPackets, s.PacketQueueFor(1))
	assert.Nil(t, s.PacketQueueFor(2))

	s.Close()
	assert.True(t, op.Container("a.mp4").Closed())
	assert.True(t, s.VideoFrames.Done())
}

func TestSession_SetupWithoutVideo(t *testing.T) {
	s, _ := newSession(t, testutil.File{NoVideo: true, AudioFrames: 3})

	err := s.Setup("a.mp4")
	require.ErrorIs(t, err, media.ErrNoVideo)
	assert.ErrorIs(t, s.Err(), media.ErrNoVideo)

	_, ok := s.VideoPackets.Pop(context.Background())
	assert.False(t, ok)
	assert.True(t, s.AudioFrames.Finished())
}

func TestSession_SetupMissingFile(t *testing.T) {
	s, _ := newSession(t, testutil.File{})
	require.Error(t, s.Setup("missing.mp4"))
	<-s.Ready()
	assert.Error(t, s.Err())
}

func TestSession_VideoOnlyUsesVideoMaster(t *testing.T) {
	s, _ := newSession(t, testutil.File{VideoFrames: 2})
	require.NoError(t, s.Setup("a.mp4"))
	assert.Nil(t, s.Audio())
	assert.Equal(t, media.VideoMaster, s.SyncMode())
	assert.True(t, s.AudioDrained())
}

func TestAudioClockAt(t *testing.T) {
	bps := media.DefaultAudioFormat.BytesPerSecond()

	assert.Equal(t, 3.25, media.AudioClockAt(3.25, 4096, 4096, bps))
	assert.InDelta(t, 3.25-4096/bps, media.AudioClockAt(3.25, 4096, 0, bps), 1e-12)
	assert.Equal(t, 1.0, media.AudioClockAt(1.0, 10, 0, 0))
}

func TestSession_ReadAudio(t *testing.T) {
	s, _ := newSession(t, testutil.File{VideoFrames: 1, AudioFrames: 1})
	require.NoError(t, s.Setup("a.mp4"))
	ctx := context.Background()
	bps := s.AudioFormat().BytesPerSecond()

	for i := range 2 {
		f := media.NewAudioFrame(make([]byte, 800), 100, 0, nil)
		f.Pts = float64(i)
		require.NoError(t, s.AudioFrames.Push(ctx, f))
	}

	buf := make([]byte, 500)
	require.Equal(t, 500, s.ReadAudio(buf))
	assert.InDelta(t, 800/bps-300/bps, s.AudioClock(), 1e-12)

	require.Equal(t, 500, s.ReadAudio(buf))
	assert.InDelta(t, 1+800/bps-600/bps, s.AudioClock(), 1e-12)

	assert.Equal(t, 500, s.ReadAudio(buf[:500]))
	assert.Equal(t, 100, s.ReadAudio(buf))
	assert.InDelta(t, 1+800/bps, s.AudioClock(), 1e-12)
	assert.Equal(t, 0, s.ReadAudio(buf))

	assert.False(t, s.AudioDrained())
	s.AudioFrames.Finish()
	assert.True(t, s.AudioDrained())
}

func TestSession_Clocks(t *testing.T) {
	now := time.Unix(1000, 0)
	op := testutil.NewOpener(map[string]testutil.File{"a.mp4": {VideoFrames: 1}})
	s := media.NewSession(op, media.Options{Now: func() time.Time { return now }, Sync: media.ExternalMaster})
	defer s.Close()
	require.NoError(t, s.Setup("a.mp4"))
	assert.Equal(t, media.ExternalMaster, s.SyncMode())

	s.StartExternalClock(now)
	s.SetVideoCurrentPts(2, now)
	now = now.Add(500 * time.Millisecond)

	assert.InDelta(t, 0.5, s.ExternalClock(), 1e-9)
	assert.InDelta(t, 2.5, s.VideoClock(), 1e-9)
	assert.InDelta(t, 0.5, s.MasterClock(), 1e-9)

	pts, delay := s.FrameLast()
	assert.Zero(t, pts)
	assert.Equal(t, media.DefaultFrameDelay, delay)

	s.ResetFrameTimer(now)
	assert.Equal(t, now.Add(40*time.Millisecond), s.AdvanceFrameTimer(0.04))
}

func TestSession_SyncExternalClock(t *testing.T) {
	now := time.Unix(1000, 0)
	op := testutil.NewOpener(map[string]testutil.File{"a.mp4": {VideoFrames: 1}})
	s := media.NewSession(op, media.Options{Now: func() time.Time { return now }})
	defer s.Close()
	s.StartExternalClock(now)

	now = now.Add(time.Second)
	s.SyncExternalClock(1.2, now, 1.0)
	assert.InDelta(t, 1.0, s.ExternalClock(), 1e-9)

	s.SyncExternalClock(30, now, 1.0)
	assert.InDelta(t, 30, s.ExternalClock(), 1e-9)
	now = now.Add(250 * time.Millisecond)
	assert.InDelta(t, 30.25, s.ExternalClock(), 1e-9)
}

func TestSession_AudioMasterWithoutAudio(t *testing.T) {
	op := testutil.NewOpener(map[string]testutil.File{"a.mp4": {VideoFrames: 1}})
	s := media.NewSession(op, media.Options{Sync: media.AudioMaster})
	defer s.Close()
	require.NoError(t, s.Setup("a.mp4"))
	assert.Equal(t, media.ExternalMaster, s.SyncMode())

	s.SetSyncMode(media.VideoMaster)
	assert.Equal(t, media.VideoMaster, s.SyncMode())
}

func TestSession_RequestSeek(t *testing.T) {
	s, _ := newSession(t, testutil.File{VideoFrames: 1})

	require.True(t, s.RequestSeek(5_000_000, -10))
	assert.False(t, s.RequestSeek(9_000_000, 10))

	pos, backward, ok := s.PendingSeek()
	require.True(t, ok)
	assert.Equal(t, int64(5_000_000), pos)
	assert.True(t, backward)

	s.ClearSeek()
	_, _, ok = s.PendingSeek()
	assert.False(t, ok)

	require.True(t, s.RequestSeek(-3, 10))
	pos, backward, _ = s.PendingSeek()
	assert.Zero(t, pos)
	assert.False(t, backward)

	s.CloseSeeks()
	_, _, ok = s.PendingSeek()
	assert.False(t, ok)
	assert.False(t, s.RequestSeek(1_000_000, 1))
}

func TestRational_FromMicros(t *testing.T) {
	assert.Equal(t, int64(250), media.Rational{Num: 1, Den: 25}.FromMicros(10_000_000))
	assert.Equal(t, int64(441000), media.Rational{Num: 1, Den: 44100}.FromMicros(10_000_000))
	assert.Equal(t, int64(42), media.Rational{}.FromMicros(42))
	assert.InDelta(t, 0.04, media.Rational{Num: 1, Den: 25}.Float(), 1e-12)
}

func TestParseSyncMode(t *testing.T) {
	for _, m := range []media.SyncMode{media.SyncAuto, media.AudioMaster, media.VideoMaster, media.ExternalMaster} {
		got, err := media.ParseSyncMode(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}

	_, err := media.ParseSyncMode("wallclock")
	assert.ErrorIs(t, err, media.ErrUnknownSyncMode)
}
