package renderer_test

import (
	"context"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/GoldenFealla/GaplessPlayerGo/internal/media"
	"github.com/GoldenFealla/GaplessPlayerGo/internal/renderer"
	"github.com/GoldenFealla/GaplessPlayerGo/internal/stage"
	"github.com/GoldenFealla/GaplessPlayerGo/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type events chan stage.Event

func (e events) Notify(ev stage.Event) { e <- ev }

func (e events) waitFinished(t *testing.T, within time.Duration) {
	t.Helper()
	select {
	case ev := <-e:
		assert.Equal(t, stage.EventFinished, ev.Type)
		assert.Equal(t, stage.Renderer, ev.Kind)
	case <-time.After(within):
		t.Fatal("renderer did not finish")
	}
}

func session(t *testing.T, f testutil.File, sync media.SyncMode) *media.Session {
	t.Helper()
	op := testutil.NewOpener(map[string]testutil.File{"a.mp4": f})
	s := media.NewSession(op, media.Options{FrameQueueSize: 64, Sync: sync})
	require.NoError(t, s.Setup("a.mp4"))
	t.Cleanup(s.Close)
	return s
}

func pushVideo(t *testing.T, s *media.Session, n int, step float64) {
	t.Helper()
	for i := range n {
		f := media.NewVideoFrame(image.NewRGBA(image.Rect(0, 0, 16, 9)), media.Rational{Num: 1, Den: 1}, int64(i), int64(i), 0, nil)
		f.Pts = float64(i) * step
		require.NoError(t, s.VideoFrames.Push(context.Background(), f))
	}
}

func TestRenderer_PresentsEveryFrame(t *testing.T) {
	s := session(t, testutil.File{VideoFrames: 1}, media.VideoMaster)
	pushVideo(t, s, 10, 0.01)
	s.VideoFrames.Finish()

	surface := testutil.NewSurface(32, 32)
	r := renderer.New(s, renderer.NewOutput(surface), nil, stage.Primary, renderer.DefaultConfig)
	ev := make(events, 2)
	r.Subscribe(ev)

	begin := time.Now()
	r.Start()
	ev.waitFinished(t, 5*time.Second)

	assert.Equal(t, 10, surface.Presented())
	assert.Equal(t, 10, r.Presented())
	assert.GreaterOrEqual(t, time.Since(begin), 80*time.Millisecond)

	pts, delay := s.FrameLast()
	assert.InDelta(t, 0.09, pts, 1e-9)
	assert.InDelta(t, 0.01, delay, 1e-9)
	assert.InDelta(t, 0.09, s.VideoClock(), 1.0)
}

func TestRenderer_WaitsForFrames(t *testing.T) {
	s := session(t, testutil.File{VideoFrames: 1}, media.VideoMaster)
	surface := testutil.NewSurface(32, 32)
	r := renderer.New(s, renderer.NewOutput(surface), nil, stage.Primary, renderer.DefaultConfig)
	ev := make(events, 2)
	r.Subscribe(ev)
	r.Start()
	defer r.Stop()

	time.Sleep(20 * time.Millisecond)
	assert.False(t, r.IsFinished())

	pushVideo(t, s, 2, 0.01)
	s.VideoFrames.Finish()
	ev.waitFinished(t, 5*time.Second)
	assert.Equal(t, 2, surface.Presented())
}

func TestRenderer_DrainsAudioThroughSink(t *testing.T) {
	s := session(t, testutil.File{VideoFrames: 1, AudioFrames: 1}, media.AudioMaster)
	pushVideo(t, s, 3, 0.01)
	s.VideoFrames.Finish()
	for i := range 4 {
		f := media.NewAudioFrame(make([]byte, 4096), 512, media.NoPTS, nil)
		f.Pts = float64(i) * 0.01
		require.NoError(t, s.AudioFrames.Push(context.Background(), f))
	}
	s.AudioFrames.Finish()

	sink := testutil.NewSink()
	surface := testutil.NewSurface(32, 32)
	r := renderer.New(s, renderer.NewOutput(surface), sink, stage.Secondary, renderer.DefaultConfig)
	ev := make(events, 2)
	r.Subscribe(ev)
	r.Start()

	ev.waitFinished(t, 5*time.Second)
	assert.Equal(t, 3, surface.Presented())
	assert.Equal(t, 1, sink.Attached())
	assert.Equal(t, 1, sink.Detached())
	assert.Eventually(t, func() bool { return sink.Pulled() == 4*4096 }, time.Second, time.Millisecond)
	assert.True(t, s.AudioDrained())
}

func TestRenderer_DiscardsAudioWithoutSink(t *testing.T) {
	s := session(t, testutil.File{VideoFrames: 1, AudioFrames: 1}, media.AudioMaster)
	pushVideo(t, s, 2, 0.01)
	s.VideoFrames.Finish()
	require.NoError(t, s.AudioFrames.Push(context.Background(), media.NewAudioFrame(make([]byte, 128), 16, 0, nil)))
	s.AudioFrames.Finish()

	r := renderer.New(s, renderer.NewOutput(testutil.NewSurface(8, 8)), nil, stage.Primary, renderer.DefaultConfig)
	ev := make(events, 2)
	r.Subscribe(ev)
	r.Start()

	ev.waitFinished(t, 5*time.Second)
	assert.True(t, s.AudioDrained())
}

func TestRenderer_PacesVideoWithoutSink(t *testing.T) {
	s := session(t, testutil.File{VideoFrames: 1, AudioFrames: 1}, media.SyncAuto)
	require.Equal(t, media.AudioMaster, s.SyncMode())

	pushVideo(t, s, 50, 0.02)
	s.VideoFrames.Finish()
	frameBytes := int(s.AudioFormat().BytesPerSecond() * 0.02)
	for i := range 50 {
		f := media.NewAudioFrame(make([]byte, frameBytes), 0, media.NoPTS, nil)
		f.Pts = float64(i) * 0.02
		require.NoError(t, s.AudioFrames.Push(context.Background(), f))
	}
	s.AudioFrames.Finish()

	surface := testutil.NewSurface(16, 16)
	r := renderer.New(s, renderer.NewOutput(surface), nil, stage.Primary, renderer.DefaultConfig)
	ev := make(events, 2)
	r.Subscribe(ev)

	begin := time.Now()
	r.Start()
	ev.waitFinished(t, 5*time.Second)

	assert.Equal(t, 50, surface.Presented())
	assert.Equal(t, media.ExternalMaster, s.SyncMode())
	assert.GreaterOrEqual(t, time.Since(begin), 850*time.Millisecond)
}

func TestRenderer_StopBeforeReady(t *testing.T) {
	op := testutil.NewOpener(map[string]testutil.File{"a.mp4": {VideoFrames: 1}})
	s := media.NewSession(op, media.Options{})
	defer s.Close()

	r := renderer.New(s, renderer.NewOutput(testutil.NewSurface(8, 8)), nil, stage.Primary, renderer.DefaultConfig)
	ev := make(events, 2)
	r.Subscribe(ev)
	r.Start()
	r.Stop()

	ev.waitFinished(t, time.Second)
}

func TestOutput_ScalesIntoSurface(t *testing.T) {
	surface := testutil.NewSurface(40, 30)
	out := renderer.NewOutput(surface)

	src := image.NewRGBA(image.Rect(0, 0, 16, 9))
	for i := range src.Pix {
		src.Pix[i] = 0xff
	}
	f := media.NewVideoFrame(src, media.Rational{Num: 1, Den: 1}, 0, 0, 0, nil)
	require.NoError(t, out.Present(f))

	img := surface.Last()
	require.NotNil(t, img)
	assert.Equal(t, image.Rect(0, 0, 40, 30), img.Bounds())

	// Letterboxed: 40x22 centred, black bars above and below.
	assert.Equal(t, color.RGBAModel.Convert(color.Black), img.At(20, 1))
	assert.Equal(t, color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}, img.At(20, 15))

	surface.W, surface.H = 20, 20
	require.NoError(t, out.Present(f))
	assert.Equal(t, image.Rect(0, 0, 20, 20), surface.Last().Bounds())
}
