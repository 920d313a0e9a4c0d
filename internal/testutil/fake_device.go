package testutil

import (
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GoldenFealla/GaplessPlayerGo/internal/renderer"
)

// Surface records presented images.
type Surface struct {
	W, H int

	presented atomic.Int64
	mutex     sync.Mutex
	last      image.Image
}

func NewSurface(w, h int) *Surface {
	return &Surface{W: w, H: h}
}

func (s *Surface) Size() (int, int) {
	return s.W, s.H
}

func (s *Surface) Present(img image.Image) error {
	s.mutex.Lock()
	s.last = img
	s.mutex.Unlock()
	s.presented.Add(1)
	return nil
}

func (s *Surface) Presented() int {
	return int(s.presented.Load())
}

func (s *Surface) Last() image.Image {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.last
}

// Sink pulls audio from the attached source every Period.
type Sink struct {
	Period time.Duration
	Chunk  int

	mutex    sync.Mutex
	sources  map[renderer.AudioSource]chan struct{}
	attached atomic.Int64
	detached atomic.Int64
	pulled   atomic.Int64
}

func NewSink() *Sink {
	return &Sink{
		Period:  time.Millisecond,
		Chunk:   64 * 1024,
		sources: map[renderer.AudioSource]chan struct{}{},
	}
}

func (s *Sink) Attach(src renderer.AudioSource) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.sources[src]; ok {
		return
	}
	quit := make(chan struct{})
	s.sources[src] = quit
	s.attached.Add(1)

	go func() {
		buf := make([]byte, s.Chunk)
		t := time.NewTicker(s.Period)
		defer t.Stop()
		for {
			select {
			case <-quit:
				return
			case <-t.C:
				s.pulled.Add(int64(src.ReadAudio(buf)))
			}
		}
	}()
}

func (s *Sink) Detach(src renderer.AudioSource) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if quit, ok := s.sources[src]; ok {
		close(quit)
		delete(s.sources, src)
		s.detached.Add(1)
	}
}

func (s *Sink) Attached() int { return int(s.attached.Load()) }

func (s *Sink) Detached() int { return int(s.detached.Load()) }

func (s *Sink) Pulled() int { return int(s.pulled.Load()) }
