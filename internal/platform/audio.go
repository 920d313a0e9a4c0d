package platform

import (
	"fmt"
	"sync"

	"github.com/GoldenFealla/GaplessPlayerGo/internal/media"
	"github.com/GoldenFealla/GaplessPlayerGo/internal/renderer"
	"github.com/ebitengine/oto/v3"
	"github.com/samber/lo"
)

// Mixer is the io.Reader the audio device pulls from. It copies samples
// from the attached sources in attach order and fills the rest with silence.
type Mixer struct {
	mutex   sync.Mutex
	sources []renderer.AudioSource
}

func (m *Mixer) Attach(src renderer.AudioSource) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if !lo.Contains(m.sources, src) {
		m.sources = append(m.sources, src)
	}
}

func (m *Mixer) Detach(src renderer.AudioSource) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.sources = lo.Without(m.sources, src)
}

func (m *Mixer) Read(p []byte) (int, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	n := 0
	for _, src := range m.sources {
		if n == len(p) {
			break
		}
		n += src.ReadAudio(p[n:])
	}
	clear(p[n:])
	return len(p), nil
}

// Device plays the mixer through the system audio output.
type Device struct {
	*Mixer
	player *oto.Player
}

func NewDevice(format media.AudioFormat) (*Device, error) {
	if format.BytesPerSample != 4 {
		return nil, fmt.Errorf("audio device: unsupported sample size %d", format.BytesPerSample)
	}

	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   format.SampleRate,
		ChannelCount: format.Channels,
		Format:       oto.FormatFloat32LE,
	})
	if err != nil {
		return nil, fmt.Errorf("audio device: creating context failed: %w", err)
	}
	<-ready

	d := &Device{Mixer: &Mixer{}}
	d.player = ctx.NewPlayer(d.Mixer)
	d.player.Play()
	return d, nil
}

func (d *Device) Close() error {
	d.player.Pause()
	if err := d.player.Close(); err != nil {
		return fmt.Errorf("audio device: closing player failed: %w", err)
	}
	return nil
}
