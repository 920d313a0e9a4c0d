package platform

import (
	"testing"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/test"
	"github.com/GoldenFealla/GaplessPlayerGo/internal/config"
	"github.com/stretchr/testify/assert"
)

type source struct {
	data []byte
}

func (s *source) ReadAudio(p []byte) int {
	n := copy(p, s.data)
	s.data = s.data[n:]
	return n
}

func TestMixer_FillsSilence(t *testing.T) {
	m := &Mixer{}
	buf := []byte{9, 9, 9, 9}

	n, err := m.Read(buf)
	assert.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []byte{0, 0, 0, 0}, buf)
}

func TestMixer_ReadsSourcesInOrder(t *testing.T) {
	m := &Mixer{}
	a := &source{data: []byte{1, 2}}
	b := &source{data: []byte{3, 4, 5}}
	m.Attach(a)
	m.Attach(b)
	m.Attach(a)

	buf := make([]byte, 8)
	n, err := m.Read(buf)
	assert.NoError(t, err)
	assert.Equal(t, 8, n)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 0, 0, 0}, buf)

	m.Detach(a)
	m.Detach(b)
	b.data = []byte{7}
	_, _ = m.Read(buf)
	assert.Equal(t, make([]byte, 8), buf)
}

func TestWindow_SeekKeys(t *testing.T) {
	w := NewWindow(test.NewApp(), config.WindowConfig{Title: "test"})

	var got []float64
	w.OnSeek = func(incr float64) { got = append(got, incr) }

	for _, k := range []fyne.KeyName{fyne.KeyLeft, fyne.KeyRight, fyne.KeyDown, fyne.KeyUp, fyne.KeySpace} {
		w.typedKey(&fyne.KeyEvent{Name: k})
	}
	assert.Equal(t, []float64{-10, 10, -60, 60}, got)
}

func TestWindow_SizedAfterFirstVideo(t *testing.T) {
	w := NewWindow(test.NewApp(), config.WindowConfig{Title: "test"})
	assert.Equal(t, [2]int{0, 0}, pair(w.Size()))

	w.SetVideoSize(1920, 1080)
	assert.Equal(t, [2]int{960, 540}, pair(w.Size()))

	w.SetVideoSize(640, 360)
	assert.Equal(t, [2]int{960, 540}, pair(w.Size()))
}

func TestWindow_ConfiguredSize(t *testing.T) {
	w := NewWindow(test.NewApp(), config.WindowConfig{Title: "test", Width: 800, Height: 450})
	w.SetVideoSize(1920, 1080)
	assert.Equal(t, [2]int{800, 450}, pair(w.Size()))
}

func pair(a, b int) [2]int {
	return [2]int{a, b}
}
