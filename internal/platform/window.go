// Package platform connects the renderer to a fyne window and the system
// audio output.
package platform

import (
	"image"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"github.com/GoldenFealla/GaplessPlayerGo/internal/config"
)

// SeekKeys maps arrow keys to seek increments in seconds.
var SeekKeys = map[fyne.KeyName]float64{
	fyne.KeyLeft:  -10,
	fyne.KeyRight: 10,
	fyne.KeyDown:  -60,
	fyne.KeyUp:    60,
}

// Window is a renderer surface backed by a fyne window. It is created once
// and shows every file of the playlist.
type Window struct {
	win fyne.Window
	img *canvas.Image
	cfg config.WindowConfig

	// OnSeek is called with the increment of a seek key.
	OnSeek func(incr float64)

	mutex sync.Mutex
	w, h  int
	once  sync.Once
}

func NewWindow(a fyne.App, cfg config.WindowConfig) *Window {
	w := &Window{
		win: a.NewWindow(cfg.Title),
		img: canvas.NewImageFromImage(image.NewRGBA(image.Rect(0, 0, 1, 1))),
		cfg: cfg,
		w:   cfg.Width,
		h:   cfg.Height,
	}
	w.img.FillMode = canvas.ImageFillStretch
	w.img.ScaleMode = canvas.ImageScaleFastest

	w.win.SetContent(w.img)
	w.win.SetPadded(false)
	w.win.Canvas().SetOnTypedKey(w.typedKey)
	if cfg.Width > 0 && cfg.Height > 0 {
		w.win.Resize(fyne.NewSize(float32(cfg.Width), float32(cfg.Height)))
	}
	return w
}

func (w *Window) Show() {
	w.win.Show()
}

func (w *Window) SetOnClosed(fn func()) {
	w.win.SetOnClosed(fn)
}

func (w *Window) typedKey(ev *fyne.KeyEvent) {
	incr, ok := SeekKeys[ev.Name]
	if ok && w.OnSeek != nil {
		w.OnSeek(incr)
	}
}

// SetVideoSize sizes the window to half the first video unless a size
// was configured.
func (w *Window) SetVideoSize(vw, vh int) {
	w.once.Do(func() {
		if w.cfg.Width > 0 && w.cfg.Height > 0 {
			return
		}
		vw, vh = max(vw/2, 1), max(vh/2, 1)
		w.setSize(vw, vh)
		fyne.Do(func() {
			w.win.Resize(fyne.NewSize(float32(vw), float32(vh)))
		})
	})
}

func (w *Window) Size() (int, int) {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.w, w.h
}

func (w *Window) setSize(pw, ph int) {
	w.mutex.Lock()
	w.w, w.h = pw, ph
	w.mutex.Unlock()
}

func (w *Window) Present(img image.Image) error {
	fyne.Do(func() {
		w.img.Image = img
		w.img.Refresh()

		c := w.win.Canvas()
		size, scale := c.Size(), c.Scale()
		if pw, ph := int(size.Width*scale), int(size.Height*scale); pw > 0 && ph > 0 {
			w.setSize(pw, ph)
		}
	})
	return nil
}
