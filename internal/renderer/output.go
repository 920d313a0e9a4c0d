package renderer

import (
	"image"
	"image/color"
	"math"
	"sync"

	"github.com/GoldenFealla/GaplessPlayerGo/internal/media"
	"golang.org/x/image/draw"
)

type Surface interface {
	// Size returns the drawable size in pixels.
	Size() (w, h int)
	Present(img image.Image) error
}

// VideoSizer is implemented by surfaces that size themselves after the
// first frame they are given.
type VideoSizer interface {
	SetVideoSize(w, h int)
}

// Output scales frames onto a surface. It is shared by the renderers of
// consecutive files.
type Output struct {
	mutex   sync.Mutex
	surface Surface
	scaler  draw.Scaler

	scratch [2]*image.RGBA
	cur     int
}

func NewOutput(surface Surface) *Output {
	return &Output{
		surface: surface,
		scaler:  draw.ApproxBiLinear,
	}
}

// FitRect places a fw x fh frame with sample aspect sar on a sw x sh surface.
func FitRect(fw, fh int, sar media.Rational, sw, sh int) image.Rectangle {
	if fw <= 0 || fh <= 0 || sw <= 0 || sh <= 0 {
		return image.Rect(0, 0, sw, sh)
	}

	aspect := sar.Float()
	if aspect <= 0 {
		aspect = 1
	}
	aspect *= float64(fw) / float64(fh)

	h := sh
	w := int(math.Round(float64(h)*aspect)) &^ 1
	if w > sw {
		w = sw
		h = int(math.Round(float64(w)/aspect)) &^ 1
	}

	x := (sw - w) / 2
	y := (sh - h) / 2
	return image.Rect(x, y, x+w, y+h)
}

func (o *Output) target(w, h int) *image.RGBA {
	img := o.scratch[o.cur]
	if img == nil || img.Bounds().Dx() != w || img.Bounds().Dy() != h {
		img = image.NewRGBA(image.Rect(0, 0, w, h))
		o.scratch[o.cur] = img
	}
	return img
}

func (o *Output) Present(f *media.Frame) error {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	if f.Image == nil {
		return nil
	}

	if vs, ok := o.surface.(VideoSizer); ok {
		vs.SetVideoSize(f.Width, f.Height)
	}
	sw, sh := o.surface.Size()
	if sw <= 0 || sh <= 0 {
		sw, sh = f.Width, f.Height
	}

	dst := o.target(sw, sh)
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
	o.scaler.Scale(dst, FitRect(f.Width, f.Height, f.AspectRatio, sw, sh), f.Image, f.Image.Bounds(), draw.Src, nil)
	o.cur ^= 1

	return o.surface.Present(dst)
}
