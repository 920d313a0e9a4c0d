package ffmpeg

import (
	"errors"
	"fmt"

	"github.com/GoldenFealla/GaplessPlayerGo/internal/media"
	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"
)

var errNotAVPacket = errors.New("packet payload is not an astiav packet")

// codec wraps the codec context of one stream. Reset reopens the context
// from the stream parameters, which drops every buffered frame.
type codec struct {
	st  *astiav.Stream
	dec *astiav.Codec
	cc  *astiav.CodecContext

	df     *astiav.Frame
	closer *astikit.Closer
}

func newCodec(st *astiav.Stream) (*codec, error) {
	c := &codec{
		st:     st,
		closer: astikit.NewCloser(),
	}

	if c.dec = astiav.FindDecoder(st.CodecParameters().CodecID()); c.dec == nil {
		return nil, errors.New("ffmpeg: finding codec: codec is nil")
	}
	if err := c.open(); err != nil {
		return nil, err
	}

	c.df = astiav.AllocFrame()
	c.closer.Add(c.df.Free)
	c.closer.Add(func() {
		if c.cc != nil {
			c.cc.Free()
		}
	})
	return c, nil
}

func (c *codec) open() error {
	cc := astiav.AllocCodecContext(c.dec)
	if cc == nil {
		return errors.New("ffmpeg: finding codec: codec context is nil")
	}

	if err := c.st.CodecParameters().ToCodecContext(cc); err != nil {
		cc.Free()
		return fmt.Errorf("ffmpeg: updating codec context failed: %w", err)
	}
	if err := cc.Open(c.dec, nil); err != nil {
		cc.Free()
		return fmt.Errorf("ffmpeg: opening codec context failed: %w", err)
	}

	c.cc = cc
	return nil
}

func (c *codec) SendPacket(p *media.Packet) error {
	var pkt *astiav.Packet
	if p != nil {
		var ok bool
		if pkt, ok = p.Payload.(*astiav.Packet); !ok {
			return errNotAVPacket
		}
	}

	if err := c.cc.SendPacket(pkt); err != nil {
		return mapError(err)
	}
	return nil
}

// receive fills c.df with the next decoded frame.
func (c *codec) receive() error {
	if err := c.cc.ReceiveFrame(c.df); err != nil {
		return mapError(err)
	}
	return nil
}

func (c *codec) Reset() error {
	c.cc.Free()
	c.cc = nil
	return c.open()
}

func (c *codec) Close() error {
	return c.closer.Close()
}

func mapError(err error) error {
	switch {
	case errors.Is(err, astiav.ErrEagain):
		return media.ErrWouldBlock
	case errors.Is(err, astiav.ErrEof):
		return media.ErrEndOfStream
	}
	return err
}

type videoCodec struct {
	*codec

	sws *astiav.SoftwareScaleContext
	rgb *astiav.Frame
}

func newVideoCodec(st *astiav.Stream) (*videoCodec, error) {
	c, err := newCodec(st)
	if err != nil {
		return nil, err
	}
	v := &videoCodec{codec: c}
	v.closer.Add(func() {
		if v.rgb != nil {
			v.rgb.Free()
		}
		if v.sws != nil {
			v.sws.Free()
		}
	})
	return v, nil
}

func (v *videoCodec) ReceiveFrame() (*media.Frame, error) {
	if err := v.receive(); err != nil {
		return nil, err
	}
	defer v.df.Unref()

	src := v.df
	img, err := src.Data().GuessImageFormat()
	if err != nil {
		// Pixel formats image.Image cannot describe go through swscale.
		if src, err = v.toRGBA(v.df); err != nil {
			return nil, err
		}
		defer src.Unref()
		if img, err = src.Data().GuessImageFormat(); err != nil {
			return nil, fmt.Errorf("ffmpeg: guessing image format failed: %w", err)
		}
	}
	if err := src.Data().ToImage(img); err != nil {
		return nil, fmt.Errorf("ffmpeg: copying image failed: %w", err)
	}

	return media.NewVideoFrame(img, rational(v.df.SampleAspectRatio()), timestamp(v.df.Pts()), timestamp(v.df.PktDts()), 0, nil), nil
}

func (v *videoCodec) toRGBA(f *astiav.Frame) (*astiav.Frame, error) {
	if v.sws == nil {
		sws, err := astiav.CreateSoftwareScaleContext(
			f.Width(), f.Height(), f.PixelFormat(),
			f.Width(), f.Height(), astiav.PixelFormatRgba,
			astiav.NewSoftwareScaleContextFlags(astiav.SoftwareScaleContextFlagBilinear),
		)
		if err != nil {
			return nil, fmt.Errorf("ffmpeg: creating scale context failed: %w", err)
		}
		v.sws = sws
		v.rgb = astiav.AllocFrame()
	}

	v.rgb.SetWidth(f.Width())
	v.rgb.SetHeight(f.Height())
	v.rgb.SetPixelFormat(astiav.PixelFormatRgba)
	if err := v.sws.ScaleFrame(f, v.rgb); err != nil {
		return nil, fmt.Errorf("ffmpeg: converting frame to rgba failed: %w", err)
	}
	return v.rgb, nil
}

func (v *videoCodec) Reset() error {
	if v.sws != nil {
		v.sws.Free()
		v.sws = nil
	}
	if v.rgb != nil {
		v.rgb.Free()
		v.rgb = nil
	}
	return v.codec.Reset()
}
