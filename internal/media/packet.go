package media

import "bytes"

var flushTag = []byte("FLUSH")

type Packet struct {
	StreamIndex int
	Pts, Dts    int64
	Size        int

	// Payload is owned by the codec adapter that produced it.
	Payload any

	release func()
}

func NewPacket(streamIndex int, pts, dts int64, size int, payload any, release func()) *Packet {
	return &Packet{
		StreamIndex: streamIndex,
		Pts:         pts,
		Dts:         dts,
		Size:        size,
		Payload:     payload,
		release:     release,
	}
}

// NewFlushPacket returns the marker pushed after a seek.
func NewFlushPacket() *Packet {
	return &Packet{
		StreamIndex: -1,
		Pts:         NoPTS,
		Dts:         NoPTS,
		Payload:     flushTag,
	}
}

func (p *Packet) IsFlush() bool {
	if p == nil {
		return false
	}
	b, ok := p.Payload.([]byte)
	return ok && bytes.Equal(b, flushTag)
}

func (p *Packet) Release() {
	if p == nil || p.IsFlush() {
		return
	}
	if p.release != nil {
		p.release()
		p.release = nil
	}
}

func packetSize(p *Packet) int { return p.Size }
