package ffmpeg

import (
	"path/filepath"
	"testing"

	"github.com/GoldenFealla/GaplessPlayerGo/internal/media"
	"github.com/asticode/go-astiav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimestamp(t *testing.T) {
	assert.Equal(t, media.NoPTS, timestamp(astiav.NoPtsValue))
	assert.Equal(t, int64(1234), timestamp(1234))
}

func TestRational(t *testing.T) {
	r := rational(astiav.NewRational(1, 90000))
	assert.Equal(t, media.Rational{Num: 1, Den: 90000}, r)
}

func TestFrameDuration(t *testing.T) {
	assert.InDelta(t, 0.04, frameDuration(astiav.NewRational(25, 1), astiav.NewRational(50, 1)), 1e-12)
	assert.InDelta(t, 1001.0/30000, frameDuration(astiav.NewRational(0, 1), astiav.NewRational(30000, 1001)), 1e-12)
	assert.Zero(t, frameDuration(astiav.NewRational(0, 1), astiav.NewRational(0, 0)))
}

func TestChannelLayout(t *testing.T) {
	assert.Equal(t, 1, channelLayout(1).Channels())
	assert.Equal(t, 2, channelLayout(2).Channels())
}

func TestOpen_MissingFile(t *testing.T) {
	_, err := NewOpener(media.DefaultAudioFormat).Open(filepath.Join(t.TempDir(), "missing.mp4"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ffmpeg: opening input failed")
}
