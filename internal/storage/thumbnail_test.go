package storage

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThumbnail_CropsToSquare(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 800, 400))
	for x := 0; x < 800; x++ {
		for y := 0; y < 400; y++ {
			src.Set(x, y, color.NRGBA{R: uint8(x % 256), G: 120, B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, src))

	data, err := Thumbnail(&buf)
	require.NoError(t, err)

	thumb, err := imaging.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, ThumbnailSize, thumb.Bounds().Dx())
	assert.Equal(t, ThumbnailSize, thumb.Bounds().Dy())
}

func TestThumbnail_RejectsNonImage(t *testing.T) {
	_, err := Thumbnail(strings.NewReader("%PDF-1.4"))
	assert.Error(t, err)
}

func TestNewScanner_DisabledWithoutAddr(t *testing.T) {
	assert.Nil(t, NewScanner(""))
	assert.NotNil(t, NewScanner("tcp://127.0.0.1:3310"))
}
