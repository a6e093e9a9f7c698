package media

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x += 10 {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.RGBA{R: 200, G: 30, B: 30, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestCompressImageDownscalesWideImages(t *testing.T) {
	out, err := CompressImage(pngBytes(t, 4000, 2000))
	require.NoError(t, err)

	decoded, format, err := image.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, MaxImageWidth, decoded.Bounds().Dx())
	assert.Equal(t, 960, decoded.Bounds().Dy(), "aspect ratio is preserved")
}

func TestCompressImageNeverUpscales(t *testing.T) {
	out, err := CompressImage(pngBytes(t, 640, 480))
	require.NoError(t, err)

	decoded, _, err := image.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 640, decoded.Bounds().Dx())
	assert.Equal(t, 480, decoded.Bounds().Dy())
}

func TestCompressImageReencodesJPEG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 100, 100)), &jpeg.Options{Quality: 100}))

	out, err := CompressImage(buf.Bytes())
	require.NoError(t, err)
	_, format, err := image.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
}

func TestCompressImageRejectsGarbage(t *testing.T) {
	_, err := CompressImage([]byte("not an image"))
	assert.Error(t, err)
}

func TestJpegName(t *testing.T) {
	assert.Equal(t, "photo.jpg", jpegName("photo.png"))
	assert.Equal(t, "media-id.jpg", jpegName("media-id"))
	assert.Equal(t, "archive.tar.jpg", jpegName("archive.tar.gz"))
}
