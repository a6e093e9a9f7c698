package media

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"strings"

	"golang.org/x/image/draw"
)

const (
	// MaxImageWidth bounds stored images; height scales to keep aspect.
	MaxImageWidth = 1920
	jpegQuality   = 80
)

// CompressImage re-encodes an image as JPEG at fixed quality, downscaling
// to the max width first. Images narrower than the bound are never upscaled.
func CompressImage(data []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() > MaxImageWidth {
		height := bounds.Dy() * MaxImageWidth / bounds.Dx()
		dst := image.NewRGBA(image.Rect(0, 0, MaxImageWidth, height))
		draw.BiLinear.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
		img = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	return buf.Bytes(), nil
}

func jpegName(name string) string {
	if idx := strings.LastIndex(name, "."); idx > 0 {
		name = name[:idx]
	}
	return name + ".jpg"
}
