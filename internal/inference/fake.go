package inference

import (
	"bytes"
	"context"
	"crypto/sha256"
	"image"
	"image/color"
	"image/png"
)

// FakeGenerator renders a flat square whose colour is derived from the
// prompt. Used in dry-run mode and tests.
type FakeGenerator struct{}

func (FakeGenerator) Generate(ctx context.Context, prompt string) (Image, error) {
	if err := ctx.Err(); err != nil {
		return Image{}, err
	}
	if prompt == "" {
		return Image{}, ErrEmptyPrompt
	}
	sum := sha256.Sum256([]byte(prompt))
	fill := color.RGBA{R: sum[0], G: sum[1], B: sum[2], A: 0xff}

	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, fill)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return Image{}, err
	}
	return Image{Data: buf.Bytes(), ContentType: "image/png"}, nil
}
