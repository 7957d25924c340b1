package qr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/png"

	qrcode "github.com/skip2/go-qrcode"
)

// Level is the error-correction level requested for a code.
type Level string

const (
	LevelLow      Level = "L"
	LevelMedium   Level = "M"
	LevelQuartile Level = "Q"
	LevelHigh     Level = "H"
)

// DefaultPixelSize matches the resolution used for printed cards.
const DefaultPixelSize = 80

// Options tunes a single encode call.
type Options struct {
	ErrorCorrection Level
	PixelSize       int
}

// Encoder renders URLs as grayscale PNG images. It holds no state and is safe for concurrent use.
type Encoder struct{}

// NewEncoder constructs an Encoder.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// Encode produces a PNG payload for content.
func (e *Encoder) Encode(ctx context.Context, content string, opts Options) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if content == "" {
		return nil, fmt.Errorf("qr content is empty")
	}
	size := opts.PixelSize
	if size <= 0 {
		size = DefaultPixelSize
	}

	code, err := qrcode.New(content, recoveryLevel(opts.ErrorCorrection))
	if err != nil {
		return nil, fmt.Errorf("build qr code: %w", err)
	}

	src := code.Image(size)
	gray := image.NewGray(src.Bounds())
	draw.Draw(gray, gray.Bounds(), src, src.Bounds().Min, draw.Src)

	buf := &bytes.Buffer{}
	if err := png.Encode(buf, gray); err != nil {
		return nil, fmt.Errorf("encode qr png: %w", err)
	}
	return buf.Bytes(), nil
}

func recoveryLevel(level Level) qrcode.RecoveryLevel {
	switch level {
	case LevelLow:
		return qrcode.Low
	case LevelMedium:
		return qrcode.Medium
	case LevelQuartile:
		return qrcode.High
	default:
		return qrcode.Highest
	}
}
