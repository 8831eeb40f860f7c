package encoder

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
)

// Encoder turns a rendered tile into the bytes served to clients.
type Encoder interface {
	Encode(img image.Image) ([]byte, error)
	Name() string
}

type Options struct {
	Compression string // default, speed, best, none
	Palette     bool   // vips only: quantize to an 8-bit palette
}

// New returns the encoder registered under name.
func New(name string, opts Options) (Encoder, error) {
	level, err := compressionLevel(opts.Compression)
	if err != nil {
		return nil, err
	}

	switch name {
	case "", "png":
		return NewPNG(level), nil
	case "vips":
		return NewVips(level, opts.Palette), nil
	default:
		return nil, fmt.Errorf("unknown encoder: %s (supported: png, vips)", name)
	}
}

func compressionLevel(name string) (png.CompressionLevel, error) {
	switch name {
	case "", "default":
		return png.DefaultCompression, nil
	case "speed":
		return png.BestSpeed, nil
	case "best":
		return png.BestCompression, nil
	case "none":
		return png.NoCompression, nil
	default:
		return 0, fmt.Errorf("unknown png compression: %s (supported: default, speed, best, none)", name)
	}
}

// PNGEncoder writes RGBA PNGs with the standard library encoder.
type PNGEncoder struct {
	enc *png.Encoder
}

func NewPNG(level png.CompressionLevel) *PNGEncoder {
	return &PNGEncoder{
		enc: &png.Encoder{
			CompressionLevel: level,
			BufferPool:       &bufferPool{},
		},
	}
}

func (e *PNGEncoder) Name() string {
	return "png"
}

func (e *PNGEncoder) Encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := e.enc.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}
