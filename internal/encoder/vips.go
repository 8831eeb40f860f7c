package encoder

import (
	"fmt"
	"image"
	"image/png"

	"github.com/cshum/vipsgen/vips"
)

// VipsEncoder re-encodes tiles through libvips, which can quantize to a
// palette and compresses harder than image/png. vips.Startup must have been
// called before the first Encode.
type VipsEncoder struct {
	fast        *PNGEncoder
	compression int
	palette     bool
}

func NewVips(level png.CompressionLevel, palette bool) *VipsEncoder {
	compression := 6
	switch level {
	case png.BestSpeed:
		compression = 1
	case png.BestCompression:
		compression = 9
	case png.NoCompression:
		compression = 0
	}

	return &VipsEncoder{
		fast:        NewPNG(png.BestSpeed),
		compression: compression,
		palette:     palette,
	}
}

func (e *VipsEncoder) Name() string {
	return "vips"
}

func (e *VipsEncoder) Encode(img image.Image) ([]byte, error) {
	raw, err := e.fast.Encode(img)
	if err != nil {
		return nil, err
	}

	tile, err := vips.NewPngloadBuffer(raw, vips.DefaultPngloadBufferOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to load tile into vips: %w", err)
	}
	defer tile.Close()

	opts := vips.DefaultPngsaveBufferOptions()
	opts.Compression = e.compression
	opts.Palette = e.palette
	opts.Interlace = false

	data, err := tile.PngsaveBuffer(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to export: %w", err)
	}
	return data, nil
}
