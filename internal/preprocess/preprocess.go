// Package preprocess turns encoded image bytes into the fixed-size RGB tensor
// the classifier was trained on.
package preprocess

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	apperrors "github.com/Brownie44l1/damage-api/internal/errors"
	"github.com/Brownie44l1/damage-api/internal/model"
	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const channels = 3

// DefaultMaxPixels matches the decompression bomb limit of common imaging
// libraries.
const DefaultMaxPixels = 89478485

var interpolations = map[string]resize.InterpolationFunction{
	"nearest":  resize.NearestNeighbor,
	"bilinear": resize.Bilinear,
	"bicubic":  resize.Bicubic,
	"mitchell": resize.MitchellNetravali,
	"lanczos2": resize.Lanczos2,
	"lanczos3": resize.Lanczos3,
}

// Preprocessor holds the parameters from the preprocessing descriptor. It
// is immutable and safe for concurrent use.
type Preprocessor struct {
	width  int
	height int
	scale     float32
	interp    resize.InterpolationFunction
	maxPixels int64
}

type Option func(*Preprocessor)

// WithMaxPixels rejects images whose declared width x height exceeds n
// before any pixel data is decoded.
func WithMaxPixels(n int64) Option {
	return func(p *Preprocessor) {
		p.maxPixels = n
	}
}

// New returns a Preprocessor resizing to width x height and multiplying
// 8-bit intensities by scale.
func New(width, height int, scale float64, interpolation string, opts ...Option) (*Preprocessor, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid target size %dx%d", width, height)
	}
	if scale <= 0 {
		return nil, fmt.Errorf("invalid scale %v", scale)
	}
	interp, ok := interpolations[interpolation]
	if !ok {
		return nil, fmt.Errorf("unsupported interpolation %q", interpolation)
	}
	p := &Preprocessor{width: width, height: height, scale: float32(scale), interp: interp, maxPixels: DefaultMaxPixels}
	for _, opt := range opts {
		opt(p)
	}
	if p.maxPixels <= 0 {
		return nil, fmt.Errorf("invalid pixel limit %d", p.maxPixels)
	}
	return p, nil
}

// Shape is the tensor shape Prepare produces.
func (p *Preprocessor) Shape() model.Shape {
	return model.Shape{Width: p.width, Height: p.height, Channels: channels}
}

// Prepare decodes data, converts it to RGB, resizes it and scales it into
// [0, 1]. Any payload that is not a decodable image yields an
// ImageDecodeError.
func (p *Preprocessor) Prepare(data []byte) (model.Tensor, error) {
	if len(data) == 0 {
		return model.Tensor{}, apperrors.NewImageDecodeError("empty image payload", nil)
	}
	// the header is checked first so a forged size cannot force a huge
	// allocation in the decoder
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return model.Tensor{}, apperrors.NewImageDecodeError("unable to decode image", err)
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > p.maxPixels {
		return model.Tensor{}, apperrors.NewImageDecodeError(
			fmt.Sprintf("image is %dx%d, larger than the %d pixel limit", cfg.Width, cfg.Height, p.maxPixels), nil)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return model.Tensor{}, apperrors.NewImageDecodeError("unable to decode image", err)
	}
	if b := img.Bounds(); b.Dx() <= 0 || b.Dy() <= 0 {
		return model.Tensor{}, apperrors.NewImageDecodeError(fmt.Sprintf("image has no pixels (%dx%d)", b.Dx(), b.Dy()), nil)
	}

	resized := resize.Resize(uint(p.width), uint(p.height), toRGB(img), p.interp)
	return p.tensor(resized), nil
}

// toRGB drops alpha without compositing and expands grayscale, paletted and
// other color models to opaque RGB.
func toRGB(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			i := dst.PixOffset(x-b.Min.X, y-b.Min.Y)
			dst.Pix[i+0] = c.R
			dst.Pix[i+1] = c.G
			dst.Pix[i+2] = c.B
			dst.Pix[i+3] = 0xff
		}
	}
	return dst
}

func (p *Preprocessor) tensor(img image.Image) model.Tensor {
	shape := p.Shape()
	data := make([]float32, shape.Len())
	b := img.Bounds()

	rgba, fast := img.(*image.RGBA)
	for y := 0; y < p.height; y++ {
		for x := 0; x < p.width; x++ {
			var r, g, bl uint8
			if fast {
				i := rgba.PixOffset(b.Min.X+x, b.Min.Y+y)
				r, g, bl = rgba.Pix[i], rgba.Pix[i+1], rgba.Pix[i+2]
			} else {
				c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
				r, g, bl = c.R, c.G, c.B
			}
			o := (y*p.width + x) * channels
			data[o+0] = p.normalize(r)
			data[o+1] = p.normalize(g)
			data[o+2] = p.normalize(bl)
		}
	}
	return model.Tensor{Shape: shape, Data: data}
}

func (p *Preprocessor) normalize(v uint8) float32 {
	f := float32(v) * p.scale
	if f > 1 {
		return 1
	}
	return f
}
