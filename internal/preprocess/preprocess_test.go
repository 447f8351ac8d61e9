package preprocess

import (
	"bytes"
	"image"
	"image/color"
	"image/color/palette"
	"image/gif"
	"image/jpeg"
	"image/png"
	"testing"

	apperrors "github.com/Brownie44l1/damage-api/internal/errors"
	"github.com/Brownie44l1/damage-api/internal/model"
	"github.com/Brownie44l1/damage-api/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

const scale = 1.0 / 255

func gradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 255 / max(w-1, 1)), G: uint8(y * 255 / max(h-1, 1)), B: 255, A: 255})
		}
	}
	return img
}

func encode(t *testing.T, format string, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	var err error
	switch format {
	case "png":
		err = png.Encode(&buf, img)
	case "jpeg":
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90})
	case "gif":
		err = gif.Encode(&buf, img, nil)
	case "bmp":
		err = bmp.Encode(&buf, img)
	case "tiff":
		err = tiff.Encode(&buf, img, nil)
	}
	require.NoError(t, err)
	return buf.Bytes()
}

func assertTensor(t *testing.T, tensor model.Tensor, want model.Shape) {
	t.Helper()
	require.Equal(t, want, tensor.Shape)
	require.Len(t, tensor.Data, want.Len())
	for i, v := range tensor.Data {
		if v < 0 || v > 1 {
			t.Fatalf("value %v at %d is outside [0,1]", v, i)
		}
	}
}

func TestPrepareShapeAndRange(t *testing.T) {
	p, err := New(32, 24, scale, "bicubic")
	require.NoError(t, err)
	want := model.Shape{Width: 32, Height: 24, Channels: 3}
	assert.Equal(t, want, p.Shape())

	sizes := [][2]int{{1, 1}, {7, 3}, {32, 24}, {300, 200}, {24, 640}}
	formats := []string{"png", "jpeg", "gif", "bmp", "tiff"}
	for _, size := range sizes {
		for _, format := range formats {
			data := encode(t, format, gradient(size[0], size[1]))
			tensor, err := p.Prepare(data)
			require.NoError(t, err, "%s %dx%d", format, size[0], size[1])
			assertTensor(t, tensor, want)
		}
	}
}

func TestPrepareColorModels(t *testing.T) {
	p, err := New(4, 4, scale, "nearest")
	require.NoError(t, err)
	want := p.Shape()

	gray := image.NewGray(image.Rect(0, 0, 4, 4))
	for i := range gray.Pix {
		gray.Pix[i] = 128
	}
	tensor, err := p.Prepare(encode(t, "png", gray))
	require.NoError(t, err)
	assertTensor(t, tensor, want)
	for c := 0; c < 3; c++ {
		assert.InDelta(t, 128.0/255, tensor.At(2, 2, c), 1e-6, "grayscale is replicated across channels")
	}

	paletted := image.NewPaletted(image.Rect(0, 0, 4, 4), palette.Plan9)
	tensor, err = p.Prepare(encode(t, "png", paletted))
	require.NoError(t, err)
	assertTensor(t, tensor, want)

	gray16 := image.NewGray16(image.Rect(0, 0, 8, 8))
	tensor, err = p.Prepare(encode(t, "png", gray16))
	require.NoError(t, err)
	assertTensor(t, tensor, want)
}

func TestPrepareDropsAlpha(t *testing.T) {
	p, err := New(2, 2, scale, "nearest")
	require.NoError(t, err)

	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 200, G: 100, B: 50, A: 10})
		}
	}
	tensor, err := p.Prepare(encode(t, "png", img))
	require.NoError(t, err)

	assert.InDelta(t, 200.0/255, tensor.At(0, 0, 0), 1e-6)
	assert.InDelta(t, 100.0/255, tensor.At(1, 1, 1), 1e-6)
	assert.InDelta(t, 50.0/255, tensor.At(1, 0, 2), 1e-6)
}

func TestPrepareKeepsPixelOrder(t *testing.T) {
	p, err := New(2, 1, scale, "nearest")
	require.NoError(t, err)

	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	img.Set(1, 0, color.RGBA{B: 255, A: 255})
	tensor, err := p.Prepare(encode(t, "png", img))
	require.NoError(t, err)

	assert.Equal(t, []float32{1, 0, 0, 0, 0, 1}, tensor.Data)
}

func TestPrepareIsDeterministic(t *testing.T) {
	p, err := New(16, 16, scale, "lanczos3")
	require.NoError(t, err)
	data := encode(t, "jpeg", gradient(50, 40))

	first, err := p.Prepare(data)
	require.NoError(t, err)
	second, err := p.Prepare(data)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestPrepareClampsScale(t *testing.T) {
	p, err := New(1, 1, 1.0/200, "nearest")
	require.NoError(t, err)

	white := image.NewGray(image.Rect(0, 0, 1, 1))
	white.Pix[0] = 255
	tensor, err := p.Prepare(encode(t, "png", white))
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 1, 1}, tensor.Data)
}

func TestPrepareRejectsNonImages(t *testing.T) {
	p, err := New(8, 8, scale, "bilinear")
	require.NoError(t, err)

	truncated := encode(t, "png", gradient(8, 8))[:40]
	for name, payload := range map[string][]byte{
		"empty":     nil,
		"text":      []byte("not an image"),
		"json":      []byte(`{"image":"abc"}`),
		"truncated": truncated,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := p.Prepare(payload)
			var decodeErr *apperrors.ImageDecodeError
			require.ErrorAs(t, err, &decodeErr)
		})
	}
}

func TestPrepareRejectsOversizedImages(t *testing.T) {
	p, err := New(8, 8, scale, "bilinear")
	require.NoError(t, err)

	_, err = p.Prepare(testutil.ForgedPNG(40000, 40000))
	var decodeErr *apperrors.ImageDecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Contains(t, err.Error(), "40000x40000")

	small, err := New(8, 8, scale, "bilinear", WithMaxPixels(64*64))
	require.NoError(t, err)
	_, err = small.Prepare(encode(t, "png", gradient(65, 64)))
	require.ErrorAs(t, err, &decodeErr)
	_, err = small.Prepare(encode(t, "png", gradient(64, 64)))
	assert.NoError(t, err)
}

func TestNewValidates(t *testing.T) {
	_, err := New(0, 10, scale, "bicubic")
	assert.Error(t, err)
	_, err = New(10, 10, 0, "bicubic")
	assert.Error(t, err)
	_, err = New(10, 10, scale, "bicubic", WithMaxPixels(0))
	assert.Error(t, err)
	_, err = New(10, 10, scale, "sinc")
	assert.Error(t, err)

	for name := range interpolations {
		_, err := New(10, 10, scale, name)
		assert.NoError(t, err, name)
	}
}
