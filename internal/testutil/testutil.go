// Package testutil builds model bundles and image fixtures for tests.
package testutil

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"os"
	"path/filepath"
	"testing"

	"github.com/Brownie44l1/damage-api/internal/artifact"
	"github.com/stretchr/testify/require"
)

// The fixture model scores red-dominant images as damage and green-dominant
// ones as no_damage.
const (
	FixtureModel = `{"format":"logistic","input_shape":[32,32,3],"channel_weights":[8,-8,0],"bias":0}`
	FixturePrep  = `{"resize":[32,32],"scale":0.00392156862745098}`
	FixtureCard  = `{"model_name":"rust_detector","test_auc":0.91,"classes":["no_damage","damage"]}`
)

var (
	DamageColor   = color.NRGBA{R: 180, G: 60, B: 40, A: 255}
	NoDamageColor = color.NRGBA{R: 60, G: 160, B: 70, A: 255}
)

// WriteBundle writes the fixture bundle into a temp dir and returns its paths.
func WriteBundle(t *testing.T) artifact.Paths {
	t.Helper()
	dir := t.TempDir()
	paths := artifact.Paths{
		Model:         filepath.Join(dir, "model.json"),
		Preprocessing: filepath.Join(dir, "preprocessing.json"),
		ModelCard:     filepath.Join(dir, "model_card.json"),
	}
	require.NoError(t, os.WriteFile(paths.Model, []byte(FixtureModel), 0o644))
	require.NoError(t, os.WriteFile(paths.Preprocessing, []byte(FixturePrep), 0o644))
	require.NoError(t, os.WriteFile(paths.ModelCard, []byte(FixtureCard), 0o644))
	return paths
}

// PNG encodes a w x h image of c with a little noise so it is not trivially
// uniform.
func PNG(t *testing.T, c color.NRGBA, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			d := uint8((x + y) % 7)
			img.SetNRGBA(x, y, color.NRGBA{R: c.R - d, G: c.G + d, B: c.B, A: c.A})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// Multipart builds a multipart body with data as a file in field.
func Multipart(t *testing.T, field string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	fw, err := writer.CreateFormFile(field, "fixture.png")
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

// ForgedPNG returns a tiny PNG whose header declares a w x h RGBA image but
// carries almost no pixel data.
func ForgedPNG(w, h uint32) []byte {
	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")

	chunk := func(typ string, data []byte) {
		binary.Write(&buf, binary.BigEndian, uint32(len(data)))
		crc := crc32.NewIEEE()
		crc.Write([]byte(typ))
		crc.Write(data)
		buf.WriteString(typ)
		buf.Write(data)
		binary.Write(&buf, binary.BigEndian, crc.Sum32())
	}

	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:4], w)
	binary.BigEndian.PutUint32(ihdr[4:8], h)
	ihdr[8] = 8 // bit depth
	ihdr[9] = 6 // RGBA
	chunk("IHDR", ihdr)
	// a zlib stream holding a few zero bytes
	chunk("IDAT", []byte{0x78, 0x9c, 0x63, 0x60, 0x00, 0x00, 0x00, 0x02, 0x00, 0x01})
	chunk("IEND", nil)
	return buf.Bytes()
}
