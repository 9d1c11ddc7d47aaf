package enhance

import (
	"context"
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTestImage renders a small gradient so the filter has real contrast
// to work with.
func writeTestImage(t *testing.T, path string) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			v := uint8(40 + x*8)
			img.SetNRGBA(x, y, color.NRGBA{R: v, G: v / 2, B: uint8(200 - y*4), A: 255})
		}
	}
	require.NoError(t, imaging.Save(img, path))
}

func TestFilterEnhance(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.png")
	out := filepath.Join(dir, "out.png")
	writeTestImage(t, in)

	f := NewFilter()
	require.NoError(t, f.Enhance(context.Background(), in, out))

	original, err := imaging.Open(in)
	require.NoError(t, err)
	enhanced, err := imaging.Open(out)
	require.NoError(t, err)

	assert.Equal(t, original.Bounds(), enhanced.Bounds())
	assert.NotEqual(t, imaging.Clone(original).Pix, imaging.Clone(enhanced).Pix,
		"enhancement must actually change the pixels")
}

func TestFilterDeterministic(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.png")
	writeTestImage(t, in)

	f := NewFilter()
	first := filepath.Join(dir, "first.png")
	second := filepath.Join(dir, "second.png")
	require.NoError(t, f.Enhance(context.Background(), in, first))
	require.NoError(t, f.Enhance(context.Background(), in, second))

	a, err := imaging.Open(first)
	require.NoError(t, err)
	b, err := imaging.Open(second)
	require.NoError(t, err)
	assert.Equal(t, imaging.Clone(a).Pix, imaging.Clone(b).Pix)
}

func TestFilterMissingInput(t *testing.T) {
	dir := t.TempDir()
	f := NewFilter()

	err := f.Enhance(context.Background(), filepath.Join(dir, "absent.png"), filepath.Join(dir, "out.png"))
	require.Error(t, err)
	assert.NoFileExists(t, filepath.Join(dir, "out.png"))
}

func TestClamp8(t *testing.T) {
	assert.Equal(t, uint8(255), clamp8(300))
	assert.Equal(t, uint8(0), clamp8(-4))
	assert.Equal(t, uint8(128), clamp8(127.6))
}

func TestHistogramBounds(t *testing.T) {
	var hist [256]float64
	hist[10] = 0.5
	hist[200] = 0.5

	lo, hi := histogramBounds(hist, 0.01)
	assert.Equal(t, 10, lo)
	assert.Equal(t, 200, hi)
}
