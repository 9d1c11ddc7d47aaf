package enhance

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"os"

	"github.com/disintegration/imaging"
)

// Enhancement parameters. The order of application is part of the
// contract: modulate (brightness/saturation/hue), then normalize, then
// sharpen, so a given input always produces the same output.
const (
	brightnessFactor = 1.3
	saturationBoost  = 20 // percent, i.e. x1.2
	sharpenSigma     = 1.0

	// Histogram cutoff for the contrast stretch: clip 1% of pixels at
	// each end before remapping to the full range.
	normalizeCutoff = 0.01
)

// Filter is the deterministic local tier: a brightness/saturation boost, a
// histogram stretch and a sharpening pass. It needs no external runtime,
// which is the whole point — it backs up the ML tier so a user always gets
// an enhanced result.
type Filter struct{}

func NewFilter() *Filter {
	return &Filter{}
}

func (f *Filter) Enhance(_ context.Context, inputPath, outputPath string) error {
	img, err := imaging.Open(inputPath)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}

	out := imaging.AdjustFunc(img, scaleBrightness)
	out = imaging.AdjustSaturation(out, saturationBoost)
	out = normalize(out)
	out = imaging.Sharpen(out, sharpenSigma)

	if err := imaging.Save(out, outputPath); err != nil {
		// Drop whatever the failed encode left behind.
		_ = os.Remove(outputPath)
		return fmt.Errorf("save output: %w", err)
	}
	return nil
}

// scaleBrightness multiplies each channel, clamping at white. Matches
// multiplicative (modulate-style) brightness rather than an additive
// offset.
func scaleBrightness(c color.NRGBA) color.NRGBA {
	return color.NRGBA{
		R: clamp8(float64(c.R) * brightnessFactor),
		G: clamp8(float64(c.G) * brightnessFactor),
		B: clamp8(float64(c.B) * brightnessFactor),
		A: c.A,
	}
}

// normalize stretches the luminance histogram to the full range, clipping
// normalizeCutoff of pixels at each end so isolated outliers do not defeat
// the stretch.
func normalize(img image.Image) *image.NRGBA {
	hist := imaging.Histogram(img)

	lo, hi := histogramBounds(hist, normalizeCutoff)
	if hi <= lo {
		return imaging.Clone(img)
	}

	scale := 255.0 / float64(hi-lo)
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		return color.NRGBA{
			R: clamp8(float64(int(c.R)-lo) * scale),
			G: clamp8(float64(int(c.G)-lo) * scale),
			B: clamp8(float64(int(c.B)-lo) * scale),
			A: c.A,
		}
	})
}

// histogramBounds finds the luminance levels that cut off the given
// fraction of mass at each tail.
func histogramBounds(hist [256]float64, cutoff float64) (lo, hi int) {
	var acc float64
	lo = 0
	for i := 0; i < 256; i++ {
		acc += hist[i]
		if acc > cutoff {
			lo = i
			break
		}
	}

	acc = 0
	hi = 255
	for i := 255; i >= 0; i-- {
		acc += hist[i]
		if acc > cutoff {
			hi = i
			break
		}
	}
	return lo, hi
}

func clamp8(v float64) uint8 {
	if v > 255 {
		return 255
	}
	if v < 0 {
		return 0
	}
	return uint8(v + 0.5)
}
