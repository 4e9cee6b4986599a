package ocr

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"
)

// Fit scales src into a white width×height canvas, keeping its aspect ratio
// and centring it. Every page reaches the recognizer at the same size.
func Fit(src image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)

	sb := src.Bounds()
	if sb.Dx() == 0 || sb.Dy() == 0 {
		return dst
	}
	scale := min(float64(width)/float64(sb.Dx()), float64(height)/float64(sb.Dy()))
	w := max(1, int(float64(sb.Dx())*scale))
	h := max(1, int(float64(sb.Dy())*scale))
	x0 := (width - w) / 2
	y0 := (height - h) / 2

	draw.CatmullRom.Scale(dst, image.Rect(x0, y0, x0+w, y0+h), src, sb, draw.Over, nil)
	return dst
}

// Preprocess prepares a page for recognition: greyscale, a contrast stretch
// of the luminance range to 0..255, then a light sharpen.
func Preprocess(src image.Image) *image.NRGBA {
	grey := imaging.Grayscale(src)
	lo, hi := lumaRange(grey)
	if hi > lo {
		span := float64(hi - lo)
		grey = imaging.AdjustFunc(grey, func(c color.NRGBA) color.NRGBA {
			v := stretch(c.R, lo, span)
			return color.NRGBA{R: v, G: v, B: v, A: c.A}
		})
	}
	return imaging.Sharpen(grey, 1.0)
}

func lumaRange(img *image.NRGBA) (lo, hi uint8) {
	lo, hi = 255, 0
	for i := 0; i+3 < len(img.Pix); i += 4 {
		v := img.Pix[i]
		lo = min(lo, v)
		hi = max(hi, v)
	}
	return lo, hi
}

func stretch(v, lo uint8, span float64) uint8 {
	if v <= lo {
		return 0
	}
	f := float64(v-lo) * 255 / span
	if f >= 255 {
		return 255
	}
	return uint8(f + 0.5)
}
