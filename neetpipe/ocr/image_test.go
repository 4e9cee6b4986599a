package ocr

import (
	"image"
	"image/color"
	"testing"
)

func TestFit_KeepsAspectOnWhite(t *testing.T) {
	// WHAT: A wide black image lands centred on a white portrait canvas.
	src := image.NewRGBA(image.Rect(0, 0, 200, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 200; x++ {
			src.Set(x, y, color.Black)
		}
	}
	dst := Fit(src, 100, 200)
	if b := dst.Bounds(); b.Dx() != 100 || b.Dy() != 200 {
		t.Fatalf("bounds = %v", b)
	}
	// Scaled to 100x50, centred vertically at rows 75..125.
	if c := dst.RGBAAt(50, 10); c.R != 255 || c.G != 255 || c.B != 255 {
		t.Errorf("top margin = %v, want white", c)
	}
	if c := dst.RGBAAt(50, 100); c.R > 10 {
		t.Errorf("centre = %v, want black", c)
	}
}

func TestFit_EmptySource(t *testing.T) {
	dst := Fit(image.NewRGBA(image.Rect(0, 0, 0, 0)), 10, 10)
	if c := dst.RGBAAt(5, 5); c.R != 255 {
		t.Errorf("empty source should give a blank canvas, got %v", c)
	}
}

func TestPreprocess_StretchesContrast(t *testing.T) {
	// WHAT: A low-contrast grey image is stretched to the full range.
	src := image.NewRGBA(image.Rect(0, 0, 20, 20))
	for y := 0; y < 20; y++ {
		for x := 0; x < 20; x++ {
			v := uint8(100)
			if x >= 10 {
				v = 150
			}
			src.Set(x, y, color.RGBA{v, v, v, 255})
		}
	}
	out := Preprocess(src)
	lo, hi := lumaRange(out)
	if lo > 5 || hi < 250 {
		t.Errorf("range after preprocess = %d..%d, want ~0..255", lo, hi)
	}
	r, g, b := out.Pix[0], out.Pix[1], out.Pix[2]
	if r != g || g != b {
		t.Errorf("pixel not grey: %d %d %d", r, g, b)
	}
}

func TestStretch(t *testing.T) {
	if got := stretch(100, 100, 50); got != 0 {
		t.Errorf("stretch(lo) = %d", got)
	}
	if got := stretch(150, 100, 50); got != 255 {
		t.Errorf("stretch(hi) = %d", got)
	}
}
