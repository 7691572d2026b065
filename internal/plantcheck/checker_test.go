package plantcheck

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
)

// fillImage builds a 10x10 RGBA image whose first greenPixels pixels are
// pure green and the rest pure red.
func fillImage(t *testing.T, greenPixels int) *image.RGBA {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	i := 0
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			if i < greenPixels {
				img.Set(x, y, color.RGBA{R: 10, G: 200, B: 10, A: 255})
			} else {
				img.Set(x, y, color.RGBA{R: 200, G: 10, B: 10, A: 255})
			}
			i++
		}
	}
	return img
}

func TestCheckImage_GreenRatioThreshold(t *testing.T) {
	tests := []struct {
		name        string
		greenPixels int // out of 100
		wantPlant   bool
	}{
		{"all green", 100, true},
		{"just above threshold", 16, true},
		{"exactly at threshold", 15, false}, // strictly-greater rule
		{"just below threshold", 14, false},
		{"no green", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CheckImage(fillImage(t, tt.greenPixels))
			if result.IsPlant != tt.wantPlant {
				t.Errorf("IsPlant = %v, want %v (green=%d/100)", result.IsPlant, tt.wantPlant, tt.greenPixels)
			}
			if result.Message == "" {
				t.Error("expected a non-empty message")
			}
		})
	}
}

func TestCheckImage_GreenMustDominateBothChannels(t *testing.T) {
	// Green equal to red is not greenish: the rule is strict dominance.
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.RGBA{R: 100, G: 100, B: 10, A: 255})
		}
	}

	result := CheckImage(img)
	if result.IsPlant {
		t.Error("expected ties on the red channel to count as not greenish")
	}
}

func TestCheck_DecodesRealEncoding(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, fillImage(t, 100)); err != nil {
		t.Fatalf("encode: %v", err)
	}

	result := Check(buf.Bytes())
	if !result.IsPlant {
		t.Errorf("expected a fully green PNG to pass, got %+v", result)
	}
}

func TestCheck_DecodeFailureNeverThrows(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty input", nil},
		{"garbage bytes", []byte("definitely not an image")},
		{"truncated png header", []byte{0x89, 'P', 'N', 'G'}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Check(tt.data)
			if result.IsPlant {
				t.Error("decode failure must yield IsPlant=false")
			}
			if result.Message == "" {
				t.Error("decode failure must carry a non-empty message")
			}
		})
	}
}

func TestCheckImage_EmptyRasterSkipsVerification(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 0, 0))

	result := CheckImage(img)
	if !result.IsPlant {
		t.Error("unreadable pixel data must not block the workflow")
	}
	if result.Message == "" {
		t.Error("expected a skip message")
	}
}

func TestGreenRatio(t *testing.T) {
	ratio := GreenRatio(fillImage(t, 25))
	if ratio != 0.25 {
		t.Errorf("GreenRatio = %f, want 0.25", ratio)
	}
}
