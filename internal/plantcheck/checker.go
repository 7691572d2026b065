// Package plantcheck implements a cheap client-facing gate that decides
// whether an uploaded photo plausibly depicts a plant. It is a heuristic,
// not a classifier: the goal is to catch obviously-wrong uploads such as
// screenshots or selfies before the diagnosis step runs.
package plantcheck

import (
	"bytes"
	"image"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)

// GreenRatioThreshold is the fraction of greenish pixels above which an
// image is accepted as a plant photo. The value is a preserved placeholder
// with no validated accuracy behind it.
const GreenRatioThreshold = 0.15

const (
	acceptMessage  = "Plant detected. The photo looks good for analysis."
	rejectMessage  = "This doesn't look like a plant photo. Please take a clearer picture of the affected plant."
	decodeMessage  = "Could not read the photo. Please upload a clearer image of your plant."
	skippedMessage = "Verification skipped: pixel data was not readable."
)

// Result is the verdict of a plausibility check. Callers always receive a
// Result, never an error: decode failures are folded into the verdict.
type Result struct {
	IsPlant bool
	Message string
}

// Check decodes the given image bytes and reports whether they plausibly
// depict a plant. A photo passes when strictly more than
// GreenRatioThreshold of its pixels are greenish (green channel strictly
// above both red and blue).
func Check(data []byte) Result {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Result{IsPlant: false, Message: decodeMessage}
	}
	return CheckImage(img)
}

// CheckImage runs the green-ratio heuristic over an already decoded image.
// An image with no readable pixels degrades gracefully: the check is
// skipped and the photo is waved through so verification never blocks the
// user's workflow.
func CheckImage(img image.Image) Result {
	bounds := img.Bounds()
	total := bounds.Dx() * bounds.Dy()
	if total <= 0 {
		return Result{IsPlant: true, Message: skippedMessage}
	}

	green := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			if g > r && g > b {
				green++
			}
		}
	}

	ratio := float64(green) / float64(total)
	if ratio > GreenRatioThreshold {
		return Result{IsPlant: true, Message: acceptMessage}
	}
	return Result{IsPlant: false, Message: rejectMessage}
}

// GreenRatio reports the fraction of greenish pixels in the image.
// Exposed for diagnostics; Check and CheckImage are the real entry points.
func GreenRatio(img image.Image) float64 {
	bounds := img.Bounds()
	total := bounds.Dx() * bounds.Dy()
	if total <= 0 {
		return 0
	}
	green := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			if g > r && g > b {
				green++
			}
		}
	}
	return float64(green) / float64(total)
}
