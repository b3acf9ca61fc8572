package ocr

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
)

// NormalizeImage rewrites a page image in place after greyscale
// conversion, contrast stretching, a sharpening pass and binarization.
// Recognition accuracy on scanned contract pages is poor without it.
func NormalizeImage(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	img, _, err := image.Decode(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}

	grey := toGrey(img)
	stretchContrast(grey)
	sharpened := sharpen(grey)
	binarize(sharpened)

	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer out.Close()
	return png.Encode(out, sharpened)
}

func toGrey(img image.Image) *image.Gray {
	b := img.Bounds()
	grey := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			grey.Set(x, y, color.GrayModel.Convert(img.At(x, y)))
		}
	}
	return grey
}

// stretchContrast remaps pixel intensities to span the full range.
func stretchContrast(img *image.Gray) {
	min, max := uint8(255), uint8(0)
	for _, p := range img.Pix {
		if p < min {
			min = p
		}
		if p > max {
			max = p
		}
	}
	if max <= min {
		return
	}
	scale := 255.0 / float64(max-min)
	for i, p := range img.Pix {
		img.Pix[i] = uint8(float64(p-min) * scale)
	}
}

// sharpen applies a 3x3 unsharp kernel.
func sharpen(img *image.Gray) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(b)
	copy(out.Pix, img.Pix)
	for y := b.Min.Y + 1; y < b.Max.Y-1; y++ {
		for x := b.Min.X + 1; x < b.Max.X-1; x++ {
			center := int(img.GrayAt(x, y).Y)
			sum := 5*center -
				int(img.GrayAt(x-1, y).Y) - int(img.GrayAt(x+1, y).Y) -
				int(img.GrayAt(x, y-1).Y) - int(img.GrayAt(x, y+1).Y)
			out.SetGray(x, y, color.Gray{Y: clamp(sum)})
		}
	}
	return out
}

// binarize thresholds at the mean intensity.
func binarize(img *image.Gray) {
	var total uint64
	for _, p := range img.Pix {
		total += uint64(p)
	}
	if len(img.Pix) == 0 {
		return
	}
	threshold := uint8(total / uint64(len(img.Pix)))
	for i, p := range img.Pix {
		if p > threshold {
			img.Pix[i] = 255
		} else {
			img.Pix[i] = 0
		}
	}
}

func clamp(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
