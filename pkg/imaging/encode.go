package imaging

import (
	"image"
	"image/png"
	"math"
	"os"
)

// ToGray8 maps samples in [0,1] onto 0..255. Out-of-range values are clamped
// and NaN becomes 0.
func ToGray8(pix []float32, height, width int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Pix[y*img.Stride+x] = toByte(pix[y*width+x])
		}
	}
	return img
}

func toByte(v float32) uint8 {
	f := float64(v) * 255
	switch {
	case math.IsNaN(f), f <= 0:
		return 0
	case f >= 255:
		return 255
	}
	return uint8(f)
}

// WritePNG encodes img to path, replacing any existing file.
func WritePNG(path string, img image.Image) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(file, img); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
