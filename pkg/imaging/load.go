package imaging

import (
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"os"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

// Load decodes an image file into a single-channel Slice of raw sample
// values. 8-bit images load as 0..255, 16-bit images keep their full
// 0..65535 range. Color images are converted to gray.
func Load(path string) (*Slice, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, format, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	bounds := img.Bounds()
	if bounds.Empty() {
		return nil, fmt.Errorf("decode %s: empty %s image", path, format)
	}

	return fromImage(img), nil
}

func fromImage(img image.Image) *Slice {
	bounds := img.Bounds()
	s := NewSlice(1, bounds.Dy(), bounds.Dx())

	switch src := img.(type) {
	case *image.Gray:
		for y := 0; y < s.Height; y++ {
			row := src.Pix[y*src.Stride : y*src.Stride+s.Width]
			for x, v := range row {
				s.Pix[y*s.Width+x] = float32(v)
			}
		}
		return s
	case *image.Gray16:
		for y := 0; y < s.Height; y++ {
			row := src.Pix[y*src.Stride : y*src.Stride+2*s.Width]
			for x := 0; x < s.Width; x++ {
				s.Pix[y*s.Width+x] = float32(uint16(row[2*x])<<8 | uint16(row[2*x+1]))
			}
		}
		return s
	}

	if is16Bit(img.ColorModel()) {
		for y := 0; y < s.Height; y++ {
			for x := 0; x < s.Width; x++ {
				c := color.Gray16Model.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.Gray16)
				s.Pix[y*s.Width+x] = float32(c.Y)
			}
		}
		return s
	}

	for y := 0; y < s.Height; y++ {
		for x := 0; x < s.Width; x++ {
			c := color.GrayModel.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.Gray)
			s.Pix[y*s.Width+x] = float32(c.Y)
		}
	}
	return s
}

func is16Bit(m color.Model) bool {
	switch m {
	case color.Gray16Model, color.RGBA64Model, color.NRGBA64Model:
		return true
	}
	return false
}
