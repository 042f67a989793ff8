package imaging

import "fmt"

// Slice is a channel-first 2D image: Pix holds Channels*Height*Width
// samples, channel-major then row-major.
type Slice struct {
	Channels int
	Height   int
	Width    int
	Pix      []float32
}

// NewSlice allocates a zeroed slice of the given shape.
func NewSlice(channels, height, width int) *Slice {
	return &Slice{
		Channels: channels,
		Height:   height,
		Width:    width,
		Pix:      make([]float32, channels*height*width),
	}
}

// Shape returns [channels, height, width].
func (s *Slice) Shape() [3]int {
	return [3]int{s.Channels, s.Height, s.Width}
}

// Channel returns the samples of channel c without copying.
func (s *Slice) Channel(c int) []float32 {
	n := s.Height * s.Width
	return s.Pix[c*n : (c+1)*n]
}

func (s *Slice) validate() error {
	if s.Channels <= 0 || s.Height <= 0 || s.Width <= 0 {
		return fmt.Errorf("invalid slice shape %v", s.Shape())
	}
	if len(s.Pix) != s.Channels*s.Height*s.Width {
		return fmt.Errorf("slice has %d samples, shape %v needs %d",
			len(s.Pix), s.Shape(), s.Channels*s.Height*s.Width)
	}
	return nil
}
