package volume

import (
	"fmt"

	"medvolume/pkg/imaging"
)

// Volume is a dense float32 array of shape [channels, depth, height, width]
// stored in C order.
type Volume struct {
	Shape [4]int
	Data  []float32
}

func New(channels, depth, height, width int) *Volume {
	return &Volume{
		Shape: [4]int{channels, depth, height, width},
		Data:  make([]float32, channels*depth*height*width),
	}
}

func (v *Volume) Channels() int { return v.Shape[0] }
func (v *Volume) Depth() int    { return v.Shape[1] }
func (v *Volume) Height() int   { return v.Shape[2] }
func (v *Volume) Width() int    { return v.Shape[3] }

// Plane returns the [height*width] samples at channel c, depth d without copying.
func (v *Volume) Plane(c, d int) []float32 {
	n := v.Height() * v.Width()
	off := (c*v.Depth() + d) * n
	return v.Data[off : off+n]
}

// MiddleIndex is the representative depth index, depth/2.
func (v *Volume) MiddleIndex() int {
	return v.Depth() / 2
}

func (v *Volume) validate() error {
	size := 1
	for _, n := range v.Shape {
		if n <= 0 {
			return fmt.Errorf("invalid volume shape %v", v.Shape)
		}
		size *= n
	}
	if len(v.Data) != size {
		return fmt.Errorf("volume has %d samples, shape %v needs %d", len(v.Data), v.Shape, size)
	}
	return nil
}

// Stack places slices along a new depth axis: [C,H,W] x D -> [C,D,H,W].
// Every slice must share the first slice's shape.
func Stack(slices []*imaging.Slice) (*Volume, error) {
	if len(slices) == 0 {
		return nil, fmt.Errorf("stack: no slices")
	}
	shape := slices[0].Shape()
	for i, s := range slices[1:] {
		if s.Shape() != shape {
			return nil, fmt.Errorf("stack: slice %d has shape %v, want %v", i+1, s.Shape(), shape)
		}
	}

	v := New(shape[0], len(slices), shape[1], shape[2])
	for d, s := range slices {
		for c := 0; c < shape[0]; c++ {
			copy(v.Plane(c, d), s.Channel(c))
		}
	}
	return v, nil
}
