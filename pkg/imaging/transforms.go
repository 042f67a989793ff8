package imaging

import (
	"fmt"
	"math"
)

// Transform mutates a Slice in place.
type Transform interface {
	Name() string
	Apply(s *Slice) error
}

// ScaleIntensityRange linearly maps [AMin, AMax] onto [BMin, BMax],
// optionally clipping the result to the target range.
type ScaleIntensityRange struct {
	AMin, AMax float32
	BMin, BMax float32
	Clip       bool
}

func (t ScaleIntensityRange) Name() string { return "scale_intensity_range" }

func (t ScaleIntensityRange) Apply(s *Slice) error {
	if t.AMax == t.AMin {
		return fmt.Errorf("source range is empty (min == max == %v)", t.AMin)
	}
	lo, hi := t.BMin, t.BMax
	if lo > hi {
		lo, hi = hi, lo
	}
	scale := (t.BMax - t.BMin) / (t.AMax - t.AMin)
	for i, v := range s.Pix {
		v = (v-t.AMin)*scale + t.BMin
		if t.Clip {
			v = min(max(v, lo), hi)
		}
		s.Pix[i] = v
	}
	return nil
}

// ResizeWithPadOrCrop center-crops or symmetrically zero-pads each spatial
// axis to the target size. No interpolation is performed.
type ResizeWithPadOrCrop struct {
	Height, Width int
}

func (t ResizeWithPadOrCrop) Name() string { return "resize_with_pad_or_crop" }

func (t ResizeWithPadOrCrop) Apply(s *Slice) error {
	if t.Height <= 0 || t.Width <= 0 {
		return fmt.Errorf("invalid spatial size %dx%d", t.Height, t.Width)
	}
	if s.Height == t.Height && s.Width == t.Width {
		return nil
	}

	offY := axisOffset(s.Height, t.Height)
	offX := axisOffset(s.Width, t.Width)

	out := NewSlice(s.Channels, t.Height, t.Width)
	for c := 0; c < s.Channels; c++ {
		src := s.Channel(c)
		dst := out.Channel(c)
		for y := 0; y < t.Height; y++ {
			sy := y + offY
			if sy < 0 || sy >= s.Height {
				continue
			}
			for x := 0; x < t.Width; x++ {
				sx := x + offX
				if sx < 0 || sx >= s.Width {
					continue
				}
				dst[y*t.Width+x] = src[sy*s.Width+sx]
			}
		}
	}

	*s = *out
	return nil
}

// axisOffset maps an output index to a source index (src = out + offset).
// Cropping keeps the window centered on size/2; padding puts the extra
// sample, if any, after the data.
func axisOffset(size, target int) int {
	if size >= target {
		return size/2 - target/2
	}
	return -((target - size) / 2)
}

// NormalizeIntensity shifts each channel to zero mean and unit standard
// deviation. With Nonzero set, statistics are taken over nonzero samples only
// and zero samples are left untouched.
type NormalizeIntensity struct {
	Nonzero bool
}

func (t NormalizeIntensity) Name() string { return "normalize_intensity" }

func (t NormalizeIntensity) Apply(s *Slice) error {
	for c := 0; c < s.Channels; c++ {
		t.normalize(s.Channel(c))
	}
	return nil
}

func (t NormalizeIntensity) normalize(pix []float32) {
	var sum float64
	var n int
	for _, v := range pix {
		if t.Nonzero && v == 0 {
			continue
		}
		sum += float64(v)
		n++
	}
	if n == 0 {
		return
	}
	mean := sum / float64(n)

	var sq float64
	for _, v := range pix {
		if t.Nonzero && v == 0 {
			continue
		}
		d := float64(v) - mean
		sq += d * d
	}
	std := math.Sqrt(sq / float64(n))
	if std == 0 {
		std = 1
	}

	for i, v := range pix {
		if t.Nonzero && v == 0 {
			continue
		}
		pix[i] = float32((float64(v) - mean) / std)
	}
}
