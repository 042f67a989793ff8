package imaging

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sliceOf(h, w int, vals ...float32) *Slice {
	s := NewSlice(1, h, w)
	copy(s.Pix, vals)
	return s
}

func TestScaleIntensityRangeClips(t *testing.T) {
	s := sliceOf(1, 4, -10, 0, 127.5, 300)
	tr := ScaleIntensityRange{AMin: 0, AMax: 255, BMin: 0, BMax: 1, Clip: true}
	require.NoError(t, tr.Apply(s))

	assert.InDeltaSlice(t, []float32{0, 0, 0.5, 1}, s.Pix, 1e-6)
}

func TestScaleIntensityRangeRejectsEmptySourceRange(t *testing.T) {
	s := sliceOf(1, 1, 5)
	err := ScaleIntensityRange{AMin: 3, AMax: 3, BMax: 1}.Apply(s)
	assert.Error(t, err)
}

func TestResizeWithPadOrCropPadsSymmetrically(t *testing.T) {
	// 1x3 row padded to 1x6: diff 3, one zero before and two after.
	s := sliceOf(1, 3, 1, 2, 3)
	require.NoError(t, ResizeWithPadOrCrop{Height: 1, Width: 6}.Apply(s))

	assert.Equal(t, [3]int{1, 1, 6}, s.Shape())
	assert.Equal(t, []float32{0, 1, 2, 3, 0, 0}, s.Pix)
}

func TestResizeWithPadOrCropCropsAroundCenter(t *testing.T) {
	// 1x5 cropped to 1x2: center 2, start 2-1 = 1.
	s := sliceOf(1, 5, 10, 11, 12, 13, 14)
	require.NoError(t, ResizeWithPadOrCrop{Height: 1, Width: 2}.Apply(s))
	assert.Equal(t, []float32{11, 12}, s.Pix)

	// 4x1 cropped to 3x1: center 2, start 2-1 = 1.
	s = sliceOf(4, 1, 1, 2, 3, 4)
	require.NoError(t, ResizeWithPadOrCrop{Height: 3, Width: 1}.Apply(s))
	assert.Equal(t, []float32{2, 3, 4}, s.Pix)
}

func TestResizeWithPadOrCropMixedAxes(t *testing.T) {
	// 2x4 -> 4x2: pad rows (one before, one after), crop columns 1..2.
	s := sliceOf(2, 4,
		1, 2, 3, 4,
		5, 6, 7, 8)
	require.NoError(t, ResizeWithPadOrCrop{Height: 4, Width: 2}.Apply(s))

	assert.Equal(t, []float32{
		0, 0,
		2, 3,
		6, 7,
		0, 0,
	}, s.Pix)
}

func TestNormalizeIntensityNonzero(t *testing.T) {
	s := sliceOf(1, 4, 0, 1, 3, 0)
	require.NoError(t, NormalizeIntensity{Nonzero: true}.Apply(s))

	// mean 2, population std 1 over {1, 3}
	assert.Equal(t, []float32{0, -1, 1, 0}, s.Pix)
}

func TestNormalizeIntensityConstantAndEmpty(t *testing.T) {
	s := sliceOf(1, 3, 0.5, 0.5, 0)
	require.NoError(t, NormalizeIntensity{Nonzero: true}.Apply(s))
	assert.Equal(t, []float32{0, 0, 0}, s.Pix)

	s = sliceOf(1, 2, 0, 0)
	require.NoError(t, NormalizeIntensity{Nonzero: true}.Apply(s))
	assert.Equal(t, []float32{0, 0}, s.Pix)
}

func TestNormalizeIntensityAllSamples(t *testing.T) {
	s := sliceOf(1, 4, 0, 0, 2, 2)
	require.NoError(t, NormalizeIntensity{}.Apply(s))
	assert.Equal(t, []float32{-1, -1, 1, 1}, s.Pix)
}

func TestPipelineReportsFailingTransform(t *testing.T) {
	p := NewPipeline(ResizeWithPadOrCrop{Height: 0, Width: 4})
	err := p.Run(sliceOf(1, 1, 1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resize_with_pad_or_crop")

	err = p.Run(&Slice{Channels: 1, Height: 2, Width: 2, Pix: []float32{1}})
	require.Error(t, err)
}

func TestToGray8Clamps(t *testing.T) {
	img := ToGray8([]float32{-0.5, 0, 0.5, 1, 2, float32(math.NaN())}, 2, 3)
	assert.Equal(t, []uint8{0, 0, 127, 255, 255, 0}, img.Pix)
}
