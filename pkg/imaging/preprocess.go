package imaging

import (
	"fmt"

	"go.uber.org/zap"
)

// Options configures the fixed slice preprocessing chain.
type Options struct {
	Height       int
	Width        int
	IntensityMin float32
	IntensityMax float32
}

// DefaultOptions matches the 256x256, 8-bit source assumption.
func DefaultOptions() Options {
	return Options{
		Height:       256,
		Width:        256,
		IntensityMin: 0,
		IntensityMax: 255,
	}
}

// Pipeline applies transforms in order and stops at the first failure.
type Pipeline struct {
	transforms []Transform
}

func NewPipeline(transforms ...Transform) *Pipeline {
	return &Pipeline{transforms: transforms}
}

func (p *Pipeline) Run(s *Slice) error {
	if err := s.validate(); err != nil {
		return err
	}
	for _, t := range p.transforms {
		if err := t.Apply(s); err != nil {
			return fmt.Errorf("%s: %w", t.Name(), err)
		}
	}
	return nil
}

// Preprocessor loads slice files and runs them through the preprocessing
// pipeline: clip-and-rescale to [0,1], pad or crop to the fixed spatial size,
// normalize nonzero intensities per channel.
type Preprocessor struct {
	opts     Options
	pipeline *Pipeline
	log      *zap.Logger
}

func NewPreprocessor(opts Options, log *zap.Logger) *Preprocessor {
	return &Preprocessor{
		opts: opts,
		pipeline: NewPipeline(
			ScaleIntensityRange{
				AMin: opts.IntensityMin,
				AMax: opts.IntensityMax,
				BMin: 0,
				BMax: 1,
				Clip: true,
			},
			ResizeWithPadOrCrop{Height: opts.Height, Width: opts.Width},
			NormalizeIntensity{Nonzero: true},
		),
		log: log,
	}
}

func (p *Preprocessor) Options() Options {
	return p.opts
}

// Process loads path and returns the preprocessed [1, H, W] slice.
func (p *Preprocessor) Process(path string) (*Slice, error) {
	s, err := Load(path)
	if err != nil {
		return nil, err
	}
	srcH, srcW := s.Height, s.Width

	if err := p.pipeline.Run(s); err != nil {
		return nil, fmt.Errorf("preprocess %s: %w", path, err)
	}

	p.log.Debug("Slice preprocessed",
		zap.String("path", path),
		zap.Int("source_height", srcH),
		zap.Int("source_width", srcW),
		zap.Int("height", s.Height),
		zap.Int("width", s.Width))

	return s, nil
}
