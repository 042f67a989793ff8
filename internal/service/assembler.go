package service

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"go.uber.org/zap"

	"medvolume/internal/domain"
	"medvolume/internal/volume"
	"medvolume/pkg/imaging"
)

// SliceProcessor turns one slice file into a preprocessed [1, H, W] slice.
type SliceProcessor interface {
	Process(path string) (*imaging.Slice, error)
}

// VolumeAssembler stacks preprocessed slices into a [1, D, H, W] volume.
// It holds no per-call state and is safe to share between requests.
type VolumeAssembler struct {
	proc             SliceProcessor
	minSurvivalRatio float64
	log              *zap.Logger
}

func NewVolumeAssembler(proc SliceProcessor, minSurvivalRatio float64, log *zap.Logger) *VolumeAssembler {
	return &VolumeAssembler{
		proc:             proc,
		minSurvivalRatio: minSurvivalRatio,
		log:              log,
	}
}

type sliceResult struct {
	index int
	path  string
	slice *imaging.Slice
	err   error
}

// Assemble preprocesses slicePaths in lexical order, stacks the slices that
// succeed and writes the volume and its metadata under outputDir. Slices that
// fail are logged and left out.
func (a *VolumeAssembler) Assemble(slicePaths []string, outputDir string) (*domain.Metadata, error) {
	const op = "assembler.assemble"

	if len(slicePaths) == 0 {
		return nil, domain.NewError(op, domain.KindEmptyInput, "", nil)
	}

	sorted := slices.Clone(slicePaths)
	slices.Sort(sorted)

	results := make([]sliceResult, 0, len(sorted))
	for i, path := range sorted {
		s, err := a.proc.Process(path)
		if err != nil {
			err = domain.NewError(op, domain.KindSliceProcessing, path, err)
		} else {
			a.log.Debug("Processed slice",
				zap.Int("index", i+1),
				zap.Int("total", len(sorted)))
		}
		results = append(results, sliceResult{index: i, path: path, slice: s, err: err})
	}

	survivors, failures := partition(results)
	for _, f := range failures {
		a.log.Warn("Skipping slice",
			zap.Int("index", f.index),
			zap.String("path", f.path),
			zap.Error(f.err))
	}

	if len(survivors) == 0 {
		return nil, domain.NewError(op, domain.KindNoSlicesProcessed, outputDir,
			fmt.Errorf("all %d slices failed preprocessing", len(sorted)))
	}
	if a.minSurvivalRatio > 0 {
		ratio := float64(len(survivors)) / float64(len(sorted))
		if ratio < a.minSurvivalRatio {
			return nil, domain.NewError(op, domain.KindInsufficientSlices, outputDir,
				fmt.Errorf("%d of %d slices processed, need ratio %.2f", len(survivors), len(sorted), a.minSurvivalRatio))
		}
	}

	vol, err := volume.Stack(survivors)
	if err != nil {
		return nil, domain.NewError(op, domain.KindNoSlicesProcessed, outputDir, err)
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, domain.NewError(op, domain.KindStorage, outputDir, err)
	}

	meta := &domain.Metadata{
		VolumeShape:         vol.Shape,
		NumSlices:           vol.Depth(),
		OriginalSliceCount:  len(sorted),
		ProcessedSliceCount: len(survivors),
		VolumePath:          filepath.Join(outputDir, domain.VolumeFileName),
		MetadataPath:        filepath.Join(outputDir, domain.MetadataFileName),
		OutputDirectory:     outputDir,
	}

	if err := volume.Save(meta.VolumePath, vol); err != nil {
		return nil, domain.NewError(op, domain.KindStorage, meta.VolumePath, err)
	}
	if err := writeMetadata(meta); err != nil {
		return nil, domain.NewError(op, domain.KindStorage, meta.MetadataPath, err)
	}

	a.log.Info("Volume assembled",
		zap.Ints("shape", vol.Shape[:]),
		zap.Int("requested", meta.OriginalSliceCount),
		zap.Int("processed", meta.ProcessedSliceCount),
		zap.String("volume_path", meta.VolumePath))

	return meta, nil
}

// partition splits results into processed slices and failures, keeping order.
func partition(results []sliceResult) ([]*imaging.Slice, []sliceResult) {
	var survivors []*imaging.Slice
	var failures []sliceResult
	for _, r := range results {
		if r.err != nil {
			failures = append(failures, r)
			continue
		}
		survivors = append(survivors, r.slice)
	}
	return survivors, failures
}

func writeMetadata(meta *domain.Metadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(meta.MetadataPath, data, 0644)
}

// PreviewFromVolume writes the middle depth plane of vol as an 8-bit PNG
// under outputDir and returns its path.
func (a *VolumeAssembler) PreviewFromVolume(vol *volume.Volume, outputDir string) (string, error) {
	const op = "assembler.preview"

	if vol == nil || vol.Depth() == 0 || vol.Channels() == 0 {
		return "", domain.NewError(op, domain.KindPreviewGeneration, outputDir, fmt.Errorf("empty volume"))
	}
	if len(vol.Data) != vol.Channels()*vol.Depth()*vol.Height()*vol.Width() {
		return "", domain.NewError(op, domain.KindPreviewGeneration, outputDir,
			fmt.Errorf("volume data does not match shape %v", vol.Shape))
	}

	idx := vol.MiddleIndex()
	img := imaging.ToGray8(vol.Plane(0, idx), vol.Height(), vol.Width())

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", domain.NewError(op, domain.KindPreviewGeneration, outputDir, err)
	}
	path := filepath.Join(outputDir, domain.PreviewFileName)
	if err := imaging.WritePNG(path, img); err != nil {
		return "", domain.NewError(op, domain.KindPreviewGeneration, path, err)
	}

	a.log.Info("Preview generated",
		zap.Int("depth_index", idx),
		zap.String("path", path))

	return path, nil
}

// AnalyzeSlice runs the preprocessing chain on a single file.
func (a *VolumeAssembler) AnalyzeSlice(path string) (*imaging.Slice, error) {
	s, err := a.proc.Process(path)
	if err != nil {
		return nil, domain.NewError("assembler.analyze", domain.KindSliceProcessing, path, err)
	}
	return s, nil
}
