package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"medvolume/internal/config"
	"medvolume/internal/domain"
	"medvolume/internal/repository"
	"medvolume/internal/volume"
)

// SliceSource is one uploaded file waiting to be staged.
type SliceSource struct {
	Filename string
	Open     func() (io.ReadCloser, error)
}

type ReconstructRequest struct {
	Scan   domain.ScanInfo
	Slices []SliceSource
}

type ReconstructionService interface {
	Reconstruct(ctx context.Context, req ReconstructRequest) (*domain.Reconstruction, error)
	Analyze(ctx context.Context, src SliceSource, scanType string) (*domain.ScanAnalysis, error)
	ListReconstructions(ctx context.Context) ([]string, error)
	OpenArtifact(ctx context.Context, id, name string) (io.ReadCloser, error)
	ArchiveEnabled() bool
}

type reconstructionService struct {
	assembler *VolumeAssembler
	repo      repository.ArtifactRepository
	cfg       *config.Config
	log       *zap.Logger
	now       func() time.Time
}

// NewReconstructionService wires the assembler to request-scoped
// workspaces. repo may be nil, in which case nothing is archived.
func NewReconstructionService(assembler *VolumeAssembler, repo repository.ArtifactRepository, cfg *config.Config, log *zap.Logger) ReconstructionService {
	return &reconstructionService{
		assembler: assembler,
		repo:      repo,
		cfg:       cfg,
		log:       log,
		now:       time.Now,
	}
}

func (s *reconstructionService) ArchiveEnabled() bool {
	return s.repo != nil
}

func (s *reconstructionService) Reconstruct(ctx context.Context, req ReconstructRequest) (*domain.Reconstruction, error) {
	started := s.now()
	id := uuid.New().String()

	workspace, err := os.MkdirTemp(s.cfg.App.WorkDir, "reconstruct-*")
	if err != nil {
		return nil, domain.NewError("reconstruct.workspace", domain.KindStorage, s.cfg.App.WorkDir, err)
	}
	defer s.cleanup(workspace)

	paths, err := s.stageSlices(filepath.Join(workspace, "slices"), req.Slices)
	if err != nil {
		return nil, err
	}

	outputDir := filepath.Join(workspace, "output")
	meta, err := s.assembler.Assemble(paths, outputDir)
	if err != nil {
		return nil, err
	}

	vol, err := volume.Load(meta.VolumePath)
	if err != nil {
		return nil, domain.NewError("reconstruct.load", domain.KindStorage, meta.VolumePath, err)
	}
	previewPath, err := s.assembler.PreviewFromVolume(vol, outputDir)
	if err != nil {
		return nil, err
	}

	rec := &domain.Reconstruction{
		ID:               id,
		Scan:             req.Scan,
		Metadata:         *meta,
		PreviewAvailable: true,
		CreatedAt:        started,
	}

	if s.repo != nil {
		artifacts := map[string]string{
			domain.VolumeFileName:   meta.VolumePath,
			domain.MetadataFileName: meta.MetadataPath,
			domain.PreviewFileName:  previewPath,
		}
		if err := s.archive(ctx, id, artifacts); err != nil {
			s.log.Error("Failed to archive reconstruction",
				zap.String("id", id),
				zap.Error(err))
		} else {
			rec.Archived = true
		}
	}

	rec.Duration = s.now().Sub(started)

	s.log.Info("Reconstruction completed",
		zap.String("id", id),
		zap.String("scan_type", req.Scan.ScanType),
		zap.String("region", req.Scan.Region),
		zap.Int("slices", meta.NumSlices),
		zap.Bool("archived", rec.Archived),
		zap.Duration("duration", rec.Duration))

	return rec, nil
}

// stageSlices copies uploads into dir as slice_000.ext, slice_001.ext, ...
// so lexical order of the staged paths matches upload order.
func (s *reconstructionService) stageSlices(dir string, sources []SliceSource) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, domain.NewError("reconstruct.stage", domain.KindStorage, dir, err)
	}

	width := max(3, len(strconv.Itoa(len(sources)-1)))
	paths := make([]string, 0, len(sources))
	for i, src := range sources {
		ext := strings.ToLower(filepath.Ext(src.Filename))
		dest := filepath.Join(dir, fmt.Sprintf("slice_%0*d%s", width, i, ext))
		if err := copySource(src, dest); err != nil {
			return nil, domain.NewError("reconstruct.stage", domain.KindStorage, src.Filename, err)
		}
		paths = append(paths, dest)
	}
	return paths, nil
}

func copySource(src SliceSource, dest string) error {
	in, err := src.Open()
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func (s *reconstructionService) archive(ctx context.Context, id string, artifacts map[string]string) error {
	names := make([]string, 0, len(artifacts))
	for name := range artifacts {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		if err := s.uploadArtifact(ctx, s.artifactKey(id, name), artifacts[name]); err != nil {
			return err
		}
	}
	return nil
}

func (s *reconstructionService) uploadArtifact(ctx context.Context, key, localPath string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}
	return s.repo.UploadFile(ctx, key, file, info.Size(), domain.ContentType(localPath))
}

func (s *reconstructionService) artifactKey(id, name string) string {
	return path.Join(s.cfg.Archive.Prefix, id, name)
}

func (s *reconstructionService) cleanup(workspace string) {
	if err := os.RemoveAll(workspace); err != nil {
		s.log.Warn("Failed to remove workspace",
			zap.String("path", workspace),
			zap.Error(err))
	}
}

func (s *reconstructionService) Analyze(ctx context.Context, src SliceSource, scanType string) (*domain.ScanAnalysis, error) {
	workspace, err := os.MkdirTemp(s.cfg.App.WorkDir, "analyze-*")
	if err != nil {
		return nil, domain.NewError("analyze.workspace", domain.KindStorage, s.cfg.App.WorkDir, err)
	}
	defer s.cleanup(workspace)

	paths, err := s.stageSlices(workspace, []SliceSource{src})
	if err != nil {
		return nil, err
	}

	slice, err := s.assembler.AnalyzeSlice(paths[0])
	if err != nil {
		return nil, err
	}

	s.log.Info("Scan analyzed",
		zap.String("filename", src.Filename),
		zap.String("scan_type", scanType))

	return &domain.ScanAnalysis{
		ScanType:   scanType,
		ImageShape: slice.Shape(),
		Summary:    fmt.Sprintf("Successfully processed %s scan", strings.ToUpper(scanType)),
		Recommendations: []string{
			"Image quality appears suitable for 3D reconstruction",
			"Consider uploading multiple slices for better 3D visualization",
		},
	}, nil
}

func (s *reconstructionService) ListReconstructions(ctx context.Context) ([]string, error) {
	if s.repo == nil {
		return nil, domain.NewError("reconstructions.list", domain.KindStorage, "", fmt.Errorf("archive disabled"))
	}

	prefix := strings.TrimSuffix(s.cfg.Archive.Prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	keys, err := s.repo.ListFiles(ctx, prefix)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var ids []string
	for _, key := range keys {
		id, _, ok := strings.Cut(strings.TrimPrefix(key, prefix), "/")
		if !ok || id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

func (s *reconstructionService) OpenArtifact(ctx context.Context, id, name string) (io.ReadCloser, error) {
	const op = "reconstructions.open"

	if s.repo == nil {
		return nil, domain.NewError(op, domain.KindStorage, "", fmt.Errorf("archive disabled"))
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.NewError(op, domain.KindInvalidInput, id, err)
	}
	switch name {
	case domain.VolumeFileName, domain.MetadataFileName, domain.PreviewFileName:
	default:
		return nil, domain.NewError(op, domain.KindNotFound, name, fmt.Errorf("unknown artifact"))
	}

	return s.repo.DownloadFile(ctx, s.artifactKey(id, name))
}
