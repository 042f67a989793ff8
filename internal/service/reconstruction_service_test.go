package service

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"medvolume/internal/config"
	"medvolume/internal/domain"
	"medvolume/internal/repository"
)

func newTestService(t *testing.T, repo repository.ArtifactRepository) (ReconstructionService, string) {
	t.Helper()
	workDir := t.TempDir()
	cfg := &config.Config{
		App:     config.AppConfig{WorkDir: workDir},
		Archive: config.ArchiveConfig{Enabled: repo != nil, Prefix: "reconstructions/"},
	}
	return NewReconstructionService(newTestAssembler(0), repo, cfg, zap.NewNop()), workDir
}

func threeSlices(t *testing.T) []SliceSource {
	return []SliceSource{
		source("first.png", checkerPNG(t, 8, 8)),
		source("second.PNG", checkerPNG(t, 10, 6)),
		source("third.png", checkerPNG(t, 20, 20)),
	}
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "request workspace must be removed")
}

func TestReconstructArchivesArtifacts(t *testing.T) {
	repo := newMemoryRepository()
	svc, workDir := newTestService(t, repo)
	ctx := context.Background()

	rec, err := svc.Reconstruct(ctx, ReconstructRequest{
		Scan:   domain.ScanInfo{ScanType: "ct", Region: "chest"},
		Slices: threeSlices(t),
	})
	require.NoError(t, err)

	assert.True(t, svc.ArchiveEnabled())
	assert.True(t, rec.Archived)
	assert.True(t, rec.PreviewAvailable)
	assert.Equal(t, "ct", rec.Scan.ScanType)
	assert.Equal(t, [4]int{1, 3, testSize, testSize}, rec.Metadata.VolumeShape)
	assert.Equal(t, 3, rec.Metadata.ProcessedSliceCount)
	_, err = uuid.Parse(rec.ID)
	require.NoError(t, err)
	assertEmptyDir(t, workDir)

	assert.Len(t, repo.objects, 3)
	for _, name := range []string{domain.VolumeFileName, domain.MetadataFileName, domain.PreviewFileName} {
		assert.Contains(t, repo.objects, "reconstructions/"+rec.ID+"/"+name)
	}

	rc, err := svc.OpenArtifact(ctx, rec.ID, domain.MetadataFileName)
	require.NoError(t, err)
	raw, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	var meta domain.Metadata
	require.NoError(t, json.Unmarshal(raw, &meta))
	assert.Equal(t, 3, meta.NumSlices)

	ids, err := svc.ListReconstructions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{rec.ID}, ids)
}

func TestReconstructWithoutArchive(t *testing.T) {
	svc, workDir := newTestService(t, nil)

	rec, err := svc.Reconstruct(context.Background(), ReconstructRequest{Slices: threeSlices(t)})
	require.NoError(t, err)

	assert.False(t, svc.ArchiveEnabled())
	assert.False(t, rec.Archived)
	assert.True(t, rec.PreviewAvailable)
	assertEmptyDir(t, workDir)

	_, err = svc.OpenArtifact(context.Background(), rec.ID, domain.PreviewFileName)
	assert.Error(t, err)
	_, err = svc.ListReconstructions(context.Background())
	assert.Error(t, err)
}

func TestReconstructArchiveFailureIsNotFatal(t *testing.T) {
	repo := newMemoryRepository()
	repo.failPut = true
	svc, _ := newTestService(t, repo)

	rec, err := svc.Reconstruct(context.Background(), ReconstructRequest{Slices: threeSlices(t)})
	require.NoError(t, err)
	assert.False(t, rec.Archived)
}

func TestReconstructAllSlicesCorrupt(t *testing.T) {
	svc, workDir := newTestService(t, nil)

	_, err := svc.Reconstruct(context.Background(), ReconstructRequest{Slices: []SliceSource{
		source("a.png", []byte("nope")),
		source("b.png", []byte("still nope")),
	}})
	require.ErrorIs(t, err, domain.ErrNoSlicesProcessed)
	assertEmptyDir(t, workDir)
}

func TestStageSlicesKeepsUploadOrder(t *testing.T) {
	svc, _ := newTestService(t, nil)
	rs := svc.(*reconstructionService)

	sources := make([]SliceSource, 12)
	for i := range sources {
		sources[i] = source("z.JPG", []byte{byte(i)})
	}
	paths, err := rs.stageSlices(t.TempDir(), sources)
	require.NoError(t, err)

	assert.IsNonDecreasing(t, paths)
	assert.Equal(t, "slice_000.jpg", filepath.Base(paths[0]))
	assert.Equal(t, "slice_011.jpg", filepath.Base(paths[11]))
}

func TestAnalyze(t *testing.T) {
	svc, workDir := newTestService(t, nil)

	res, err := svc.Analyze(context.Background(), source("scan.png", checkerPNG(t, 12, 30)), "ct")
	require.NoError(t, err)

	assert.Equal(t, [3]int{1, testSize, testSize}, res.ImageShape)
	assert.Equal(t, "Successfully processed CT scan", res.Summary)
	assert.Len(t, res.Recommendations, 2)
	assertEmptyDir(t, workDir)

	_, err = svc.Analyze(context.Background(), source("bad.png", []byte("x")), "mri")
	require.ErrorIs(t, err, domain.ErrSliceProcessing)
}

func TestOpenArtifactValidation(t *testing.T) {
	svc, _ := newTestService(t, newMemoryRepository())
	ctx := context.Background()

	_, err := svc.OpenArtifact(ctx, "../etc", domain.VolumeFileName)
	assert.True(t, domain.IsKind(err, domain.KindInvalidInput))

	id := uuid.New().String()
	_, err = svc.OpenArtifact(ctx, id, "secrets.txt")
	assert.True(t, domain.IsKind(err, domain.KindNotFound))

	_, err = svc.OpenArtifact(ctx, id, domain.VolumeFileName)
	assert.True(t, domain.IsKind(err, domain.KindNotFound))
}
