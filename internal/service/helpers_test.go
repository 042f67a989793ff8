package service

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"medvolume/internal/domain"
	"medvolume/pkg/imaging"
)

const testSize = 16

// checkerPNG encodes an h x w image alternating between 100 and 200, which
// normalizes to exactly -1/+1 on every pixel.
func checkerPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Pix[y*img.Stride+x] = uint8(100 + (x+y)%2*100)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func newTestAssembler(minSurvival float64) *VolumeAssembler {
	proc := imaging.NewPreprocessor(imaging.Options{
		Height:       testSize,
		Width:        testSize,
		IntensityMax: 255,
	}, zap.NewNop())
	return NewVolumeAssembler(proc, minSurvival, zap.NewNop())
}

func source(name string, data []byte) SliceSource {
	return SliceSource{
		Filename: name,
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

func nonzeroCount(pix []float32) int {
	n := 0
	for _, v := range pix {
		if v != 0 {
			n++
		}
	}
	return n
}

type memoryRepository struct {
	mu      sync.Mutex
	objects map[string][]byte
	failPut bool
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{objects: make(map[string][]byte)}
}

func (m *memoryRepository) UploadFile(_ context.Context, key string, body io.Reader, size int64, _ string) error {
	if m.failPut {
		return domain.NewError("memory.put", domain.KindStorage, key, fmt.Errorf("bucket unavailable"))
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch for %s: %d != %d", key, len(data), size)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

func (m *memoryRepository) DownloadFile(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, domain.NewError("memory.get", domain.KindNotFound, key, nil)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memoryRepository) ListFiles(_ context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}
