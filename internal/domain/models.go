package domain

import (
	"path/filepath"
	"strings"
	"time"
)

// Metadata is the sidecar record written next to a persisted volume.
type Metadata struct {
	VolumeShape         [4]int `json:"volume_shape"`
	NumSlices           int    `json:"num_slices"`
	OriginalSliceCount  int    `json:"original_slice_count"`
	ProcessedSliceCount int    `json:"processed_slice_count"`
	VolumePath          string `json:"volume_path"`
	MetadataPath        string `json:"metadata_path"`
	OutputDirectory     string `json:"output_directory"`
}

// ScanInfo is the caller supplied description echoed back in responses.
type ScanInfo struct {
	ScanType string `json:"scan_type"`
	Region   string `json:"region"`
}

// Reconstruction is the result of one reconstruct request.
type Reconstruction struct {
	ID               string        `json:"id"`
	Scan             ScanInfo      `json:"scan"`
	Metadata         Metadata      `json:"metadata"`
	PreviewAvailable bool          `json:"preview_available"`
	Archived         bool          `json:"archived"`
	Duration         time.Duration `json:"duration"`
	CreatedAt        time.Time     `json:"created_at"`
}

// ScanAnalysis is the result of preprocessing a single scan.
type ScanAnalysis struct {
	ScanType        string   `json:"scan_type"`
	ImageShape      [3]int   `json:"image_shape"`
	Summary         string   `json:"analysis_summary"`
	Recommendations []string `json:"recommendations"`
}

// Artifact names inside a reconstruction directory or archive prefix.
const (
	VolumeFileName   = "volume_3d.npy"
	MetadataFileName = "metadata.json"
	PreviewFileName  = "3d_preview.png"
)

// ContentType returns the MIME type used when storing or serving an artifact.
func ContentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png":
		return "image/png"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}
