package handler

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"medvolume/internal/config"
	"medvolume/internal/domain"
	"medvolume/internal/service"
)

const (
	serviceName    = "Medical 3D Reconstruction"
	serviceVersion = "1.0.0"

	minSlices = 2

	// multipartOverhead allows for part headers and form fields per file.
	multipartOverhead = 64 << 10
)

// artifactFiles maps the public artifact name onto its stored file name.
var artifactFiles = map[string]string{
	"volume":   domain.VolumeFileName,
	"metadata": domain.MetadataFileName,
	"preview":  domain.PreviewFileName,
}

type Handler struct {
	service service.ReconstructionService
	cfg     *config.AppConfig
	log     *zap.Logger
}

func NewHandler(service service.ReconstructionService, cfg *config.AppConfig, log *zap.Logger) *Handler {
	return &Handler{
		service: service,
		cfg:     cfg,
		log:     log,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/", h.Root)
	router.GET("/health", h.HealthCheck)
	router.POST("/reconstruct-3d", h.Reconstruct)
	router.POST("/analyze-scan", h.AnalyzeScan)

	recon := router.Group("/reconstructions")
	{
		recon.GET("", h.ListReconstructions)
		recon.GET("/:id/:artifact", h.DownloadArtifact)
	}
}

func (h *Handler) Reconstruct(c *gin.Context) {
	h.limitBody(c, h.cfg.MaxSlices)

	form, err := c.MultipartForm()
	if err != nil {
		if tooLarge(err) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Request body too large"})
			return
		}
		h.log.Warn("Failed to parse multipart form", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid multipart form"})
		return
	}

	files := form.File["files"]
	switch {
	case len(files) == 0:
		c.JSON(http.StatusBadRequest, gin.H{"error": "No files uploaded"})
		return
	case len(files) < minSlices:
		c.JSON(http.StatusBadRequest, gin.H{"error": "At least 2 slices required for 3D reconstruction"})
		return
	case len(files) > h.cfg.MaxSlices:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Too many slices uploaded"})
		return
	}

	sources := make([]service.SliceSource, 0, len(files))
	for _, file := range files {
		if !h.allowedFormat(file.Filename) {
			h.log.Info("Skipping file with unsupported extension", zap.String("filename", file.Filename))
			continue
		}
		if file.Size > h.cfg.MaxUploadSize {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File too large: " + filepath.Base(file.Filename)})
			return
		}
		sources = append(sources, sliceSource(file))
	}
	if len(sources) < minSlices {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No valid image files found"})
		return
	}

	scan := domain.ScanInfo{
		ScanType: formValue(c, "scan_type", "mri"),
		Region:   formValue(c, "region", "brain"),
	}

	rec, err := h.service.Reconstruct(c.Request.Context(), service.ReconstructRequest{
		Scan:   scan,
		Slices: sources,
	})
	if err != nil {
		h.fail(c, "Reconstruction failed", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":            "success",
		"message":           "3D reconstruction completed successfully",
		"reconstruction_id": rec.ID,
		"metadata": gin.H{
			"scan_type":             rec.Scan.ScanType,
			"region":                rec.Scan.Region,
			"volume_shape":          rec.Metadata.VolumeShape,
			"num_slices":            rec.Metadata.NumSlices,
			"original_slice_count":  rec.Metadata.OriginalSliceCount,
			"processed_slice_count": rec.Metadata.ProcessedSliceCount,
			"processing_time":       rec.Duration.String(),
		},
		"preview_available": rec.PreviewAvailable,
		"download_ready":    rec.Archived,
	})
}

func (h *Handler) AnalyzeScan(c *gin.Context) {
	h.limitBody(c, 1)

	file, err := c.FormFile("file")
	if err != nil {
		if tooLarge(err) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Request body too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "No image file provided"})
		return
	}
	if !h.allowedFormat(file.Filename) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid file type"})
		return
	}
	if file.Size > h.cfg.MaxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File too large"})
		return
	}

	scanType := formValue(c, "scan_type", "mri")
	analysis, err := h.service.Analyze(c.Request.Context(), sliceSource(file), scanType)
	if err != nil {
		h.fail(c, "Analysis failed", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":           "success",
		"scan_type":        analysis.ScanType,
		"image_processed":  true,
		"image_shape":      analysis.ImageShape,
		"analysis_summary": analysis.Summary,
		"recommendations":  analysis.Recommendations,
	})
}

func (h *Handler) ListReconstructions(c *gin.Context) {
	if !h.service.ArchiveEnabled() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Artifact archive is disabled"})
		return
	}

	ids, err := h.service.ListReconstructions(c.Request.Context())
	if err != nil {
		h.fail(c, "Failed to list reconstructions", err)
		return
	}
	if ids == nil {
		ids = []string{}
	}

	c.JSON(http.StatusOK, gin.H{"reconstructions": ids})
}

func (h *Handler) DownloadArtifact(c *gin.Context) {
	if !h.service.ArchiveEnabled() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Artifact archive is disabled"})
		return
	}

	name, ok := artifactFiles[c.Param("artifact")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown artifact"})
		return
	}

	body, err := h.service.OpenArtifact(c.Request.Context(), c.Param("id"), name)
	if err != nil {
		h.fail(c, "Failed to fetch artifact", err)
		return
	}
	defer body.Close()

	c.DataFromReader(http.StatusOK, -1, domain.ContentType(name), body, map[string]string{
		"Content-Disposition": `attachment; filename="` + name + `"`,
	})
}

func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":          "healthy",
		"service":         serviceName,
		"version":         serviceVersion,
		"archive_enabled": h.service.ArchiveEnabled(),
		"slice_size":      []int{h.cfg.SliceHeight, h.cfg.SliceWidth},
		"capabilities": []string{
			"3D volume reconstruction",
			"Medical image analysis",
			"Preview generation",
		},
	})
}

func (h *Handler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "Medical 3D Reconstruction Service is running",
		"status":  "healthy",
	})
}

// fail maps err onto a status code and writes a human-readable message.
func (h *Handler) fail(c *gin.Context, prefix string, err error) {
	status := http.StatusInternalServerError
	switch domain.KindOf(err) {
	case domain.KindInvalidInput, domain.KindEmptyInput:
		status = http.StatusBadRequest
	case domain.KindNotFound:
		status = http.StatusNotFound
	}

	if status == http.StatusInternalServerError {
		h.log.Error(prefix, zap.Error(err))
	} else {
		h.log.Info(prefix, zap.Error(err))
	}

	c.JSON(status, gin.H{"error": prefix + ": " + domain.Message(err)})
}

// limitBody caps the request body at files uploads of the maximum size so
// oversized requests fail before the multipart form is spooled to disk.
func (h *Handler) limitBody(c *gin.Context, files int) {
	limit := int64(files) * (h.cfg.MaxUploadSize + multipartOverhead)
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
}

func tooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

func (h *Handler) allowedFormat(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return ext != "" && slices.Contains(h.cfg.AllowedFormats, ext)
}

func sliceSource(file *multipart.FileHeader) service.SliceSource {
	return service.SliceSource{
		Filename: filepath.Base(file.Filename),
		Open: func() (io.ReadCloser, error) {
			return file.Open()
		},
	}
}

// formValue reads key from the form body, then the query string.
func formValue(c *gin.Context, key, def string) string {
	v := strings.TrimSpace(c.PostForm(key))
	if v == "" {
		v = strings.TrimSpace(c.Query(key))
	}
	if v == "" {
		return def
	}
	return v
}
