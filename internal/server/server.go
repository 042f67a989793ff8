package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"medvolume/internal/config"
	"medvolume/internal/handler"
	"medvolume/internal/repository"
	"medvolume/internal/service"
	"medvolume/pkg/imaging"
)

type Server struct {
	httpServer *http.Server
	cfg        *config.Config
	log        *zap.Logger
}

func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Server, error) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	var repo repository.ArtifactRepository
	if cfg.Archive.Enabled {
		s3Repo, err := repository.NewS3Repository(ctx, &cfg.S3, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 repository: %w", err)
		}
		repo = s3Repo
	}

	reconService := service.NewReconstructionService(NewAssembler(cfg, log), repo, cfg, log)

	h := handler.NewHandler(reconService, &cfg.App, log)
	h.RegisterRoutes(router)

	server := &Server{
		httpServer: &http.Server{
			Addr:           cfg.Server.Host + ":" + cfg.Server.Port,
			Handler:        router,
			ReadTimeout:    cfg.Server.ReadTimeout,
			WriteTimeout:   cfg.Server.WriteTimeout,
			MaxHeaderBytes: 1 << 20, // 1 MB
		},
		cfg: cfg,
		log: log,
	}

	log.Info("Server created successfully",
		zap.String("host", cfg.Server.Host),
		zap.String("port", cfg.Server.Port),
		zap.Bool("archive_enabled", cfg.Archive.Enabled))

	return server, nil
}

// NewAssembler builds the volume assembler from the slice settings in cfg.
func NewAssembler(cfg *config.Config, log *zap.Logger) *service.VolumeAssembler {
	proc := imaging.NewPreprocessor(imaging.Options{
		Height:       cfg.App.SliceHeight,
		Width:        cfg.App.SliceWidth,
		IntensityMin: float32(cfg.App.IntensityMin),
		IntensityMax: float32(cfg.App.IntensityMax),
	}, log)
	return service.NewVolumeAssembler(proc, cfg.App.MinSurvivalRatio, log)
}

func (s *Server) Run() error {
	s.log.Info("Server is running",
		zap.String("host", s.cfg.Server.Host),
		zap.String("port", s.cfg.Server.Port),
		zap.String("address", s.httpServer.Addr))

	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down server")
	return s.httpServer.Shutdown(ctx)
}
