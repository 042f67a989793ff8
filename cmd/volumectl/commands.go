package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"medvolume/internal/config"
	"medvolume/internal/domain"
	"medvolume/internal/server"
	"medvolume/internal/volume"
	"medvolume/pkg/logger"
)

// app carries the state shared by subcommands once flags are resolved.
type app struct {
	v   *viper.Viper
	cfg *config.Config
	log *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}
	config.SetDefaults(a.v)
	a.v.AutomaticEnv()

	root := &cobra.Command{
		Use:           "volumectl",
		Short:         "Stack 2D medical image slices into a 3D volume",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromViper(a.v)
			if err != nil {
				return err
			}
			log, err := logger.New(cfg.Log.Level)
			if err != nil {
				return err
			}
			a.cfg, a.log = cfg, log
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}

	flags := root.PersistentFlags()
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.Int("height", 256, "slice height after pad/crop")
	flags.Int("width", 256, "slice width after pad/crop")
	flags.Float64("intensity-min", 0, "source intensity mapped to 0")
	flags.Float64("intensity-max", 255, "source intensity mapped to 1")
	must(a.v.BindPFlag("LOG_LEVEL", flags.Lookup("log-level")))
	must(a.v.BindPFlag("APP_SLICE_HEIGHT", flags.Lookup("height")))
	must(a.v.BindPFlag("APP_SLICE_WIDTH", flags.Lookup("width")))
	must(a.v.BindPFlag("APP_INTENSITY_MIN", flags.Lookup("intensity-min")))
	must(a.v.BindPFlag("APP_INTENSITY_MAX", flags.Lookup("intensity-max")))

	root.AddCommand(newAssembleCmd(a), newAnalyzeCmd(a))
	return root
}

func must(err error) {
	if err != nil {
		panic(fmt.Sprintf("volumectl: %v", err))
	}
}

type assembleOutput struct {
	*domain.Metadata
	PreviewPath string `json:"preview_path,omitempty"`
}

func newAssembleCmd(a *app) *cobra.Command {
	var (
		outDir  string
		preview bool
	)

	cmd := &cobra.Command{
		Use:   "assemble [flags] <slice files or directories>...",
		Short: "Preprocess slices, stack them and write volume_3d.npy and metadata.json",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := expandInputs(args, a.cfg.App.AllowedFormats)
			if err != nil {
				return err
			}

			asm := server.NewAssembler(a.cfg, a.log)
			meta, err := asm.Assemble(paths, outDir)
			if err != nil {
				return err
			}

			result := assembleOutput{Metadata: meta}

			if preview {
				vol, err := volume.Load(meta.VolumePath)
				if err != nil {
					return err
				}
				if result.PreviewPath, err = asm.PreviewFromVolume(vol, outDir); err != nil {
					return err
				}
			}

			return writeJSON(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().StringVarP(&outDir, "out", "o", "", "output directory")
	cmd.Flags().BoolVar(&preview, "preview", true, "also write 3d_preview.png")
	cmd.Flags().Float64("min-survival", 0, "fail when fewer than this fraction of slices process")
	must(a.v.BindPFlag("APP_MIN_SURVIVAL_RATIO", cmd.Flags().Lookup("min-survival")))
	_ = cmd.MarkFlagRequired("out")

	return cmd
}

func newAnalyzeCmd(a *app) *cobra.Command {
	var scanType string

	cmd := &cobra.Command{
		Use:   "analyze [flags] <slice file>",
		Short: "Run the preprocessing chain on one slice and report its shape",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			asm := server.NewAssembler(a.cfg, a.log)
			s, err := asm.AnalyzeSlice(args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]any{
				"scan_type":   scanType,
				"image_shape": s.Shape(),
			})
		},
	}

	cmd.Flags().StringVar(&scanType, "scan-type", "mri", "scan type label")
	return cmd
}

// expandInputs replaces directories with the image files they contain.
func expandInputs(args, allowed []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}

		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			ext := strings.ToLower(filepath.Ext(entry.Name()))
			if entry.IsDir() || !slices.Contains(allowed, ext) {
				continue
			}
			paths = append(paths, filepath.Join(arg, entry.Name()))
		}
	}
	return paths, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
