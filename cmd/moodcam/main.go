// Command moodcam captures frames from a camera or uploaded media and
// classifies facial emotion with a hosted Gemini model.
//
// Usage:
//
//	moodcam serve              # web API + live camera on :8080
//	moodcam analyze face.jpg   # classify one image or video frame
//	moodcam watch              # print observations from the camera
//	moodcam watch --remote http://host:8080
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-moodcam/internal/config"
	"github.com/teslashibe/go-moodcam/internal/log"
	"github.com/teslashibe/go-moodcam/pkg/camera"
	"github.com/teslashibe/go-moodcam/pkg/camera/opencv"
	"github.com/teslashibe/go-moodcam/pkg/capture"
	"github.com/teslashibe/go-moodcam/pkg/inference"
	"github.com/teslashibe/go-moodcam/pkg/vision"
)

var (
	configPath  string
	logLevel    string
	modelFlag   string
	backendFlag string
	deviceFlag  int

	// cfg is loaded by the root command before any subcommand runs.
	cfg config.Config

	// openClassifier is replaced in tests.
	openClassifier = newClassifier
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "moodcam",
		Short:             "Facial emotion analysis for a camera or media file",
		SilenceUsage:      true,
		PersistentPreRunE: loadConfig,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", config.DefaultPath(), "config file (TOML)")
	flags.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.StringVar(&modelFlag, "model", "", "remote model name")
	flags.StringVar(&backendFlag, "backend", "", "classification backend: genai or rest")
	flags.IntVarP(&deviceFlag, "device", "d", 0, "camera device index")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newAnalyzeCmd())
	rootCmd.AddCommand(newWatchCmd())

	return rootCmd
}

// loadConfig applies defaults, .env, the config file, the environment
// and finally explicitly set flags.
func loadConfig(cmd *cobra.Command, _ []string) error {
	c, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyStringFlag(cmd, "log-level", &c.LogLevel, logLevel)
	applyStringFlag(cmd, "model", &c.Model, modelFlag)
	applyStringFlag(cmd, "backend", &c.Backend, backendFlag)
	applyIntFlag(cmd, "device", &c.CameraDevice, deviceFlag)

	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log.Init(c.LogLevel)
	cfg = c
	return nil
}

func applyStringFlag(cmd *cobra.Command, name string, dst *string, value string) {
	if cmd.Flags().Changed(name) {
		*dst = value
	}
}

func applyIntFlag(cmd *cobra.Command, name string, dst *int, value int) {
	if cmd.Flags().Changed(name) {
		*dst = value
	}
}

// newClassifier builds the configured classification backend.
func newClassifier(ctx context.Context) (inference.Classifier, error) {
	opts := []inference.Option{
		inference.WithAPIKey(cfg.APIKey),
		inference.WithModel(cfg.Model),
		inference.WithTimeout(cfg.Timeout),
		inference.WithLogger(log.L()),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, inference.WithBaseURL(cfg.BaseURL))
	}

	c, err := inference.New(ctx, cfg.Backend, opts...)
	if errors.Is(err, inference.ErrNoAPIKey) {
		return nil, fmt.Errorf("%w: set %s or api_key in %s", err, config.EnvAPIKey, configPath)
	}
	return c, err
}

// schedulerConfig maps the loaded config onto the capture scheduler.
func schedulerConfig() capture.Config {
	sc := capture.DefaultConfig()
	sc.Preprocess = vision.Options{MaxWidth: cfg.MaxWidth, Quality: cfg.JPEGQuality}
	sc.LiveInterval = cfg.LiveInterval
	sc.LiveSlowInterval = cfg.LiveSlowInterval
	sc.MediaInterval = cfg.MediaInterval
	sc.Logger = log.L()
	return sc
}

// liveOpener opens the configured camera with the named preset.
func liveOpener(preset string) func(ctx context.Context) (camera.Source, error) {
	return func(ctx context.Context) (camera.Source, error) {
		camCfg := camera.GetPreset(preset, cfg.CameraDevice)
		if camCfg == nil {
			return nil, fmt.Errorf("unknown camera preset %q (available: %v)", preset, camera.PresetNames())
		}
		cam, err := opencv.OpenCamera(*camCfg, log.Component("camera"))
		if err != nil {
			return nil, err
		}
		return cam, nil
	}
}
