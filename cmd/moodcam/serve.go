package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-moodcam/internal/log"
	"github.com/teslashibe/go-moodcam/pkg/archive"
	"github.com/teslashibe/go-moodcam/pkg/camera"
	"github.com/teslashibe/go-moodcam/pkg/camera/opencv"
	"github.com/teslashibe/go-moodcam/pkg/capture"
	"github.com/teslashibe/go-moodcam/pkg/emotions"
	"github.com/teslashibe/go-moodcam/pkg/session"
	"github.com/teslashibe/go-moodcam/pkg/web"
)

var (
	servePort     string
	serveStatic   string
	serveArchive  string
	servePreset   string
	serveNoCamera bool
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the web API and session feed",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	cmd.Flags().StringVarP(&servePort, "port", "p", "", "HTTP port (default 8080)")
	cmd.Flags().StringVar(&serveStatic, "static", "", "directory of static files to serve at /")
	cmd.Flags().StringVar(&serveArchive, "archive", "", "SQLite archive path (empty disables)")
	cmd.Flags().StringVar(&servePreset, "camera-preset", camera.PresetDefault, "camera preset: default, low, 720p, 1080p")
	cmd.Flags().BoolVar(&serveNoCamera, "no-camera", false, "start without opening the camera")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	applyStringFlag(cmd, "port", &cfg.Port, servePort)
	applyStringFlag(cmd, "archive", &cfg.ArchivePath, serveArchive)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	classifier, err := openClassifier(ctx)
	if err != nil {
		return err
	}
	defer classifier.Close()

	sc := schedulerConfig()
	webCfg := web.Config{
		Port:      cfg.Port,
		StaticDir: serveStatic,
		OpenLive:  liveOpener(servePreset),
		OpenMedia: opencv.OpenMedia,
		Logger:    log.L(),
	}
	if log.L().Enabled(ctx, slog.LevelDebug) {
		webCfg.AccessLog = os.Stderr
	}

	if cfg.ArchivePath != "" {
		store, err := archive.Open(cfg.ArchivePath)
		if err != nil {
			return err
		}
		defer store.Close()

		sc.OnObservation = func(sessionID string, obs emotions.Observation) {
			if _, err := store.Record(context.Background(), sessionID, obs); err != nil {
				log.Warn("archive observation", log.Err(err))
			}
		}
		webCfg.Archive = store
		log.Info("archiving observations", "path", cfg.ArchivePath)
	}

	state := session.New(cfg.HistoryCap)
	sched := capture.New(camera.NewManager(), classifier, state, sc)
	srv := web.NewServer(sched, webCfg)

	if !serveNoCamera {
		src, err := webCfg.OpenLive(ctx)
		if err != nil {
			log.Warn("camera unavailable, upload media or retry with POST /api/source/live", "error", err)
		} else if err := sched.SwitchSource(src); err != nil {
			log.Warn("activate camera", "error", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		return sched.Close()
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	log.Info("shutdown complete")
	return err
}
