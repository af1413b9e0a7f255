package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-moodcam/pkg/camera"
	"github.com/teslashibe/go-moodcam/pkg/camera/opencv"
	"github.com/teslashibe/go-moodcam/pkg/capture"
	"github.com/teslashibe/go-moodcam/pkg/session"
)

var (
	analyzeType string
	analyzeAt   float64
	analyzeJSON bool
)

// videoTypes covers extensions the mime package may not know without a
// system mime.types file.
var videoTypes = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/mp4",
	".mov":  "video/quicktime",
	".webm": "video/webm",
	".avi":  "video/x-msvideo",
	".mkv":  "video/x-matroska",
	".bmp":  "image/bmp",
}

func newAnalyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze FILE",
		Short: "Classify one image, or one frame of a video",
		Args:  cobra.ExactArgs(1),
		RunE:  runAnalyze,
	}
	cmd.Flags().StringVar(&analyzeType, "type", "", "media type (default: from the file extension)")
	cmd.Flags().Float64Var(&analyzeAt, "at", 0, "video position in seconds")
	cmd.Flags().BoolVar(&analyzeJSON, "json", false, "print the observation as JSON")
	return cmd
}

// mediaType returns the declared type for path, from the extension.
func mediaType(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if t, ok := videoTypes[ext]; ok {
		return t, nil
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t, nil
	}
	return "", fmt.Errorf("cannot tell the media type of %s; pass --type", path)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	path := args[0]
	contentType := analyzeType
	if contentType == "" {
		var err error
		if contentType, err = mediaType(path); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	src, err := opencv.OpenMedia(path, contentType, false)
	if err != nil {
		return err
	}
	if p, ok := src.(camera.Player); ok {
		p.Pause()
		p.Seek(time.Duration(analyzeAt * float64(time.Second)))
	}

	classifier, err := openClassifier(ctx)
	if err != nil {
		src.Close()
		return err
	}
	defer classifier.Close()

	state := session.New(1)
	sched := capture.New(camera.NewManager(), classifier, state, schedulerConfig())
	defer sched.Close()
	if err := sched.SwitchSource(src); err != nil {
		return err
	}

	ok, err := sched.Trigger(ctx)
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), errorStyle.Render(capture.Message(err)))
		return err
	}
	if !ok {
		return errors.New("no frame available")
	}

	obs := state.Snapshot().Current
	if analyzeJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(obs)
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderObservation(*obs))
	return nil
}
