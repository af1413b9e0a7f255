package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/teslashibe/go-moodcam/internal/log"
	"github.com/teslashibe/go-moodcam/pkg/camera"
	"github.com/teslashibe/go-moodcam/pkg/capture"
	"github.com/teslashibe/go-moodcam/pkg/session"
)

var (
	watchRemote string
	watchSlow   bool
	watchPreset string
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print observations from the camera in auto mode",
		Args:  cobra.NoArgs,
		RunE:  runWatch,
	}
	cmd.Flags().StringVar(&watchRemote, "remote", "", "follow a running server's session feed instead, e.g. http://localhost:8080")
	cmd.Flags().BoolVar(&watchSlow, "slow", false, "use the slower live capture period")
	cmd.Flags().StringVar(&watchPreset, "camera-preset", camera.PresetLow, "camera preset: default, low, 720p, 1080p")
	return cmd
}

func runWatch(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if watchRemote != "" {
		return followRemote(ctx, watchRemote, cmd.OutOrStdout())
	}

	classifier, err := openClassifier(ctx)
	if err != nil {
		return err
	}
	defer classifier.Close()

	src, err := liveOpener(watchPreset)(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", capture.DeviceMessage, err)
	}

	state := session.New(cfg.HistoryCap)
	sched := capture.New(camera.NewManager(), classifier, state, schedulerConfig())
	defer sched.Close()

	p := newPrinter(cmd.OutOrStdout())
	failed := make(chan string, 1)
	state.OnChange(func(snap session.Snapshot) {
		p.show(snap)
		if !snap.AutoMode && snap.LastError != "" {
			select {
			case failed <- snap.LastError:
			default:
			}
		}
	})

	if err := sched.SwitchSource(src); err != nil {
		return err
	}
	if err := sched.SetAuto(true, watchSlow); err != nil {
		return err
	}
	log.Info("watching camera", "device", cfg.CameraDevice, "slow", watchSlow)

	select {
	case <-ctx.Done():
		return nil
	case msg := <-failed:
		return errors.New(msg)
	}
}

// sessionURL turns a server address into its /ws/session URL.
func sessionURL(raw string) (string, error) {
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid remote %q: %w", raw, err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("invalid remote %q: unsupported scheme %q", raw, u.Scheme)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/ws/session"
	}
	return u.String(), nil
}

// followRemote prints session snapshots pushed by a moodcam server until
// ctx is done or the server closes the feed.
func followRemote(ctx context.Context, remote string, out io.Writer) error {
	wsURL, err := sessionURL(remote)
	if err != nil {
		return err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("connect %s: %w", wsURL, err)
	}
	defer conn.Close()
	log.Info("following remote session", "url", wsURL)

	go func() {
		<-ctx.Done()
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
	}()

	p := newPrinter(out)
	for {
		var env struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := conn.ReadJSON(&env); err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read session feed: %w", err)
		}
		if env.Type != "session" {
			continue
		}

		var snap session.Snapshot
		if err := json.Unmarshal(env.Data, &snap); err != nil {
			log.Warn("bad session message", "error", err)
			continue
		}
		p.show(snap)
	}
}
