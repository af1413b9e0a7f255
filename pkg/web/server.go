// Package web serves the moodcam HTTP API and the live session feed.
package web

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/teslashibe/go-moodcam/pkg/archive"
	"github.com/teslashibe/go-moodcam/pkg/camera"
	"github.com/teslashibe/go-moodcam/pkg/capture"
	"github.com/teslashibe/go-moodcam/pkg/hub"
	"github.com/teslashibe/go-moodcam/pkg/session"
)

// DefaultUploadLimit bounds media uploads.
const DefaultUploadLimit = 64 << 20

// LiveOpener opens the live camera.
type LiveOpener func(ctx context.Context) (camera.Source, error)

// MediaOpener opens an uploaded file as an image or video source. Owned
// files are removed when the source closes.
type MediaOpener func(path, contentType string, owned bool) (camera.Source, error)

// Archive is the read side of the observation archive.
type Archive interface {
	Recent(ctx context.Context, sessionID string, limit int) ([]archive.Entry, error)
	Sessions(ctx context.Context) ([]archive.SessionInfo, error)
}

// Config configures the server.
type Config struct {
	Port        string
	StaticDir   string    // Served at / when set
	UploadDir   string    // Defaults to os.TempDir()
	UploadLimit int       // Request body limit in bytes
	AccessLog   io.Writer // Request log; nil disables it

	OpenLive  LiveOpener
	OpenMedia MediaOpener
	Archive   Archive // Optional

	Logger *slog.Logger
}

// Server is the web API server.
type Server struct {
	app    *fiber.App
	config Config
	sched  *capture.Scheduler
	logger *slog.Logger

	// Hub for websocket broadcast of session snapshots
	sessionHub *hub.Hub
}

// NewServer creates a server driving sched. Session changes are pushed
// to /ws/session subscribers.
func NewServer(sched *capture.Scheduler, cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.UploadDir == "" {
		cfg.UploadDir = os.TempDir()
	}
	if cfg.UploadLimit <= 0 {
		cfg.UploadLimit = DefaultUploadLimit
	}

	s := &Server{
		config:     cfg,
		sched:      sched,
		logger:     cfg.Logger.With("component", "web.server"),
		sessionHub: hub.New("session", cfg.Logger),
	}

	// The hub replays its latest message on connect, so seed it with the
	// current state and keep it current.
	s.broadcastSession(sched.State().Snapshot())
	sched.State().OnChange(s.broadcastSession)

	app := fiber.New(fiber.Config{
		AppName:               "moodcam",
		DisableStartupMessage: true,
		BodyLimit:             cfg.UploadLimit,
		ErrorHandler:          s.handleError,
	})

	app.Use(recover.New())
	app.Use(cors.New())
	if cfg.AccessLog != nil {
		app.Use(fiberlogger.New(fiberlogger.Config{
			Format: "${time} ${status} ${method} ${path} ${latency}\n",
			Output: cfg.AccessLog,
		}))
	}

	if cfg.StaticDir != "" {
		app.Static("/", cfg.StaticDir)
	}

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})

	// API routes
	api := app.Group("/api")
	api.Get("/session", s.handleSession)
	api.Get("/summary", s.handleSummary)
	api.Get("/emotions", s.handleEmotions)
	api.Post("/capture", s.handleCapture)
	api.Post("/auto", s.handleAuto)
	api.Get("/source", s.handleSource)
	api.Post("/source/live", s.handleSourceLive)
	api.Post("/source/media", s.handleSourceMedia)
	api.Post("/source/playback", s.handlePlayback)
	api.Delete("/source", s.handleSourceClear)
	api.Get("/archive", s.handleArchive)
	api.Get("/archive/sessions", s.handleArchiveSessions)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/session", websocket.New(s.handleSessionWS))

	s.app = app
	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Hub returns the session hub.
func (s *Server) Hub() *hub.Hub {
	return s.sessionHub
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	go s.sessionHub.Run(ctx)

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "url", "http://localhost:"+s.config.Port)
		errc <- s.app.Listen(":" + s.config.Port)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return s.app.ShutdownWithTimeout(5 * time.Second)
	}
}

func (s *Server) broadcastSession(snap session.Snapshot) {
	if err := s.sessionHub.BroadcastJSON("session", snap); err != nil {
		s.logger.Warn("broadcast session", "error", err)
	}
}

// handleError renders errors as {"error": message}.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	if code >= 500 {
		s.logger.Error("request failed", "method", c.Method(), "path", c.Path(), "error", err)
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
