package web

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/teslashibe/go-moodcam/pkg/archive"
	"github.com/teslashibe/go-moodcam/pkg/camera"
	"github.com/teslashibe/go-moodcam/pkg/capture"
	"github.com/teslashibe/go-moodcam/pkg/emotions"
	"github.com/teslashibe/go-moodcam/pkg/hub"
)

// handleSession returns the current session snapshot
func (s *Server) handleSession(c *fiber.Ctx) error {
	return c.JSON(s.sched.State().Snapshot())
}

// handleSummary aggregates the session history
func (s *Server) handleSummary(c *fiber.Ctx) error {
	snap := s.sched.State().Snapshot()
	return c.JSON(emotions.Summarize(snap.History))
}

// handleEmotions lists the emotion vocabulary
func (s *Server) handleEmotions(c *fiber.Ctx) error {
	return c.JSON(emotions.Names())
}

// handleCapture triggers a capture. With ?wait=true it blocks until the
// observation is recorded; otherwise it returns 202 right away.
func (s *Server) handleCapture(c *fiber.Ctx) error {
	if !c.QueryBool("wait") {
		if !s.sched.TriggerAsync() {
			return s.notStarted(c)
		}
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"started": true})
	}

	ok, err := s.sched.Trigger(c.UserContext())
	if errors.Is(err, capture.ErrClosed) {
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	}
	if !ok {
		return s.notStarted(c)
	}
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"started": true,
			"error":   capture.Message(err),
		})
	}
	return c.JSON(s.sched.State().Snapshot())
}

// notStarted explains why a capture did not run.
func (s *Server) notStarted(c *fiber.Ctx) error {
	reason := "no frame available"
	if s.sched.Capturing() {
		reason = "capture in progress"
	}
	return c.Status(fiber.StatusConflict).JSON(fiber.Map{
		"started": false,
		"reason":  reason,
	})
}

// AutoRequest is the request body for toggling auto mode
type AutoRequest struct {
	Enabled bool `json:"enabled"`
	Slow    bool `json:"slow"`
}

// handleAuto turns auto mode on or off
func (s *Server) handleAuto(c *fiber.Ctx) error {
	var req AutoRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body: "+err.Error())
	}
	if err := s.sched.SetAuto(req.Enabled, req.Slow); err != nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	}
	return c.JSON(s.sched.State().Snapshot())
}

// SourceInfo describes the active source
type SourceInfo struct {
	Active   bool    `json:"active"`
	Kind     string  `json:"kind,omitempty"`
	Playing  *bool   `json:"playing,omitempty"`
	Position float64 `json:"position,omitempty"` // seconds
	Duration float64 `json:"duration,omitempty"` // seconds
}

func (s *Server) sourceInfo() SourceInfo {
	src := s.sched.Sources().Active()
	if src == nil {
		return SourceInfo{}
	}
	info := SourceInfo{Active: true, Kind: src.Kind().String()}
	if p, ok := src.(camera.Player); ok {
		playing := p.Playing()
		info.Playing = &playing
		info.Position = p.Position().Seconds()
		info.Duration = p.Duration().Seconds()
	}
	return info
}

// handleSource returns the active source
func (s *Server) handleSource(c *fiber.Ctx) error {
	return c.JSON(s.sourceInfo())
}

// handleSourceLive switches to the live camera
func (s *Server) handleSourceLive(c *fiber.Ctx) error {
	if s.config.OpenLive == nil {
		return fiber.NewError(fiber.StatusNotImplemented, "live camera not configured")
	}
	src, err := s.config.OpenLive(c.UserContext())
	if err != nil {
		s.logger.Warn("open camera", "error", err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": capture.Message(err),
			"retry": true,
		})
	}
	return s.switchTo(c, src)
}

// handleSourceMedia switches to an uploaded image or video
func (s *Server) handleSourceMedia(c *fiber.Ctx) error {
	if s.config.OpenMedia == nil {
		return fiber.NewError(fiber.StatusNotImplemented, "media upload not configured")
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "missing file")
	}
	contentType := fh.Header.Get("Content-Type")
	if _, err := camera.MediaKind(contentType); err != nil {
		return fiber.NewError(fiber.StatusUnsupportedMediaType, err.Error())
	}

	path := filepath.Join(s.config.UploadDir, "moodcam-"+uuid.NewString()+strings.ToLower(filepath.Ext(fh.Filename)))
	if err := c.SaveFile(fh, path); err != nil {
		return fmt.Errorf("save upload: %w", err)
	}

	src, err := s.config.OpenMedia(path, contentType, true)
	if err != nil {
		s.logger.Warn("open media", "file", fh.Filename, "error", err)
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": capture.Message(err),
		})
	}
	s.logger.Info("media uploaded", "file", fh.Filename, "type", contentType, "bytes", fh.Size)
	return s.switchTo(c, src)
}

// switchTo activates src and responds with the new source and session.
func (s *Server) switchTo(c *fiber.Ctx, src camera.Source) error {
	if err := s.sched.SwitchSource(src); err != nil {
		if errors.Is(err, capture.ErrClosed) {
			return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
		}
		// The new source is active; only releasing the old one failed.
		s.logger.Warn("release previous source", "error", err)
	}
	return c.JSON(fiber.Map{
		"source":  s.sourceInfo(),
		"session": s.sched.State().Snapshot(),
	})
}

// handleSourceClear releases the active source
func (s *Server) handleSourceClear(c *fiber.Ctx) error {
	if err := s.sched.SwitchSource(nil); err != nil && errors.Is(err, capture.ErrClosed) {
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// PlaybackRequest controls a video source
type PlaybackRequest struct {
	Action   string  `json:"action"`   // play, pause, seek
	Position float64 `json:"position"` // seconds, for seek
}

// handlePlayback plays, pauses or seeks the active video
func (s *Server) handlePlayback(c *fiber.Ctx) error {
	var req PlaybackRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body: "+err.Error())
	}

	p, ok := s.sched.Sources().Active().(camera.Player)
	if !ok {
		return fiber.NewError(fiber.StatusConflict, "active source has no playback")
	}

	switch req.Action {
	case "play":
		p.Play()
	case "pause":
		p.Pause()
	case "seek":
		if req.Position < 0 {
			return fiber.NewError(fiber.StatusBadRequest, "position must not be negative")
		}
		p.Seek(time.Duration(req.Position * float64(time.Second)))
	default:
		return fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("unknown action %q", req.Action))
	}
	return c.JSON(s.sourceInfo())
}

// handleArchive returns archived observations
func (s *Server) handleArchive(c *fiber.Ctx) error {
	if s.config.Archive == nil {
		return fiber.NewError(fiber.StatusNotFound, "archive disabled")
	}
	entries, err := s.config.Archive.Recent(c.UserContext(), c.Query("session"), c.QueryInt("limit", 0))
	if err != nil {
		return err
	}
	if entries == nil {
		entries = []archive.Entry{}
	}
	return c.JSON(entries)
}

// handleArchiveSessions lists archived sessions
func (s *Server) handleArchiveSessions(c *fiber.Ctx) error {
	if s.config.Archive == nil {
		return fiber.NewError(fiber.StatusNotFound, "archive disabled")
	}
	sessions, err := s.config.Archive.Sessions(c.UserContext())
	if err != nil {
		return err
	}
	if sessions == nil {
		sessions = []archive.SessionInfo{}
	}
	return c.JSON(sessions)
}

// handleSessionWS streams session snapshots
func (s *Server) handleSessionWS(c *websocket.Conn) {
	client := hub.NewClient(s.sessionHub, c)
	if client == nil {
		return
	}
	client.Run()
}
