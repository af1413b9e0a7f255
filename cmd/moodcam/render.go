package main

import (
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/teslashibe/go-moodcam/pkg/emotions"
	"github.com/teslashibe/go-moodcam/pkg/session"
)

var (
	timeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A")).Bold(true)

	emotionColors = map[emotions.Emotion]lipgloss.Color{
		emotions.Happy:        "#FADB14",
		emotions.Sad:          "#4096FF",
		emotions.Angry:        "#FF4D4F",
		emotions.Surprised:    "#FA8C16",
		emotions.Fearful:      "#9254DE",
		emotions.Disgusted:    "#52C41A",
		emotions.Neutral:      "#B8B8B8",
		emotions.Contemptuous: "#EB2F96",
		emotions.Confused:     "#13C2C2",
	}
)

const barWidth = 10

// bar draws v in [0,1] as a fixed-width bar.
func bar(v float64, width int) string {
	filled := int(math.Round(v * float64(width)))
	if filled < 0 {
		filled = 0
	}
	if filled > width {
		filled = width
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func emotionStyle(e emotions.Emotion) lipgloss.Style {
	color, ok := emotionColors[e]
	if !ok {
		color = "#F0F0F0"
	}
	return lipgloss.NewStyle().Foreground(color).Bold(true)
}

func percent(v float64) string {
	return fmt.Sprintf("%3.0f%%", v*100)
}

// renderObservation formats one observation as a single line.
func renderObservation(o emotions.Observation) string {
	var sb strings.Builder
	sb.WriteString(timeStyle.Render(o.Timestamp.Local().Format("15:04:05")))
	sb.WriteString("  ")

	if o.NoFace() {
		sb.WriteString(mutedStyle.Render("no face detected"))
		if o.Description != "" {
			sb.WriteString("  " + mutedStyle.Render(o.Description))
		}
		return sb.String()
	}

	style := emotionStyle(o.PrimaryEmotion)
	sb.WriteString(style.Render(fmt.Sprintf("%-12s", o.PrimaryEmotion)))
	sb.WriteString(" ")
	sb.WriteString(style.Render(bar(o.Confidence, barWidth)))
	sb.WriteString(" " + percent(o.Confidence))

	for _, s := range o.SecondaryEmotions {
		sb.WriteString(mutedStyle.Render(fmt.Sprintf("  +%s %s", s.Emotion, strings.TrimSpace(percent(s.Intensity)))))
	}
	if o.Description != "" {
		sb.WriteString("  " + o.Description)
	}
	return sb.String()
}

// printer writes each new observation and error once.
type printer struct {
	mu      sync.Mutex
	out     io.Writer
	session string
	last    time.Time
	lastErr string
}

func newPrinter(out io.Writer) *printer {
	return &printer{out: out}
}

func (p *printer) show(snap session.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if snap.SessionID != p.session {
		p.session = snap.SessionID
		p.last = time.Time{}
		fmt.Fprintln(p.out, headerStyle.Render("session "+shortID(snap.SessionID)))
	}

	if snap.LastError != "" && snap.LastError != p.lastErr {
		fmt.Fprintln(p.out, errorStyle.Render("error: "+snap.LastError))
	}
	p.lastErr = snap.LastError

	if c := snap.Current; c != nil && c.Timestamp.After(p.last) {
		p.last = c.Timestamp
		fmt.Fprintln(p.out, renderObservation(*c))
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
