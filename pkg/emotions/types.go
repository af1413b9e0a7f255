// Package emotions defines the facial-emotion observation model.
//
// An Observation is one structured classification result for a single
// frame. The remote model fills every field except Timestamp, which the
// client stamps on receipt.
package emotions

import (
	"strings"
	"time"
)

// Emotion is one label of the fixed emotion vocabulary.
// Values outside the vocabulary are carried as-is; see Valid.
type Emotion string

// The fixed emotion vocabulary.
const (
	Happy        Emotion = "Happy"
	Sad          Emotion = "Sad"
	Angry        Emotion = "Angry"
	Surprised    Emotion = "Surprised"
	Fearful      Emotion = "Fearful"
	Disgusted    Emotion = "Disgusted"
	Neutral      Emotion = "Neutral"
	Contemptuous Emotion = "Contemptuous"
	Confused     Emotion = "Confused"
)

var all = []Emotion{
	Happy, Sad, Angry, Surprised, Fearful, Disgusted, Neutral, Contemptuous, Confused,
}

// All returns the emotion vocabulary in canonical order.
func All() []Emotion {
	out := make([]Emotion, len(all))
	copy(out, all)
	return out
}

// Names returns the vocabulary as plain strings.
func Names() []string {
	out := make([]string, len(all))
	for i, e := range all {
		out[i] = string(e)
	}
	return out
}

// Valid reports whether e belongs to the vocabulary.
func (e Emotion) Valid() bool {
	for _, v := range all {
		if v == e {
			return true
		}
	}
	return false
}

// String implements fmt.Stringer.
func (e Emotion) String() string {
	return string(e)
}

// Parse maps s onto the vocabulary ignoring case and surrounding space.
// Unknown labels are returned trimmed but otherwise unchanged.
func Parse(s string) Emotion {
	s = strings.TrimSpace(s)
	for _, v := range all {
		if strings.EqualFold(string(v), s) {
			return v
		}
	}
	return Emotion(s)
}

// SecondaryEmotion is a weaker emotion present alongside the primary one.
type SecondaryEmotion struct {
	Emotion   Emotion `json:"emotion"`
	Intensity float64 `json:"intensity"` // 0-1
}

// BoundingBox locates the face in a 0-1000 normalized frame.
type BoundingBox struct {
	YMin float64 `json:"ymin"`
	XMin float64 `json:"xmin"`
	YMax float64 `json:"ymax"`
	XMax float64 `json:"xmax"`
}

// BoxScale is the coordinate range of a BoundingBox.
const BoxScale = 1000.0

// Valid reports whether the box has positive extent.
func (b BoundingBox) Valid() bool {
	return b.YMin < b.YMax && b.XMin < b.XMax
}

// Pixels converts the box to pixel coordinates for a width x height frame.
func (b BoundingBox) Pixels(width, height int) (x0, y0, x1, y1 int) {
	w, h := float64(width), float64(height)
	return int(b.XMin * w / BoxScale), int(b.YMin * h / BoxScale),
		int(b.XMax * w / BoxScale), int(b.YMax * h / BoxScale)
}

// Observation is one classification result.
type Observation struct {
	PrimaryEmotion       Emotion            `json:"primaryEmotion"`
	Confidence           float64            `json:"confidence"` // 0-1
	SecondaryEmotions    []SecondaryEmotion `json:"secondaryEmotions"`
	Description          string             `json:"description"`
	Timestamp            time.Time          `json:"timestamp"`
	FaceDetected         bool               `json:"faceDetected"`
	BoundingBox          *BoundingBox       `json:"boundingBox,omitempty"`
	FaceRecognitionScore *float64           `json:"faceRecognitionScore,omitempty"` // 0-1
}

// NoFace reports whether o is a no-face sentinel. Emotion fields of a
// no-face observation carry no meaning.
func (o *Observation) NoFace() bool {
	return !o.FaceDetected
}
