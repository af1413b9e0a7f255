package inference

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/teslashibe/go-moodcam/pkg/emotions"
)

// fence is the code-fence marker models like to wrap JSON in.
const fence = "```"

// StripFences removes a leading ```lang line and a trailing ``` line
// from s, along with surrounding whitespace. Unwrapped text is returned
// trimmed but otherwise unchanged.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, fence) {
		return s
	}

	rest := s[len(fence):]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 && !strings.ContainsAny(rest[:nl], "{[") {
		rest = rest[nl+1:]
	} else {
		rest = strings.TrimLeftFunc(rest, unicode.IsLetter)
	}

	rest = strings.TrimSpace(rest)
	rest = strings.TrimSuffix(rest, fence)
	return strings.TrimSpace(rest)
}

// wireObservation is the remote JSON shape. Pointers mark fields whose
// absence must be detected.
type wireObservation struct {
	FaceDetected         *bool                 `json:"faceDetected"`
	FaceRecognitionScore *float64              `json:"faceRecognitionScore"`
	PrimaryEmotion       *string               `json:"primaryEmotion"`
	Confidence           *float64              `json:"confidence"`
	SecondaryEmotions    []wireSecondary       `json:"secondaryEmotions"`
	Description          string                `json:"description"`
	BoundingBox          *emotions.BoundingBox `json:"boundingBox"`
}

type wireSecondary struct {
	Emotion   string  `json:"emotion"`
	Intensity float64 `json:"intensity"`
}

// ParseObservation decodes a model reply into a normalized observation
// stamped with now. Fenced replies are unwrapped first. A reply that is
// not JSON, or lacks faceDetected (or, with a face, primaryEmotion or
// confidence), is a MalformedResponseError.
func ParseObservation(text string, now time.Time) (*emotions.Observation, error) {
	body := StripFences(text)
	if body == "" {
		return nil, &MalformedResponseError{Raw: text, Err: errors.New("empty response")}
	}

	var w wireObservation
	if err := json.Unmarshal([]byte(body), &w); err != nil {
		// Tolerate stray prose around the object.
		start, end := strings.IndexByte(body, '{'), strings.LastIndexByte(body, '}')
		if start < 0 || end <= start || json.Unmarshal([]byte(body[start:end+1]), &w) != nil {
			return nil, &MalformedResponseError{Raw: truncate(text, 500), Err: err}
		}
	}

	if w.FaceDetected == nil {
		return nil, &MalformedResponseError{Raw: truncate(text, 500), Err: errors.New("missing field faceDetected")}
	}
	if *w.FaceDetected {
		if w.PrimaryEmotion == nil {
			return nil, &MalformedResponseError{Raw: truncate(text, 500), Err: errors.New("missing field primaryEmotion")}
		}
		if w.Confidence == nil {
			return nil, &MalformedResponseError{Raw: truncate(text, 500), Err: errors.New("missing field confidence")}
		}
	}

	obs := &emotions.Observation{
		PrimaryEmotion:       emotions.Neutral,
		Description:          strings.TrimSpace(w.Description),
		Timestamp:            now,
		FaceDetected:         *w.FaceDetected,
		BoundingBox:          w.BoundingBox,
		FaceRecognitionScore: w.FaceRecognitionScore,
	}
	if w.PrimaryEmotion != nil && strings.TrimSpace(*w.PrimaryEmotion) != "" {
		obs.PrimaryEmotion = emotions.Parse(*w.PrimaryEmotion)
	}
	if w.Confidence != nil {
		obs.Confidence = *w.Confidence
	}
	obs.SecondaryEmotions = make([]emotions.SecondaryEmotion, 0, len(w.SecondaryEmotions))
	for _, s := range w.SecondaryEmotions {
		obs.SecondaryEmotions = append(obs.SecondaryEmotions, emotions.SecondaryEmotion{
			Emotion:   emotions.Parse(s.Emotion),
			Intensity: s.Intensity,
		})
	}

	obs.Normalize()
	return obs, nil
}

// malformed tags a parse error with the provider name.
func malformed(provider string, err error) error {
	var me *MalformedResponseError
	if errors.As(err, &me) {
		me.Provider = provider
		return me
	}
	return &MalformedResponseError{Provider: provider, Err: fmt.Errorf("%w", err)}
}
