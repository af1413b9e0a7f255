package inference

import (
	"fmt"
	"strings"

	"github.com/teslashibe/go-moodcam/pkg/emotions"
	"google.golang.org/genai"
)

// Instructions returns the prompt sent with every frame. It names the
// emotion vocabulary and asks for a bare JSON object.
func Instructions() string {
	names := strings.Join(emotions.Names(), ", ")
	return fmt.Sprintf(`Analyze the facial expression of the most prominent person in this image.

Respond with a single JSON object and nothing else. Fields:
- faceDetected (boolean, required): whether a human face is visible.
- faceRecognitionScore (number 0-1, required): how clearly the face can be made out; 0 when no face is visible.
- primaryEmotion (string): exactly one of %s.
- confidence (number 0-1): confidence in primaryEmotion.
- secondaryEmotions (array): other emotions present, each {"emotion": one of the same values, "intensity": number 0-1}. May be empty.
- description (string): one short sentence describing the expression.
- boundingBox (object, only when a face is detected): {"ymin", "xmin", "ymax", "xmax"} normalized to 0-1000.

If no face is visible set faceDetected to false, primaryEmotion to "Neutral", confidence to 0 and secondaryEmotions to [].`, names)
}

// Schema returns the response schema matching Instructions.
func Schema() *genai.Schema {
	unit := func(desc string) *genai.Schema {
		return &genai.Schema{
			Type:        genai.TypeNumber,
			Description: desc,
			Minimum:     genai.Ptr(0.0),
			Maximum:     genai.Ptr(1.0),
		}
	}
	coord := func() *genai.Schema {
		return &genai.Schema{
			Type:    genai.TypeNumber,
			Minimum: genai.Ptr(0.0),
			Maximum: genai.Ptr(emotions.BoxScale),
		}
	}
	emotion := &genai.Schema{
		Type: genai.TypeString,
		Enum: emotions.Names(),
	}

	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"faceDetected":         {Type: genai.TypeBoolean},
			"faceRecognitionScore": unit("How clearly the face can be made out"),
			"primaryEmotion":       emotion,
			"confidence":           unit("Confidence in primaryEmotion"),
			"secondaryEmotions": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"emotion":   emotion,
						"intensity": unit(""),
					},
					Required: []string{"emotion", "intensity"},
				},
			},
			"description": {Type: genai.TypeString},
			"boundingBox": {
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"ymin": coord(),
					"xmin": coord(),
					"ymax": coord(),
					"xmax": coord(),
				},
				Required:         []string{"ymin", "xmin", "ymax", "xmax"},
				PropertyOrdering: []string{"ymin", "xmin", "ymax", "xmax"},
			},
		},
		Required: []string{
			"faceDetected", "faceRecognitionScore", "primaryEmotion",
			"confidence", "secondaryEmotions", "description",
		},
		PropertyOrdering: []string{
			"faceDetected", "faceRecognitionScore", "primaryEmotion", "confidence",
			"secondaryEmotions", "description", "boundingBox",
		},
	}
}
