// Package capability defines the detector backends the engine consumes.
// How a backend classifies pixels or waveforms is its own business; the
// engine only sees structured results for one frame or one clip.
package capability

import (
	"context"
	"errors"
)

// ErrCapabilityUnavailable wraps any backend failure, including timeouts.
var ErrCapabilityUnavailable = errors.New("capability unavailable")

// Frame is one encoded image (JPEG/PNG) as sent by the client.
type Frame struct {
	Data []byte
}

// Point is expressed in normalised frame coordinates, 0..1 on both axes.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type BoundingBox struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

type FaceBox struct {
	Box        BoundingBox `json:"box"`
	Confidence float64     `json:"confidence"`
	// Landmarks follows the 68-point layout when the backend provides it.
	Landmarks []Point `json:"landmarks,omitempty"`
}

type DetectedObject struct {
	Class      string      `json:"class"`
	Confidence float64     `json:"confidence"`
	Box        BoundingBox `json:"bbox"`
}

type AudioClip struct {
	// Level is the client-side loudness estimate on a 0..100 scale.
	Level      *float64  `json:"level,omitempty"`
	Samples    []float32 `json:"samples,omitempty"`
	SampleRate int       `json:"sample_rate,omitempty"`
}

func (c AudioClip) Empty() bool {
	return c.Level == nil && len(c.Samples) == 0
}

type AudioAnalysis struct {
	IsVoice           bool    `json:"is_voice"`
	IsAnomaly         bool    `json:"is_anomaly"`
	AnomalyConfidence float64 `json:"anomaly_confidence"`
}

type FaceDetector interface {
	DetectFaces(ctx context.Context, frame Frame) ([]FaceBox, error)
}

type ObjectDetector interface {
	DetectObjects(ctx context.Context, frame Frame) ([]DetectedObject, error)
}

type AudioAnalyzer interface {
	AnalyzeAudio(ctx context.Context, clip AudioClip) (AudioAnalysis, error)
}

// Set bundles the three capabilities selected for a deployment.
type Set struct {
	Faces   FaceDetector
	Objects ObjectDetector
	Audio   AudioAnalyzer
}
