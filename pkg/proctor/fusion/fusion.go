// Package fusion maps raw capability output onto detections.
package fusion

import (
	"fmt"
	"time"

	"exam-proctor-be/pkg/proctor/capability"
	"exam-proctor-be/pkg/proctor/detection"
)

const (
	ClassPhone = "cell phone"
	ClassBook  = "book"

	VoiceConfidence = 0.8
	GazeConfidence  = 0.7
)

// FromObjects reports at most one phone and one material detection per frame,
// each carrying the highest confidence seen for its class.
func FromObjects(objects []capability.DetectedObject, at time.Time) []detection.Detection {
	var (
		phones, books       int
		phoneConf, bookConf float64
	)
	for _, o := range objects {
		switch o.Class {
		case ClassPhone:
			phones++
			if o.Confidence > phoneConf {
				phoneConf = o.Confidence
			}
		case ClassBook:
			books++
			if o.Confidence > bookConf {
				bookConf = o.Confidence
			}
		}
	}

	var out []detection.Detection
	if phones > 0 {
		out = append(out, detection.New(detection.KindPhoneDetected, phoneConf, fmt.Sprintf("%d phone(s) detected", phones), at))
	}
	if books > 0 {
		out = append(out, detection.New(detection.KindUnauthorizedMaterial, bookConf, "Book or notes detected", at))
	}
	return out
}

func FromAudio(a capability.AudioAnalysis, at time.Time) []detection.Detection {
	var out []detection.Detection
	if a.IsVoice {
		out = append(out, detection.New(detection.KindVoiceDetected, VoiceConfidence, "Voice activity detected", at))
	}
	if a.IsAnomaly {
		out = append(out, detection.New(detection.KindAudioAnomaly, a.AnomalyConfidence, "Unusual audio pattern detected", at))
	}
	return out
}

// FromGaze inspects the eye landmarks of a single face. It needs the 68-point
// layout: indices 36-41 are the left eye, 42-47 the right.
func FromGaze(faces []capability.FaceBox, at time.Time) []detection.Detection {
	if len(faces) != 1 || len(faces[0].Landmarks) < 48 {
		return nil
	}
	lm := faces[0].Landmarks

	left := centroid(lm[36:42])
	right := centroid(lm[42:48])
	gx := (left.X + right.X) / 2
	gy := (left.Y + right.Y) / 2

	switch {
	case gx < 0.2 || gx > 0.8:
		return []detection.Detection{detection.New(detection.KindSuspiciousGaze, GazeConfidence, "Looking to the side", at)}
	case gy < 0.2 || gy > 0.8:
		return []detection.Detection{detection.New(detection.KindSuspiciousGaze, GazeConfidence, "Looking up or down", at)}
	}
	return nil
}

func centroid(points []capability.Point) capability.Point {
	var c capability.Point
	for _, p := range points {
		c.X += p.X
		c.Y += p.Y
	}
	n := float64(len(points))
	c.X /= n
	c.Y /= n
	return c
}
