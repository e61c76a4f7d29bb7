package detection

import (
	"math"
	"time"
)

// Kind identifies what a detection observed.
type Kind string

const (
	KindMultipleFaces        Kind = "multiple_faces"
	KindStudentAbsent        Kind = "student_absent"
	KindPhoneDetected        Kind = "phone_detected"
	KindUnauthorizedMaterial Kind = "unauthorized_material"
	KindVoiceDetected        Kind = "voice_detected"
	KindAudioAnomaly         Kind = "audio_anomaly"
	KindSuspiciousGaze       Kind = "suspicious_gaze"
	KindTabSwitch            Kind = "tab_switch"
)

// Detection is one classified observation. Treat it as a value: it is never
// mutated after New returns it.
type Detection struct {
	Kind       Kind      `json:"kind"`
	Confidence float64   `json:"confidence"`
	Details    string    `json:"details"`
	Timestamp  time.Time `json:"timestamp"`
}

// New builds a Detection with its confidence clamped to [0,1].
func New(kind Kind, confidence float64, details string, at time.Time) Detection {
	return Detection{
		Kind:       kind,
		Confidence: ClampConfidence(confidence),
		Details:    details,
		Timestamp:  at,
	}
}

// ClampConfidence maps any float into [0,1]. NaN becomes 0.
func ClampConfidence(c float64) float64 {
	if math.IsNaN(c) || c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// ParseKind accepts the wire name of a kind. Unknown names are kept as-is so
// custom capabilities can introduce their own kinds (scored with the default weight).
func ParseKind(s string) Kind {
	return Kind(s)
}
