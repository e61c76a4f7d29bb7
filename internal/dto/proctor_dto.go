package dto

import (
	"time"

	"exam-proctor-be/pkg/proctor/detection"
	"exam-proctor-be/pkg/proctor/monitor"
	"exam-proctor-be/pkg/proctor/scorer"
)

// Caller is the authenticated user behind a request. Supervisors may act on
// any session; everyone else only on sessions started for their own id.
type Caller struct {
	UserId     string
	Supervisor bool
}

// Owns reports whether the caller may act on a session of studentId.
func (c Caller) Owns(studentId string) bool {
	return c.Supervisor || (c.UserId != "" && c.UserId == studentId)
}

type StartSessionRequest struct {
	SessionId   string `json:"session_id" validate:"required,max=100"`
	StudentId   string `json:"student_id" validate:"required,max=100"`
	StudentName string `json:"student_name" validate:"max=200"`
	ExamId      string `json:"exam_id" validate:"required,max=100"`
}

type StartSessionResponse struct {
	SessionId string    `json:"session_id"`
	Created   bool      `json:"created"`
	StartedAt time.Time `json:"started_at"`
}

// SubmitFrameRequest carries one webcam frame, base64 encoded (a data: URL prefix is accepted).
type SubmitFrameRequest struct {
	Frame      string   `json:"frame" validate:"required"`
	AudioLevel *float64 `json:"audio_level" validate:"omitempty,gte=0,lte=100"`
}

type SubmitAudioRequest struct {
	AudioLevel *float64  `json:"audio_level" validate:"omitempty,gte=0,lte=100"`
	Samples    []float32 `json:"samples" validate:"omitempty,max=96000"`
	SampleRate int       `json:"sample_rate" validate:"omitempty,gt=0"`
}

// Observation is one submission from a student client after decoding.
type Observation struct {
	SessionId    string
	Frame        []byte
	AudioLevel   *float64
	AudioSamples []float32
	SampleRate   int
}

type ProcessingOutcome struct {
	Accepted               bool `json:"accepted"`
	DetectionCount         int  `json:"detection_count"`
	EligibleDetectionCount int  `json:"eligible_detection_count"`
	Score                  int  `json:"suspicion_score"`
}

type SessionSummaryResponse struct {
	SessionId   string    `json:"session_id"`
	StudentId   string    `json:"student_id"`
	StudentName string    `json:"student_name"`
	ExamId      string    `json:"exam_id"`
	StartedAt   time.Time `json:"started_at"`
	scorer.SuspicionRecord
	TopActivities []detection.Kind `json:"top_activities"`
}

type ActiveSessionsResponse struct {
	Count    int      `json:"count"`
	Sessions []string `json:"sessions"`
}

// AlertJobMessage is queued for every alert-eligible detection. FrameData is
// a snapshot of the latest frame, set only when evidence should be kept.
type AlertJobMessage struct {
	Meta      monitor.Meta        `json:"meta"`
	Detection detection.Detection `json:"detection"`
	Evidence  bool                `json:"evidence"`
	FrameData []byte              `json:"frame_data,omitempty"`
	FrameAt   time.Time           `json:"frame_at,omitempty"`
}
