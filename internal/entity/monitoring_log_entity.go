package entity

import (
	"time"

	"github.com/google/uuid"
)

// MonitoringLog is one alert-eligible detection as persisted for later review.
type MonitoringLog struct {
	Id              uuid.UUID
	SessionId       string
	ExamId          string
	StudentId       string
	ActivityType    string
	ConfidenceScore float64
	Details         map[string]interface{}
	EvidenceId      string
	VideoFramePath  string
	Timestamp       time.Time
	CreatedAt       time.Time
}
