package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type MonitoringLog struct {
	Id              uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	SessionId       string         `gorm:"type:varchar(100);not null;index:idx_monitoring_logs_session_ts,priority:1"`
	ExamId          string         `gorm:"type:varchar(100);index"`
	StudentId       string         `gorm:"type:varchar(100);index"`
	ActivityType    string         `gorm:"type:varchar(50);not null;index"`
	ConfidenceScore float64        `gorm:"not null"`
	Details         datatypes.JSON `gorm:"type:jsonb"`
	EvidenceId      *string        `gorm:"type:varchar(200)"`
	VideoFramePath  *string        `gorm:"type:text"`
	Timestamp       time.Time      `gorm:"not null;index:idx_monitoring_logs_session_ts,priority:2"`
	CreatedAt       time.Time      `gorm:"default:now();not null"`
}

func (MonitoringLog) TableName() string {
	return "monitoring_logs"
}
