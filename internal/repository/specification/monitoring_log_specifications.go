package specification

import (
	"time"

	"gorm.io/gorm"
)

// BySessionID filters monitoring logs of one proctoring session
type BySessionID struct {
	SessionID string
}

func (s BySessionID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("session_id = ?", s.SessionID)
}

// ByExamID filters monitoring logs of one exam
type ByExamID struct {
	ExamID string
}

func (s ByExamID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("exam_id = ?", s.ExamID)
}

// ByActivityType filters by detection kind
type ByActivityType struct {
	ActivityType string
}

func (s ByActivityType) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("activity_type = ?", s.ActivityType)
}

// Since keeps logs at or after the given time
type Since struct {
	From time.Time
}

func (s Since) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("timestamp >= ?", s.From)
}
