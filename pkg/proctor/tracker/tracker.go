// Package tracker keeps the continuity conditions of one session that a
// single detection cannot express, such as how long the student has been
// out of frame.
package tracker

import (
	"fmt"
	"time"

	"exam-proctor-be/pkg/proctor/detection"
)

// RefirePolicy decides what happens after an absence has crossed the threshold.
type RefirePolicy string

const (
	// RefireEveryPoll emits student_absent on every observation past the threshold.
	RefireEveryPoll RefirePolicy = "every_poll"
	// RefireOnce emits student_absent once per absence episode.
	RefireOnce RefirePolicy = "once"
)

const (
	DefaultAbsenceThreshold        = 10 * time.Second
	DefaultAbsenceConfidence       = 0.95
	DefaultMultipleFacesConfidence = 0.9
)

type Config struct {
	AbsenceThreshold        time.Duration
	AbsenceConfidence       float64
	MultipleFacesConfidence float64
	Refire                  RefirePolicy
}

func DefaultConfig() Config {
	return Config{
		AbsenceThreshold:        DefaultAbsenceThreshold,
		AbsenceConfidence:       DefaultAbsenceConfidence,
		MultipleFacesConfidence: DefaultMultipleFacesConfidence,
		Refire:                  RefireOnce,
	}
}

// ParseRefirePolicy falls back to RefireOnce for unknown values.
func ParseRefirePolicy(s string) RefirePolicy {
	if RefirePolicy(s) == RefireEveryPoll {
		return RefireEveryPoll
	}
	return RefireOnce
}

// Tracker is not safe for concurrent use; the owning monitor serialises calls.
type Tracker struct {
	cfg Config

	absent       bool
	absenceStart time.Time
	reported     bool

	seenPresent   bool
	lastPresentAt time.Time
}

func New(cfg Config) *Tracker {
	if cfg.Refire == "" {
		cfg.Refire = RefireOnce
	}
	return &Tracker{cfg: cfg}
}

// Observe records one face-count observation taken at now and returns the
// continuity detections it produces.
func (t *Tracker) Observe(faceCount int, now time.Time) []detection.Detection {
	var out []detection.Detection

	if faceCount > 1 {
		out = append(out, detection.New(
			detection.KindMultipleFaces,
			t.cfg.MultipleFacesConfidence,
			fmt.Sprintf("%d faces detected", faceCount),
			now,
		))
	}

	if faceCount > 0 {
		t.absent = false
		t.reported = false
		t.absenceStart = time.Time{}
		t.seenPresent = true
		t.lastPresentAt = now
		return out
	}

	if !t.absent {
		t.absent = true
		t.absenceStart = now
		if !t.seenPresent || t.lastPresentAt.After(now) {
			return out
		}
		// The student was last seen at lastPresentAt; anchor the episode there.
		// A long gap between frames can qualify on the first empty frame.
		t.absenceStart = t.lastPresentAt
	}

	elapsed := now.Sub(t.absenceStart)
	if elapsed < t.cfg.AbsenceThreshold {
		return out
	}
	if t.reported && t.cfg.Refire == RefireOnce {
		return out
	}

	t.reported = true
	out = append(out, detection.New(
		detection.KindStudentAbsent,
		t.cfg.AbsenceConfidence,
		fmt.Sprintf("Absent for %d seconds", int(elapsed/time.Second)),
		now,
	))
	return out
}

// AbsentSince returns the start of the current absence episode, if any.
func (t *Tracker) AbsentSince() (time.Time, bool) {
	return t.absenceStart, t.absent
}
