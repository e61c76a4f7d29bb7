package config

import (
	"testing"
	"time"

	"exam-proctor-be/pkg/proctor/detection"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, 0.7, cfg.Proctor.AlertThreshold)
	assert.Equal(t, 0.8, cfg.Proctor.EvidenceThreshold)
	assert.Equal(t, 10*time.Second, cfg.Proctor.AbsenceThreshold)
	assert.Equal(t, "once", cfg.Proctor.AbsenceRefire)
	assert.Equal(t, 100, cfg.Proctor.HistoryCapacity)
	assert.Equal(t, 10, cfg.Proctor.FrameCapacity)
	assert.Empty(t, cfg.Proctor.KindWeights)
	assert.Equal(t, "level", cfg.Detectors.AudioBackend)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PROCTOR_ALERT_THRESHOLD", "0.65")
	t.Setenv("PROCTOR_ABSENCE_THRESHOLD", "15")
	t.Setenv("PROCTOR_IDLE_TIMEOUT", "2m")
	t.Setenv("PROCTOR_ABSENCE_REFIRE", "every_poll")
	t.Setenv("PROCTOR_KIND_WEIGHTS", "phone_detected=20, tab_switch=3,broken,gaze=x")
	t.Setenv("PROCTOR_ENABLE_GAZE_TRACKING", "true")
	t.Setenv("SUPERVISOR_ALERT_EMAILS", "a@example.com, ,b@example.com")

	cfg := Load()

	assert.Equal(t, 0.65, cfg.Proctor.AlertThreshold)
	assert.Equal(t, 15*time.Second, cfg.Proctor.AbsenceThreshold)
	assert.Equal(t, 2*time.Minute, cfg.Proctor.IdleTimeout)
	assert.Equal(t, "every_poll", cfg.Proctor.AbsenceRefire)
	assert.True(t, cfg.Proctor.EnableGazeTracing)
	assert.Equal(t, map[detection.Kind]int{
		detection.KindPhoneDetected: 20,
		detection.KindTabSwitch:     3,
	}, cfg.Proctor.KindWeights)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, cfg.SMTP.SupervisorAddresses)
}

func TestScoringPolicy_MergesOverrides(t *testing.T) {
	p := ProctorConfig{
		AlertThreshold:    0.6,
		EvidenceThreshold: 0.9,
		UnknownKindWeight: 2,
		KindWeights:       map[detection.Kind]int{detection.KindPhoneDetected: 20},
	}.ScoringPolicy()

	assert.Equal(t, 20, p.Weight(detection.KindPhoneDetected))
	assert.Equal(t, 10, p.Weight(detection.KindMultipleFaces))
	assert.Equal(t, 2, p.Weight(detection.Kind("new_kind")))
	assert.Equal(t, 0.6, p.AlertThreshold)
	assert.NoError(t, p.Validate())
}
