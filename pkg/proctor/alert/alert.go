// Package alert defines the outward notification contract: every
// alert-eligible detection warns the student and informs the exam's
// supervisors, and the two paths never depend on each other.
package alert

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"exam-proctor-be/pkg/proctor/detection"
	"exam-proctor-be/pkg/proctor/monitor"

	"go.uber.org/multierr"
)

var ErrAlertDelivery = errors.New("alert delivery failed")

// StudentWarning is pushed to the student who owns the session.
type StudentWarning struct {
	SessionID string         `json:"session_id"`
	StudentID string         `json:"student_id"`
	Kind      detection.Kind `json:"type"`
	Message   string         `json:"message"`
	Timestamp time.Time      `json:"timestamp"`
}

// SupervisorAlert is pushed to everyone supervising the exam.
type SupervisorAlert struct {
	SessionID   string         `json:"session_id"`
	ExamID      string         `json:"exam_id"`
	StudentID   string         `json:"student_id"`
	StudentName string         `json:"student_name"`
	Kind        detection.Kind `json:"activity_type"`
	Details     string         `json:"details"`
	Confidence  float64        `json:"confidence"`
	Timestamp   time.Time      `json:"timestamp"`
	EvidenceID  string         `json:"evidence_id,omitempty"`
}

// Dispatcher delivers at most once per call. Retries belong to the transport.
type Dispatcher interface {
	NotifyStudent(ctx context.Context, w StudentWarning) error
	NotifySupervisors(ctx context.Context, a SupervisorAlert) error
}

// Build derives both notifications from one detection.
func Build(meta monitor.Meta, d detection.Detection, evidenceID string) (StudentWarning, SupervisorAlert) {
	w := StudentWarning{
		SessionID: meta.SessionID,
		StudentID: meta.StudentID,
		Kind:      d.Kind,
		Message:   fmt.Sprintf("Warning: %s", d.Details),
		Timestamp: d.Timestamp,
	}
	a := SupervisorAlert{
		SessionID:   meta.SessionID,
		ExamID:      meta.ExamID,
		StudentID:   meta.StudentID,
		StudentName: meta.StudentName,
		Kind:        d.Kind,
		Details:     d.Details,
		Confidence:  d.Confidence,
		Timestamp:   d.Timestamp,
		EvidenceID:  evidenceID,
	}
	return w, a
}

// Fanout attempts both deliveries concurrently. Either may fail without
// affecting the other; failures come back combined, wrapping ErrAlertDelivery.
func Fanout(ctx context.Context, d Dispatcher, w StudentWarning, a SupervisorAlert) error {
	var (
		wg                   sync.WaitGroup
		studentErr, superErr error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		studentErr = safeCall(func() error { return d.NotifyStudent(ctx, w) })
	}()
	go func() {
		defer wg.Done()
		superErr = safeCall(func() error { return d.NotifySupervisors(ctx, a) })
	}()
	wg.Wait()

	var err error
	if studentErr != nil {
		err = multierr.Append(err, fmt.Errorf("%w: student %s: %v", ErrAlertDelivery, w.StudentID, studentErr))
	}
	if superErr != nil {
		err = multierr.Append(err, fmt.Errorf("%w: supervisors of exam %s: %v", ErrAlertDelivery, a.ExamID, superErr))
	}
	return err
}

func safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
