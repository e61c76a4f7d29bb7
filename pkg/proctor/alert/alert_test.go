package alert

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"exam-proctor-be/pkg/proctor/detection"
	"exam-proctor-be/pkg/proctor/monitor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

type recordingDispatcher struct {
	mu          sync.Mutex
	students    []StudentWarning
	supervisors []SupervisorAlert

	studentErr error
	superPanic bool
	block      chan struct{}
}

func (r *recordingDispatcher) NotifyStudent(_ context.Context, w StudentWarning) error {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.students = append(r.students, w)
	return r.studentErr
}

func (r *recordingDispatcher) NotifySupervisors(_ context.Context, a SupervisorAlert) error {
	if r.superPanic {
		panic("hub gone")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.supervisors = append(r.supervisors, a)
	return nil
}

var meta = monitor.Meta{SessionID: "s-1", StudentID: "u-1", StudentName: "Ada", ExamID: "e-1"}

func TestBuild(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	d := detection.New(detection.KindPhoneDetected, 0.92, "1 phone(s) detected", at)

	w, a := Build(meta, d, "ev-1")

	assert.Equal(t, "u-1", w.StudentID)
	assert.Equal(t, "Warning: 1 phone(s) detected", w.Message)
	assert.Equal(t, detection.KindPhoneDetected, w.Kind)

	assert.Equal(t, "e-1", a.ExamID)
	assert.Equal(t, "Ada", a.StudentName)
	assert.Equal(t, 0.92, a.Confidence)
	assert.Equal(t, at, a.Timestamp)
	assert.Equal(t, "ev-1", a.EvidenceID)
}

func TestFanout_BothDelivered(t *testing.T) {
	d := &recordingDispatcher{}
	w, a := Build(meta, detection.New(detection.KindMultipleFaces, 0.9, "2 faces detected", time.Now()), "")

	require.NoError(t, Fanout(context.Background(), d, w, a))
	assert.Len(t, d.students, 1)
	assert.Len(t, d.supervisors, 1)
}

func TestFanout_StudentFailureDoesNotSuppressSupervisors(t *testing.T) {
	d := &recordingDispatcher{studentErr: errors.New("socket closed")}
	w, a := Build(meta, detection.New(detection.KindMultipleFaces, 0.9, "", time.Now()), "")

	err := Fanout(context.Background(), d, w, a)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAlertDelivery)
	assert.Contains(t, err.Error(), "socket closed")
	assert.Len(t, d.supervisors, 1)
}

func TestFanout_SupervisorPanicIsContained(t *testing.T) {
	d := &recordingDispatcher{superPanic: true, studentErr: errors.New("offline")}
	w, a := Build(meta, detection.New(detection.KindStudentAbsent, 0.95, "", time.Now()), "")

	err := Fanout(context.Background(), d, w, a)
	assert.Len(t, multierr.Errors(err), 2)
	assert.Len(t, d.students, 1)
}

func TestFanout_SlowStudentDoesNotBlockSupervisors(t *testing.T) {
	d := &recordingDispatcher{block: make(chan struct{})}
	w, a := Build(meta, detection.New(detection.KindStudentAbsent, 0.95, "", time.Now()), "")

	done := make(chan error, 1)
	go func() { done <- Fanout(context.Background(), d, w, a) }()

	assert.Eventually(t, func() bool {
		d.mu.Lock()
		defer d.mu.Unlock()
		return len(d.supervisors) == 1
	}, time.Second, 5*time.Millisecond)

	close(d.block)
	assert.NoError(t, <-done)
}
