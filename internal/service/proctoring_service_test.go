package service

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"exam-proctor-be/internal/dto"
	"exam-proctor-be/internal/pkg/logger"
	"exam-proctor-be/internal/repository/memory"
	"exam-proctor-be/internal/repository/specification"
	"exam-proctor-be/pkg/proctor/alert"
	"exam-proctor-be/pkg/proctor/capability"
	"exam-proctor-be/pkg/proctor/detection"
	"exam-proctor-be/pkg/proctor/evidence"
	"exam-proctor-be/pkg/proctor/monitor"
	"exam-proctor-be/pkg/proctor/registry"
	"exam-proctor-be/pkg/proctor/scorer"
	"exam-proctor-be/pkg/proctor/tracker"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTopic = "alert-jobs-test"

// student is the caller that owns sess-1 in every harness.
var student = dto.Caller{UserId: "stu-1"}

// --- fakes -----------------------------------------------------------------

type fakeFaces struct {
	mu      sync.Mutex
	counts  []int // consumed one per call; the last value repeats
	err     error
	release chan struct{}
}

func (f *fakeFaces) DetectFaces(ctx context.Context, _ capability.Frame) ([]capability.FaceBox, error) {
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	n := 1
	if len(f.counts) > 0 {
		n = f.counts[0]
		if len(f.counts) > 1 {
			f.counts = f.counts[1:]
		}
	}
	f.mu.Unlock()
	return make([]capability.FaceBox, n), nil
}

type fakeObjects struct {
	objects []capability.DetectedObject
	err     error
}

func (f fakeObjects) DetectObjects(context.Context, capability.Frame) ([]capability.DetectedObject, error) {
	return f.objects, f.err
}

type recordingDispatcher struct {
	mu          sync.Mutex
	warnings    []alert.StudentWarning
	supervisors []alert.SupervisorAlert
}

func (d *recordingDispatcher) NotifyStudent(_ context.Context, w alert.StudentWarning) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.warnings = append(d.warnings, w)
	return nil
}

func (d *recordingDispatcher) NotifySupervisors(_ context.Context, a alert.SupervisorAlert) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.supervisors = append(d.supervisors, a)
	return nil
}

func (d *recordingDispatcher) snapshot() ([]alert.StudentWarning, []alert.SupervisorAlert) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]alert.StudentWarning(nil), d.warnings...), append([]alert.SupervisorAlert(nil), d.supervisors...)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

// --- harness ---------------------------------------------------------------

type harness struct {
	svc        IProctoringService
	dispatcher *recordingDispatcher
	logs       *memory.MonitoringLogRepository
	jobs       chan dto.AlertJobMessage
	clock      *fakeClock
	evidence   string
}

func newHarness(t *testing.T, caps capability.Set, timeout time.Duration) *harness {
	t.Helper()
	log := logger.NewNopLogger()
	t0 := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	clock := &fakeClock{t: t0}

	reg := registry.New(registry.Config{
		IdleTimeout:   time.Hour,
		SweepInterval: time.Minute,
		Monitor: monitor.Config{
			HistoryCapacity: 100,
			FrameCapacity:   10,
			Tracker:         tracker.DefaultConfig(),
		},
	}, log, registry.WithClock(clock.Now))

	pubSub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, watermill.NopLogger{})
	t.Cleanup(func() { _ = pubSub.Close() })

	dir := t.TempDir()
	h := &harness{
		dispatcher: &recordingDispatcher{},
		logs:       memory.NewMonitoringLogRepository(time.Hour),
		jobs:       make(chan dto.AlertJobMessage, 64),
		clock:      clock,
		evidence:   dir,
	}

	worker := &alertWorker{
		subscriber: pubSub,
		topicName:  testTopic,
		retainer:   evidence.NewRetainer(evidence.NewDiskStore(dir)),
		logs:       h.logs,
		dispatcher: h.dispatcher,
		logger:     log,
		processed:  func(job dto.AlertJobMessage) { h.jobs <- job },
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, worker.Consume(ctx))

	if caps.Faces == nil {
		caps.Faces = &fakeFaces{}
	}
	if caps.Objects == nil {
		caps.Objects = fakeObjects{}
	}
	if caps.Audio == nil {
		caps.Audio = capability.NewLevelAnalyzer(50, 85)
	}

	svc := NewProctoringService(reg, caps, pubSub, nil, ProctoringOptions{
		Policy:          scorer.DefaultPolicy(),
		DetectorTimeout: timeout,
		AlertTopic:      testTopic,
	}, log)
	svc.(*proctoringService).now = clock.Now
	h.svc = svc

	_, err := svc.StartSession(context.Background(), student, &dto.StartSessionRequest{
		SessionId:   "sess-1",
		StudentId:   "stu-1",
		StudentName: "Ada",
		ExamId:      "exam-1",
	})
	require.NoError(t, err)
	return h
}

func (h *harness) waitJobs(t *testing.T, n int) []dto.AlertJobMessage {
	t.Helper()
	var got []dto.AlertJobMessage
	for len(got) < n {
		select {
		case job := <-h.jobs:
			got = append(got, job)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %d alert jobs, got %d", n, len(got))
		}
	}
	return got
}

func frameObs(sessionID string) dto.Observation {
	return dto.Observation{SessionId: sessionID, Frame: []byte{0xff, 0xd8, 0xff, 0xe0}}
}

// --- tests -----------------------------------------------------------------

func TestSubmitObservation_AlertWithoutEvidence(t *testing.T) {
	h := newHarness(t, capability.Set{
		Objects: fakeObjects{objects: []capability.DetectedObject{{Class: "cell phone", Confidence: 0.75}}},
	}, time.Second)

	out, err := h.svc.SubmitObservation(context.Background(), student, frameObs("sess-1"))
	require.NoError(t, err)
	assert.Equal(t, &dto.ProcessingOutcome{Accepted: true, DetectionCount: 1, EligibleDetectionCount: 1, Score: 8}, out)

	jobs := h.waitJobs(t, 1)
	assert.False(t, jobs[0].Evidence)

	warnings, supervisors := h.dispatcher.snapshot()
	require.Len(t, warnings, 1)
	require.Len(t, supervisors, 1)
	assert.Equal(t, "Warning: 1 phone(s) detected", warnings[0].Message)
	assert.Equal(t, "stu-1", warnings[0].StudentID)
	assert.Equal(t, "exam-1", supervisors[0].ExamID)
	assert.Empty(t, supervisors[0].EvidenceID)

	logs, err := h.logs.FindAll(context.Background(), specification.BySessionID{SessionID: "sess-1"})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "phone_detected", logs[0].ActivityType)
	assert.Empty(t, logs[0].VideoFramePath)
}

func TestSubmitObservation_HighConfidenceCapturesEvidence(t *testing.T) {
	h := newHarness(t, capability.Set{
		Objects: fakeObjects{objects: []capability.DetectedObject{{Class: "cell phone", Confidence: 0.92}}},
	}, time.Second)

	_, err := h.svc.SubmitObservation(context.Background(), student, frameObs("sess-1"))
	require.NoError(t, err)
	h.waitJobs(t, 1)

	_, supervisors := h.dispatcher.snapshot()
	require.Len(t, supervisors, 1)
	assert.True(t, strings.HasPrefix(supervisors[0].EvidenceID, "sess-1_phone-detected_20240501_090000_"))

	logs, err := h.logs.FindAll(context.Background())
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, supervisors[0].EvidenceID, logs[0].EvidenceId)
	data, err := os.ReadFile(logs[0].VideoFramePath)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xff, 0xd8, 0xff, 0xe0}, data)
}

func TestSubmitObservation_BelowAlertThresholdOnlyScores(t *testing.T) {
	h := newHarness(t, capability.Set{
		Objects: fakeObjects{objects: []capability.DetectedObject{{Class: "book", Confidence: 0.65}}},
	}, time.Second)

	out, err := h.svc.SubmitObservation(context.Background(), student, frameObs("sess-1"))
	require.NoError(t, err)
	assert.Equal(t, 1, out.DetectionCount)
	assert.Equal(t, 0, out.EligibleDetectionCount)
	assert.Equal(t, 7, out.Score)

	assert.Never(t, func() bool { return len(h.jobs) > 0 }, 100*time.Millisecond, 10*time.Millisecond)

	summary, err := h.svc.GetSummary(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.TotalDetections)
	assert.Empty(t, summary.HighConfidenceAlerts)
}

func TestSubmitObservation_UnknownAndEndedSessions(t *testing.T) {
	h := newHarness(t, capability.Set{}, time.Second)
	ctx := context.Background()

	_, err := h.svc.SubmitObservation(ctx, student, frameObs("nope"))
	assert.ErrorIs(t, err, registry.ErrUnknownSession)

	summary, err := h.svc.EndSession(ctx, student, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", summary.SessionId)

	_, err = h.svc.SubmitObservation(ctx, student, frameObs("sess-1"))
	assert.ErrorIs(t, err, registry.ErrUnknownSession)
	_, err = h.svc.RecordTabSwitch(ctx, student, "sess-1")
	assert.ErrorIs(t, err, registry.ErrUnknownSession)
	_, err = h.svc.GetSummary(ctx, "sess-1")
	assert.ErrorIs(t, err, registry.ErrUnknownSession)
	_, err = h.svc.EndSession(ctx, student, "sess-1")
	assert.ErrorIs(t, err, registry.ErrUnknownSession)
}

func TestSessionOwnership(t *testing.T) {
	h := newHarness(t, capability.Set{}, time.Second)
	ctx := context.Background()
	intruder := dto.Caller{UserId: "stu-2"}
	instructor := dto.Caller{UserId: "teacher-1", Supervisor: true}

	_, err := h.svc.StartSession(ctx, intruder, &dto.StartSessionRequest{SessionId: "sess-2", StudentId: "stu-1", ExamId: "exam-1"})
	assert.ErrorIs(t, err, registry.ErrNotSessionOwner)
	_, err = h.svc.StartSession(ctx, intruder, &dto.StartSessionRequest{SessionId: "sess-1", StudentId: "stu-2", ExamId: "exam-1"})
	assert.ErrorIs(t, err, registry.ErrNotSessionOwner, "an existing id is not handed to another student")

	_, err = h.svc.SubmitObservation(ctx, intruder, frameObs("sess-1"))
	assert.ErrorIs(t, err, registry.ErrNotSessionOwner)
	_, err = h.svc.RecordTabSwitch(ctx, intruder, "sess-1")
	assert.ErrorIs(t, err, registry.ErrNotSessionOwner)
	_, err = h.svc.EndSession(ctx, intruder, "sess-1")
	assert.ErrorIs(t, err, registry.ErrNotSessionOwner)

	summary, err := h.svc.GetSummary(ctx, "sess-1")
	require.NoError(t, err)
	assert.Zero(t, summary.TotalDetections, "rejected calls leave no trace")
	assert.Equal(t, []string{"sess-1"}, h.svc.ActiveSessions(ctx).Sessions)

	_, err = h.svc.RecordTabSwitch(ctx, instructor, "sess-1")
	require.NoError(t, err)
	_, err = h.svc.EndSession(ctx, instructor, "sess-1")
	require.NoError(t, err)
}

func TestStartSession_IsIdempotent(t *testing.T) {
	h := newHarness(t, capability.Set{}, time.Second)
	ctx := context.Background()

	_, err := h.svc.RecordTabSwitch(ctx, student, "sess-1")
	require.NoError(t, err)

	res, err := h.svc.StartSession(ctx, student, &dto.StartSessionRequest{SessionId: "sess-1", StudentId: "stu-1", ExamId: "exam-1"})
	require.NoError(t, err)
	assert.False(t, res.Created)

	summary, err := h.svc.GetSummary(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.TotalDetections)

	active := h.svc.ActiveSessions(ctx)
	assert.Equal(t, 1, active.Count)
	assert.Equal(t, []string{"sess-1"}, active.Sessions)
}

func TestSubmitObservation_CapabilityFailureIsIsolated(t *testing.T) {
	h := newHarness(t, capability.Set{
		Faces:   &fakeFaces{err: errors.New("model offline")},
		Objects: fakeObjects{objects: []capability.DetectedObject{{Class: "cell phone", Confidence: 0.75}}},
	}, time.Second)

	out, err := h.svc.SubmitObservation(context.Background(), student, frameObs("sess-1"))
	require.NoError(t, err)
	assert.Equal(t, 1, out.DetectionCount)

	summary, err := h.svc.GetSummary(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Observations, "a frame without a face count is not an analysed observation")
}

func TestSubmitObservation_SlowDetectorIsBoundedByTimeout(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	h := newHarness(t, capability.Set{
		Faces:   &fakeFaces{release: release},
		Objects: fakeObjects{objects: []capability.DetectedObject{{Class: "book", Confidence: 0.9}}},
	}, 50*time.Millisecond)

	start := time.Now()
	out, err := h.svc.SubmitObservation(context.Background(), student, frameObs("sess-1"))
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 1, out.DetectionCount)
	assert.Equal(t, 7, out.Score)
}

func TestSubmitObservation_AbsenceAcrossObservations(t *testing.T) {
	h := newHarness(t, capability.Set{Faces: &fakeFaces{counts: []int{1, 0, 0}}}, time.Second)
	t0 := h.clock.Now()
	ctx := context.Background()

	for _, step := range []struct {
		at   time.Duration
		want int
	}{
		{0, 0},
		{5 * time.Second, 0},
		{12 * time.Second, 1},
	} {
		h.clock.Set(t0.Add(step.at))
		out, err := h.svc.SubmitObservation(ctx, student, frameObs("sess-1"))
		require.NoError(t, err)
		assert.Equal(t, step.want, out.DetectionCount, "at %s", step.at)
	}

	jobs := h.waitJobs(t, 1)
	assert.Equal(t, detection.KindStudentAbsent, jobs[0].Detection.Kind)
	assert.Equal(t, 0.95, jobs[0].Detection.Confidence)

	summary, err := h.svc.GetSummary(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Observations)
	assert.Equal(t, 5, summary.Score)
}

func TestSubmitObservation_MultipleFacesAndVoice(t *testing.T) {
	level := 72.0
	h := newHarness(t, capability.Set{Faces: &fakeFaces{counts: []int{3}}}, time.Second)

	obs := frameObs("sess-1")
	obs.AudioLevel = &level
	out, err := h.svc.SubmitObservation(context.Background(), student, obs)
	require.NoError(t, err)
	assert.Equal(t, 2, out.DetectionCount)
	assert.Equal(t, 2, out.EligibleDetectionCount)
	assert.Equal(t, 14, out.Score)

	jobs := h.waitJobs(t, 2)
	kinds := []detection.Kind{jobs[0].Detection.Kind, jobs[1].Detection.Kind}
	assert.ElementsMatch(t, []detection.Kind{detection.KindMultipleFaces, detection.KindVoiceDetected}, kinds)
}

func TestRecordTabSwitch(t *testing.T) {
	h := newHarness(t, capability.Set{}, time.Second)

	out, err := h.svc.RecordTabSwitch(context.Background(), student, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, 1, out.EligibleDetectionCount)
	assert.Equal(t, scorer.DefaultUnknownWeight, out.Score)

	jobs := h.waitJobs(t, 1)
	assert.Equal(t, detection.KindTabSwitch, jobs[0].Detection.Kind)
	assert.Equal(t, 1.0, jobs[0].Detection.Confidence)
	assert.True(t, jobs[0].Evidence)
	assert.Empty(t, jobs[0].FrameData, "no frame buffered yet")

	_, supervisors := h.dispatcher.snapshot()
	require.Len(t, supervisors, 1)
	assert.Empty(t, supervisors[0].EvidenceID)
}

func TestBounded_RecoversPanics(t *testing.T) {
	_, err := bounded(context.Background(), func(context.Context) (int, error) {
		panic("boom")
	})
	assert.ErrorIs(t, err, capability.ErrCapabilityUnavailable)
}
