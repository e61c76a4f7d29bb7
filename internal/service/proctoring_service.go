package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"exam-proctor-be/internal/dto"
	"exam-proctor-be/internal/pkg/logger"
	"exam-proctor-be/pkg/events"
	"exam-proctor-be/pkg/proctor/capability"
	"exam-proctor-be/pkg/proctor/detection"
	"exam-proctor-be/pkg/proctor/fusion"
	"exam-proctor-be/pkg/proctor/monitor"
	"exam-proctor-be/pkg/proctor/registry"
	"exam-proctor-be/pkg/proctor/scorer"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"golang.org/x/sync/errgroup"
)

const tabSwitchDetails = "Student switched away from the exam tab"

type IProctoringService interface {
	StartSession(ctx context.Context, caller dto.Caller, req *dto.StartSessionRequest) (*dto.StartSessionResponse, error)
	EndSession(ctx context.Context, caller dto.Caller, sessionId string) (*dto.SessionSummaryResponse, error)
	SubmitObservation(ctx context.Context, caller dto.Caller, obs dto.Observation) (*dto.ProcessingOutcome, error)
	RecordTabSwitch(ctx context.Context, caller dto.Caller, sessionId string) (*dto.ProcessingOutcome, error)
	GetSummary(ctx context.Context, sessionId string) (*dto.SessionSummaryResponse, error)
	ActiveSessions(ctx context.Context) *dto.ActiveSessionsResponse
}

type ProctoringOptions struct {
	Policy scorer.Policy
	// DetectorTimeout bounds all capability calls of one observation.
	DetectorTimeout time.Duration
	EnableGaze      bool
	AlertTopic      string
}

type proctoringService struct {
	registry *registry.Registry
	caps     capability.Set
	queue    message.Publisher
	feed     *SupervisorFeed
	opts     ProctoringOptions
	logger   logger.ILogger
	now      func() time.Time
}

func NewProctoringService(
	reg *registry.Registry,
	caps capability.Set,
	queue message.Publisher,
	feed *SupervisorFeed,
	opts ProctoringOptions,
	log logger.ILogger,
) IProctoringService {
	if opts.DetectorTimeout <= 0 {
		opts.DetectorTimeout = 3 * time.Second
	}
	return &proctoringService{
		registry: reg,
		caps:     caps,
		queue:    queue,
		feed:     feed,
		opts:     opts,
		logger:   log,
		now:      time.Now,
	}
}

func (s *proctoringService) StartSession(ctx context.Context, caller dto.Caller, req *dto.StartSessionRequest) (*dto.StartSessionResponse, error) {
	if !caller.Owns(req.StudentId) {
		return nil, registry.ErrNotSessionOwner
	}
	meta := monitor.Meta{
		SessionID:   req.SessionId,
		StudentID:   req.StudentId,
		StudentName: req.StudentName,
		ExamID:      req.ExamId,
	}
	m, created := s.registry.Create(meta)
	if !created && !caller.Owns(m.Meta().StudentID) {
		return nil, registry.ErrNotSessionOwner
	}

	if created {
		s.logger.Info("ProctoringService", "Session started", map[string]interface{}{
			"session_id": meta.SessionID,
			"student_id": meta.StudentID,
			"exam_id":    meta.ExamID,
		})
		s.publishLifecycle(ctx, events.SessionStarted, m.Meta(), nil)
	}

	return &dto.StartSessionResponse{
		SessionId: m.SessionID(),
		Created:   created,
		StartedAt: m.CreatedAt(),
	}, nil
}

func (s *proctoringService) EndSession(ctx context.Context, caller dto.Caller, sessionId string) (*dto.SessionSummaryResponse, error) {
	m, err := s.registry.Get(sessionId)
	if err != nil {
		return nil, err
	}
	if !caller.Owns(m.Meta().StudentID) {
		return nil, registry.ErrNotSessionOwner
	}
	summary := s.summarize(m)

	if !s.registry.Destroy(sessionId) {
		return nil, registry.ErrUnknownSession
	}

	s.logger.Info("ProctoringService", "Session ended", map[string]interface{}{
		"session_id":      sessionId,
		"suspicion_score": summary.Score,
		"total_frames":    summary.Observations,
	})
	s.publishLifecycle(ctx, events.SessionEnded, m.Meta(), map[string]interface{}{
		"suspicion_score": summary.Score,
		"activity_counts": summary.Counts,
	})
	return summary, nil
}

func (s *proctoringService) SubmitObservation(ctx context.Context, caller dto.Caller, obs dto.Observation) (*dto.ProcessingOutcome, error) {
	m, err := s.live(caller, obs.SessionId)
	if err != nil {
		return nil, err
	}

	now := s.now()
	m.BufferFrame(obs.Frame, now)

	res := s.analyse(ctx, obs)

	var ds []detection.Detection
	if res.facesOK {
		ds = append(ds, m.Observe(len(res.faces), now)...)
		if s.opts.EnableGaze {
			ds = append(ds, fusion.FromGaze(res.faces, now)...)
		}
	}
	if res.objectsOK {
		ds = append(ds, fusion.FromObjects(res.objects, now)...)
	}
	if res.audioOK {
		ds = append(ds, fusion.FromAudio(res.audio, now)...)
	}

	return s.ingest(m, ds), nil
}

func (s *proctoringService) RecordTabSwitch(ctx context.Context, caller dto.Caller, sessionId string) (*dto.ProcessingOutcome, error) {
	m, err := s.live(caller, sessionId)
	if err != nil {
		return nil, err
	}
	d := detection.New(detection.KindTabSwitch, 1.0, tabSwitchDetails, s.now())
	return s.ingest(m, []detection.Detection{d}), nil
}

func (s *proctoringService) GetSummary(ctx context.Context, sessionId string) (*dto.SessionSummaryResponse, error) {
	m, err := s.registry.Get(sessionId)
	if err != nil {
		return nil, err
	}
	return s.summarize(m), nil
}

func (s *proctoringService) ActiveSessions(ctx context.Context) *dto.ActiveSessionsResponse {
	ids := s.registry.IDs()
	return &dto.ActiveSessionsResponse{Count: len(ids), Sessions: ids}
}

// live resolves a monitor that is still accepting observations from caller.
func (s *proctoringService) live(caller dto.Caller, sessionId string) (*monitor.Monitor, error) {
	m, err := s.registry.Get(sessionId)
	if err != nil {
		return nil, err
	}
	if m.Closed() {
		return nil, registry.ErrUnknownSession
	}
	if !caller.Owns(m.Meta().StudentID) {
		return nil, registry.ErrNotSessionOwner
	}
	return m, nil
}

func (s *proctoringService) ingest(m *monitor.Monitor, ds []detection.Detection) *dto.ProcessingOutcome {
	delta := m.Ingest(ds, s.opts.Policy)
	s.registry.Touch(m)

	if len(delta.Eligible) > 0 {
		s.enqueueAlerts(m, delta.Eligible)
	}

	return &dto.ProcessingOutcome{
		Accepted:               true,
		DetectionCount:         delta.Appended,
		EligibleDetectionCount: len(delta.Eligible),
		Score:                  m.Summary(s.opts.Policy).Score,
	}
}

func (s *proctoringService) enqueueAlerts(m *monitor.Monitor, eligible []detection.Detection) {
	meta := m.Meta()

	var (
		frame     monitor.Frame
		haveFrame bool
		looked    bool
	)
	for _, d := range eligible {
		job := dto.AlertJobMessage{Meta: meta, Detection: d}
		if s.opts.Policy.EvidenceEligible(d) {
			job.Evidence = true
			if !looked {
				frame, haveFrame = m.LatestFrame()
				looked = true
			}
			if haveFrame {
				job.FrameData = frame.Data
				job.FrameAt = frame.Timestamp
			}
		}

		payload, err := json.Marshal(job)
		if err != nil {
			s.logger.Error("ProctoringService", "Failed to encode alert job", map[string]interface{}{"error": err.Error()})
			continue
		}
		msg := message.NewMessage(watermill.NewUUID(), payload)
		if err := s.queue.Publish(s.opts.AlertTopic, msg); err != nil {
			s.logger.Error("ProctoringService", "Failed to enqueue alert", map[string]interface{}{
				"session_id": meta.SessionID,
				"type":       d.Kind,
				"error":      err.Error(),
			})
		}
	}
}

func (s *proctoringService) summarize(m *monitor.Monitor) *dto.SessionSummaryResponse {
	meta := m.Meta()
	rec := m.Summary(s.opts.Policy)
	return &dto.SessionSummaryResponse{
		SessionId:       meta.SessionID,
		StudentId:       meta.StudentID,
		StudentName:     meta.StudentName,
		ExamId:          meta.ExamID,
		StartedAt:       m.CreatedAt(),
		SuspicionRecord: rec,
		TopActivities:   scorer.RankedKinds(rec, s.opts.Policy),
	}
}

func (s *proctoringService) publishLifecycle(ctx context.Context, eventType string, meta monitor.Meta, extra map[string]interface{}) {
	if s.feed == nil {
		return
	}
	payload := map[string]interface{}{
		"session_id":   meta.SessionID,
		"student_id":   meta.StudentID,
		"student_name": meta.StudentName,
	}
	for k, v := range extra {
		payload[k] = v
	}
	if err := s.feed.Publish(ctx, eventType, meta.ExamID, payload); err != nil {
		s.logger.Warn("ProctoringService", fmt.Sprintf("Failed to publish %s", eventType), map[string]interface{}{
			"session_id": meta.SessionID,
			"error":      err.Error(),
		})
	}
}

type analysis struct {
	faces     []capability.FaceBox
	facesOK   bool
	objects   []capability.DetectedObject
	objectsOK bool
	audio     capability.AudioAnalysis
	audioOK   bool
}

// analyse runs every applicable capability concurrently under the detector
// timeout. A failed capability contributes nothing.
func (s *proctoringService) analyse(ctx context.Context, obs dto.Observation) analysis {
	ctx, cancel := context.WithTimeout(ctx, s.opts.DetectorTimeout)
	defer cancel()

	var (
		g   errgroup.Group
		res analysis
	)

	if len(obs.Frame) > 0 {
		frame := capability.Frame{Data: obs.Frame}
		g.Go(func() error {
			faces, err := bounded(ctx, func(ctx context.Context) ([]capability.FaceBox, error) {
				return s.caps.Faces.DetectFaces(ctx, frame)
			})
			if err != nil {
				s.warnCapability("faces", obs.SessionId, err)
				return nil
			}
			res.faces, res.facesOK = faces, true
			return nil
		})
		g.Go(func() error {
			objects, err := bounded(ctx, func(ctx context.Context) ([]capability.DetectedObject, error) {
				return s.caps.Objects.DetectObjects(ctx, frame)
			})
			if err != nil {
				s.warnCapability("objects", obs.SessionId, err)
				return nil
			}
			res.objects, res.objectsOK = objects, true
			return nil
		})
	}

	clip := capability.AudioClip{Level: obs.AudioLevel, Samples: obs.AudioSamples, SampleRate: obs.SampleRate}
	if !clip.Empty() {
		g.Go(func() error {
			a, err := bounded(ctx, func(ctx context.Context) (capability.AudioAnalysis, error) {
				return s.caps.Audio.AnalyzeAudio(ctx, clip)
			})
			if err != nil {
				s.warnCapability("audio", obs.SessionId, err)
				return nil
			}
			res.audio, res.audioOK = a, true
			return nil
		})
	}

	_ = g.Wait()
	return res
}

func (s *proctoringService) warnCapability(name, sessionId string, err error) {
	s.logger.Warn("ProctoringService", "Capability unavailable", map[string]interface{}{
		"capability": name,
		"session_id": sessionId,
		"error":      err.Error(),
	})
}

// bounded returns when fn does or when ctx ends, whichever comes first, so a
// backend that ignores its context cannot stall ingestion.
func bounded[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result{err: fmt.Errorf("%w: panic: %v", capability.ErrCapabilityUnavailable, r)}
			}
		}()
		v, err := fn(ctx)
		ch <- result{v, err}
	}()

	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, fmt.Errorf("%w: %v", capability.ErrCapabilityUnavailable, ctx.Err())
	}
}
