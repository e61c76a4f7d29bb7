package service

import (
	"context"
	"encoding/json"

	"exam-proctor-be/internal/dto"
	"exam-proctor-be/internal/entity"
	"exam-proctor-be/internal/pkg/logger"
	"exam-proctor-be/internal/repository/contract"
	"exam-proctor-be/pkg/proctor/alert"
	"exam-proctor-be/pkg/proctor/evidence"
	"exam-proctor-be/pkg/proctor/monitor"

	"github.com/ThreeDotsLabs/watermill/message"
)

type IAlertWorker interface {
	Consume(ctx context.Context) error
}

// alertWorker does the I/O half of an alert, away from any monitor lock:
// evidence capture, monitoring log, notification fan-out. Each step fails
// on its own without stopping the next.
type alertWorker struct {
	subscriber message.Subscriber
	topicName  string
	retainer   *evidence.Retainer
	logs       contract.MonitoringLogRepository
	dispatcher alert.Dispatcher
	logger     logger.ILogger

	// processed is signalled after each message; tests only.
	processed func(dto.AlertJobMessage)
}

func NewAlertWorker(
	subscriber message.Subscriber,
	topicName string,
	retainer *evidence.Retainer,
	logs contract.MonitoringLogRepository,
	dispatcher alert.Dispatcher,
	log logger.ILogger,
) IAlertWorker {
	return &alertWorker{
		subscriber: subscriber,
		topicName:  topicName,
		retainer:   retainer,
		logs:       logs,
		dispatcher: dispatcher,
		logger:     log,
	}
}

func (w *alertWorker) Consume(ctx context.Context) error {
	messages, err := w.subscriber.Subscribe(ctx, w.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			w.processMessage(ctx, msg)
		}
	}()

	return nil
}

func (w *alertWorker) processMessage(ctx context.Context, msg *message.Message) {
	// Always Ack: a redelivered job would warn the student twice.
	defer msg.Ack()

	var job dto.AlertJobMessage
	if err := json.Unmarshal(msg.Payload, &job); err != nil {
		w.logger.Error("AlertWorker", "Failed to unmarshal alert job", map[string]interface{}{"error": err.Error()})
		return
	}

	meta, d := job.Meta, job.Detection
	fields := map[string]interface{}{
		"session_id": meta.SessionID,
		"type":       d.Kind,
		"confidence": d.Confidence,
	}

	var ref *evidence.Reference
	if job.Evidence && w.retainer != nil {
		snap := frameSnapshot{frame: monitor.Frame{Data: job.FrameData, Timestamp: job.FrameAt}}
		var err error
		ref, err = w.retainer.Capture(ctx, snap, meta.SessionID, d)
		if err != nil {
			w.logger.Warn("AlertWorker", "Evidence capture failed", withError(fields, err))
		}
	}

	logEntry := &entity.MonitoringLog{
		SessionId:       meta.SessionID,
		ExamId:          meta.ExamID,
		StudentId:       meta.StudentID,
		ActivityType:    string(d.Kind),
		ConfidenceScore: d.Confidence,
		Details:         map[string]interface{}{"message": d.Details},
		Timestamp:       d.Timestamp,
	}
	evidenceID := ""
	if ref != nil {
		evidenceID = ref.ID
		logEntry.EvidenceId = ref.ID
		logEntry.VideoFramePath = ref.Path
	}
	if err := w.logs.Append(ctx, logEntry); err != nil {
		w.logger.Warn("AlertWorker", "Monitoring log append failed", withError(fields, err))
	}

	warning, supervisorAlert := alert.Build(meta, d, evidenceID)
	if err := alert.Fanout(ctx, w.dispatcher, warning, supervisorAlert); err != nil {
		w.logger.Warn("AlertWorker", "Alert delivery incomplete", withError(fields, err))
	}

	if w.processed != nil {
		w.processed(job)
	}
}

type frameSnapshot struct {
	frame monitor.Frame
}

func (s frameSnapshot) LatestFrame() (monitor.Frame, bool) {
	return s.frame, len(s.frame.Data) > 0
}

func withError(fields map[string]interface{}, err error) map[string]interface{} {
	out := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out["error"] = err.Error()
	return out
}
