package service

import (
	"context"

	"exam-proctor-be/internal/pkg/logger"
	"exam-proctor-be/internal/pkg/mailer"
	internalWS "exam-proctor-be/internal/websocket"
	"exam-proctor-be/pkg/events"
	"exam-proctor-be/pkg/proctor/alert"
)

// At most this many alert mails are in flight; further ones are dropped
// until a slot frees up.
const maxPendingMails = 8

type alertDispatcher struct {
	rooms      RoomSender
	feed       *SupervisorFeed
	mailer     mailer.IEmailService
	recipients []string
	mailSlots  chan struct{}
	logger     logger.ILogger
}

// NewAlertDispatcher delivers student warnings to the student's room and
// supervisor alerts through the feed. Evidence-backed alerts are also mailed
// to recipients when a mailer is given.
func NewAlertDispatcher(rooms RoomSender, feed *SupervisorFeed, mail mailer.IEmailService, recipients []string, log logger.ILogger) alert.Dispatcher {
	return &alertDispatcher{
		rooms:      rooms,
		feed:       feed,
		mailer:     mail,
		recipients: recipients,
		mailSlots:  make(chan struct{}, maxPendingMails),
		logger:     log,
	}
}

func (d *alertDispatcher) NotifyStudent(ctx context.Context, w alert.StudentWarning) error {
	if err := d.rooms.SendToRoom(ctx, internalWS.StudentRoom(w.StudentID), internalWS.TypeWarning, w); err != nil {
		return err
	}
	d.logger.Info("AlertDispatcher", "Student warned", map[string]interface{}{
		"session_id": w.SessionID,
		"student_id": w.StudentID,
		"type":       w.Kind,
	})
	return nil
}

func (d *alertDispatcher) NotifySupervisors(ctx context.Context, a alert.SupervisorAlert) error {
	if err := d.feed.Publish(ctx, events.MonitoringAlert, a.ExamID, a); err != nil {
		return err
	}
	d.logger.Info("AlertDispatcher", "Supervisors alerted", map[string]interface{}{
		"session_id":  a.SessionID,
		"exam_id":     a.ExamID,
		"type":        a.Kind,
		"confidence":  a.Confidence,
		"evidence_id": a.EvidenceID,
	})

	if d.mailer != nil && a.EvidenceID != "" && len(d.recipients) > 0 {
		d.mailAsync(a)
	}
	return nil
}

// mailAsync sends the courtesy mail on its own goroutine, outside the alert path.
func (d *alertDispatcher) mailAsync(a alert.SupervisorAlert) {
	select {
	case d.mailSlots <- struct{}{}:
	default:
		d.logger.Warn("AlertDispatcher", "Alert mail skipped, too many pending", map[string]interface{}{
			"session_id":  a.SessionID,
			"evidence_id": a.EvidenceID,
		})
		return
	}

	go func() {
		defer func() { <-d.mailSlots }()
		err := d.mailer.SendAlert(d.recipients, mailer.AlertEmail{
			StudentName: a.StudentName,
			StudentID:   a.StudentID,
			ExamID:      a.ExamID,
			SessionID:   a.SessionID,
			Activity:    string(a.Kind),
			Details:     a.Details,
			Confidence:  a.Confidence,
			EvidenceID:  a.EvidenceID,
			OccurredAt:  a.Timestamp,
		})
		if err != nil {
			d.logger.Warn("AlertDispatcher", "Alert mail failed", map[string]interface{}{
				"session_id": a.SessionID,
				"error":      err.Error(),
			})
		}
	}()
}
