package mailer

import (
	"fmt"
	"html"
	"time"

	"gopkg.in/gomail.v2"
)

// AlertEmail is the content of a supervisor notification for an evidence-backed alert.
type AlertEmail struct {
	StudentName string
	StudentID   string
	ExamID      string
	SessionID   string
	Activity    string
	Details     string
	Confidence  float64
	EvidenceID  string
	OccurredAt  time.Time
}

type IEmailService interface {
	SendAlert(to []string, alert AlertEmail) error
}

type emailService struct {
	dialer      *gomail.Dialer
	senderEmail string
	senderName  string
}

func NewEmailService(host string, port int, username, password, senderName string) IEmailService {
	return &emailService{
		dialer:      gomail.NewDialer(host, port, username, password),
		senderEmail: username,
		senderName:  senderName,
	}
}

func (s *emailService) SendAlert(to []string, alert AlertEmail) error {
	if len(to) == 0 {
		return nil
	}

	m := gomail.NewMessage()
	m.SetAddressHeader("From", s.senderEmail, s.senderName)
	m.SetHeader("To", to...)
	m.SetHeader("Subject", fmt.Sprintf("[Proctoring] %s flagged for %s", alert.StudentName, alert.Activity))
	m.SetBody("text/html", renderAlert(alert))

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("send alert mail: %w", err)
	}
	return nil
}

func renderAlert(a AlertEmail) string {
	return fmt.Sprintf(`
		<div style="font-family: Arial, sans-serif; padding: 20px; color: #333;">
			<h2>Suspicious activity detected</h2>
			<p><b>Student:</b> %s (%s)</p>
			<p><b>Exam:</b> %s &middot; <b>Session:</b> %s</p>
			<p><b>Activity:</b> %s (confidence %.0f%%)</p>
			<p>%s</p>
			<p><b>Evidence:</b> %s</p>
			<p style="color: #888;">%s</p>
		</div>
	`,
		html.EscapeString(a.StudentName), html.EscapeString(a.StudentID),
		html.EscapeString(a.ExamID), html.EscapeString(a.SessionID),
		html.EscapeString(a.Activity), a.Confidence*100,
		html.EscapeString(a.Details),
		html.EscapeString(a.EvidenceID),
		a.OccurredAt.UTC().Format(time.RFC1123),
	)
}
