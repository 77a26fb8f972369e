package notify

import (
	"context"
	"errors"
	"fmt"
	"html"

	"gopkg.in/gomail.v2"
)

var ErrNoRecipient = errors.New("notice has no recipient email")

type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type EmailNotifier struct {
	dialer *gomail.Dialer
	from   string
}

func NewEmailNotifier(cfg EmailConfig) *EmailNotifier {
	return &EmailNotifier{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
	}
}

func (e *EmailNotifier) Notify(ctx context.Context, n Notice) error {
	if n.PatientEmail == "" {
		return ErrNoRecipient
	}
	// gomail has no context support; at least don't dial for an already abandoned request
	if err := ctx.Err(); err != nil {
		return err
	}

	subject, body := renderEmail(n)

	m := gomail.NewMessage()
	m.SetHeader("From", e.from)
	m.SetHeader("To", n.PatientEmail)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)

	if err := e.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("send %s email: %w", n.Kind, err)
	}
	return nil
}

func renderEmail(n Notice) (string, string) {
	var subject, intro string
	switch n.Kind {
	case KindReminder:
		subject = fmt.Sprintf("Reminder: appointment with %s at %s", n.DoctorName, n.DisplayTime)
		intro = "This is a reminder for your upcoming appointment."
	case KindCancelled:
		subject = fmt.Sprintf("Cancelled: appointment with %s on %s", n.DoctorName, n.LocalDate)
		intro = "Your appointment has been cancelled."
	default:
		subject = fmt.Sprintf("Appointment confirmed with %s on %s", n.DoctorName, n.LocalDate)
		intro = "Your appointment has been booked."
	}

	body := fmt.Sprintf(`
		<p>Dear %s,</p>
		<p>%s</p>
		<ul>
			<li><strong>Doctor:</strong> %s</li>
			<li><strong>Date:</strong> %s</li>
			<li><strong>Time:</strong> %s</li>
			<li><strong>Type:</strong> %s</li>
			<li><strong>Meeting ID:</strong> %s</li>
		</ul>
	`,
		html.EscapeString(n.PatientName),
		intro,
		html.EscapeString(n.DoctorName),
		n.LocalDate,
		n.DisplayTime,
		n.Type,
		n.MeetingID,
	)

	return subject, body
}
