package mailer

import (
	"fmt"

	"gopkg.in/gomail.v2"

	"clinical-dss-be/internal/pkg/logger"
)

type IEmailService interface {
	SendOperatorAlert(runId, stage, detail string) error
}

type emailService struct {
	log           logger.ILogger
	dialer        *gomail.Dialer
	senderEmail   string
	operatorEmail string
}

func NewEmailService(log logger.ILogger, host string, port int, username, password, senderEmail, operatorEmail string) IEmailService {
	d := gomail.NewDialer(host, port, username, password)

	return &emailService{
		log:           log,
		dialer:        d,
		senderEmail:   senderEmail,
		operatorEmail: operatorEmail,
	}
}

// SendOperatorAlert notifies the on-call operator about an internal pipeline failure.
func (s *emailService) SendOperatorAlert(runId, stage, detail string) error {
	if s.operatorEmail == "" {
		return nil
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.senderEmail)
	m.SetHeader("To", s.operatorEmail)
	m.SetHeader("Subject", fmt.Sprintf("[Clinical DSS] Pipeline failure in %s", stage))

	body := fmt.Sprintf(`
		<div style="font-family: Arial, sans-serif; padding: 20px; color: #333;">
			<h2>Pipeline Internal Failure</h2>
			<p>Run <b>%s</b> failed during stage <b>%s</b>.</p>
			<pre style="background: #f4f4f4; padding: 10px; border-radius: 5px;">%s</pre>
			<p>Check the server logs for the full context.</p>
		</div>
	`, runId, stage, detail)

	m.SetBody("text/html", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		s.log.Warn("mailer", "Failed to send operator alert", map[string]interface{}{
			"run_id": runId,
			"stage":  stage,
			"error":  err.Error(),
		})
		return err
	}

	s.log.Info("mailer", "Operator alert sent", map[string]interface{}{"run_id": runId})
	return nil
}
