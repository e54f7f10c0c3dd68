package mailer

import (
	"bytes"
	"html/template"

	"cancelflow-be/internal/pkg/logger"

	"gopkg.in/gomail.v2"
)

// StatusEmail is the content of a cancellation status update.
type StatusEmail struct {
	Subject  string
	Heading  string
	Lines    []string
	Steps    []string
	LinkURL  string
	LinkText string
}

type IEmailService interface {
	SendStatusUpdate(toEmail string, email StatusEmail) error
}

// Dialer is satisfied by *gomail.Dialer.
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

type emailService struct {
	dialer      Dialer
	senderEmail string
	logger      logger.ILogger
}

var statusTemplate = template.Must(template.New("status").Parse(`
<div style="font-family: Arial, sans-serif; padding: 20px; color: #333;">
	<h2>{{.Heading}}</h2>
	{{range .Lines}}<p>{{.}}</p>{{end}}
	{{if .Steps}}<ol>{{range .Steps}}<li>{{.}}</li>{{end}}</ol>{{end}}
	{{if .LinkURL}}<p><a href="{{.LinkURL}}" style="background-color: #4CAF50; color: white; padding: 10px 20px; text-decoration: none; border-radius: 5px;">{{.LinkText}}</a></p>{{end}}
</div>
`))

func NewEmailService(host string, port int, username, password, senderEmail string, log logger.ILogger) IEmailService {
	return NewEmailServiceWithDialer(gomail.NewDialer(host, port, username, password), senderEmail, log)
}

func NewEmailServiceWithDialer(dialer Dialer, senderEmail string, log logger.ILogger) IEmailService {
	return &emailService{dialer: dialer, senderEmail: senderEmail, logger: log}
}

func (s *emailService) SendStatusUpdate(toEmail string, email StatusEmail) error {
	if email.LinkText == "" {
		email.LinkText = "Open"
	}

	var body bytes.Buffer
	if err := statusTemplate.Execute(&body, email); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.senderEmail)
	m.SetHeader("To", toEmail)
	m.SetHeader("Subject", email.Subject)
	m.SetBody("text/html", body.String())

	if err := s.dialer.DialAndSend(m); err != nil {
		s.logger.Error("MAILER", "Failed to send status email", map[string]interface{}{
			"to":    toEmail,
			"error": err.Error(),
		})
		return err
	}

	s.logger.Info("MAILER", "Status email sent", map[string]interface{}{"to": toEmail, "subject": email.Subject})
	return nil
}
