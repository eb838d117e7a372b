package mailer

import (
	"bytes"
	"context"
	"embed"
	htmltemplate "html/template"
	"text/template"
	"time"

	"github.com/go-mail/mail/v2"

	"github.com/harlequingg/taskd/internal/data"
)

//go:embed templates
var templateFS embed.FS

const (
	sendAttempts = 3
	retryDelay   = 500 * time.Millisecond
)

// Notifier tells users about tasks that changed hands.
type Notifier interface {
	TaskAssigned(ctx context.Context, task *data.Task, assignee *data.User) error
}

type Mailer struct {
	dialer *mail.Dialer
	sender string
}

func New(host string, port int, username string, password string, sender string) *Mailer {
	dialer := mail.NewDialer(host, port, username, password)
	dialer.Timeout = 5 * time.Second
	return &Mailer{
		dialer: dialer,
		sender: sender,
	}
}

type message struct {
	Subject   string
	PlainBody string
	HTMLBody  string
}

// render executes the subject and plainBody blocks as text and the htmlBody
// block as HTML, so only the HTML part is escaped.
func render(templateFile string, payload any) (*message, error) {
	path := "templates/" + templateFile
	textTmpl, err := template.New("email").ParseFS(templateFS, path)
	if err != nil {
		return nil, err
	}
	htmlTmpl, err := htmltemplate.New("email").ParseFS(templateFS, path)
	if err != nil {
		return nil, err
	}

	var subject bytes.Buffer
	err = textTmpl.ExecuteTemplate(&subject, "subject", payload)
	if err != nil {
		return nil, err
	}
	var plainBody bytes.Buffer
	err = textTmpl.ExecuteTemplate(&plainBody, "plainBody", payload)
	if err != nil {
		return nil, err
	}
	var htmlBody bytes.Buffer
	err = htmlTmpl.ExecuteTemplate(&htmlBody, "htmlBody", payload)
	if err != nil {
		return nil, err
	}
	return &message{
		Subject:   subject.String(),
		PlainBody: plainBody.String(),
		HTMLBody:  htmlBody.String(),
	}, nil
}

func (m *Mailer) Send(ctx context.Context, to string, templateFile string, payload any) error {
	rendered, err := render(templateFile, payload)
	if err != nil {
		return err
	}

	msg := mail.NewMessage()
	msg.SetHeader("To", to)
	msg.SetHeader("From", m.sender)
	msg.SetHeader("Subject", rendered.Subject)
	msg.SetBody("text/plain", rendered.PlainBody)
	msg.AddAlternative("text/html", rendered.HTMLBody)

	for i := 0; i < sendAttempts; i++ {
		err = m.dialer.DialAndSend(msg)
		if err == nil {
			return nil
		}
		if i == sendAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryDelay):
		}
	}
	return err
}

type taskAssignedData struct {
	Username string
	TaskID   int64
	Message  string
}

// TaskAssigned mails assignee. Users without an address are skipped.
func (m *Mailer) TaskAssigned(ctx context.Context, task *data.Task, assignee *data.User) error {
	if assignee.Email == "" {
		return nil
	}
	return m.Send(ctx, assignee.Email, "task_assigned.tmpl", taskAssignedData{
		Username: assignee.Username,
		TaskID:   task.ID,
		Message:  task.Message,
	})
}

// Noop drops every notification.
type Noop struct{}

func (Noop) TaskAssigned(context.Context, *data.Task, *data.User) error {
	return nil
}
