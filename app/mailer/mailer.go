// Package mailer delivers account emails over SMTP, or to the log during
// development.
package mailer

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"

	"github.com/vibast-solutions/ms-go-filedrop/config"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

const (
	verificationSubject  = "Activate your account"
	passwordResetSubject = "Password Reset Requested"
)

type Message struct {
	To       []string
	Subject  string
	HTMLBody string
}

type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

type linkData struct {
	Username string
	Link     string
}

// VerificationEmail builds the account activation message.
func VerificationEmail(to, username, link string) (Message, error) {
	return render(to, verificationSubject, "verification.html", linkData{Username: username, Link: link})
}

// PasswordResetEmail builds the password reset message.
func PasswordResetEmail(to, username, link string) (Message, error) {
	return render(to, passwordResetSubject, "password_reset.html", linkData{Username: username, Link: link})
}

func render(to, subject, name string, data any) (Message, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return Message{}, fmt.Errorf("render %s: %w", name, err)
	}
	return Message{To: []string{to}, Subject: subject, HTMLBody: buf.String()}, nil
}

func NewFromConfig(cfg config.MailConfig) (Mailer, error) {
	switch cfg.Driver {
	case "smtp":
		return NewSMTPMailer(cfg), nil
	case "log":
		return NewLogMailer(), nil
	default:
		return nil, fmt.Errorf("unknown mail driver: %s", cfg.Driver)
	}
}
