package authcore

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"mime"
	"net"
	"net/smtp"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Notifier delivers account emails. Tokens are passed raw; implementations
// decide how links are built.
type Notifier interface {
	SendVerificationEmail(ctx context.Context, toEmail, toName, token string) error
	SendResetPasswordEmail(ctx context.Context, toEmail, token string) error
}

// LinkBuilder renders the frontend links embedded in account emails.
type LinkBuilder struct {
	FrontendURL string
}

func (l LinkBuilder) VerifyLink(token string) string {
	return strings.TrimSuffix(l.FrontendURL, "/") + "/verify-email?token=" + url.QueryEscape(token)
}

func (l LinkBuilder) ResetLink(token string) string {
	return strings.TrimSuffix(l.FrontendURL, "/") + "/reset-password?token=" + url.QueryEscape(token)
}

// ConsoleNotifier writes emails to the log. For development only.
type ConsoleNotifier struct {
	Links  LinkBuilder
	Logger *slog.Logger
}

func (c *ConsoleNotifier) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func (c *ConsoleNotifier) SendVerificationEmail(ctx context.Context, toEmail, toName, token string) error {
	c.logger().InfoContext(ctx, "email: verify your address",
		"to", toEmail, "name", toName, "link", c.Links.VerifyLink(token))
	return nil
}

func (c *ConsoleNotifier) SendResetPasswordEmail(ctx context.Context, toEmail, token string) error {
	c.logger().InfoContext(ctx, "email: reset your password",
		"to", toEmail, "link", c.Links.ResetLink(token))
	return nil
}

var (
	verifyEmailTemplate = template.Must(template.New("verify").Parse(
		`<p>Hello {{.Name}},</p>
<p>Please verify your email by clicking the link below:</p>
<p><a href="{{.Link}}">Verify Email</a></p>`))

	resetEmailTemplate = template.Must(template.New("reset").Parse(
		`<p>You requested a password reset.</p>
<p>Click the link below to choose a new password. The link expires in one hour.</p>
<p><a href="{{.Link}}">Reset Password</a></p>`))
)

// SendMailFunc delivers one message. It must give up once ctx is done.
type SendMailFunc func(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPNotifier sends HTML emails through an SMTP relay.
type SMTPNotifier struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Links    LinkBuilder

	// SendMail defaults to SendMailContext.
	SendMail SendMailFunc
}

func (s *SMTPNotifier) SendVerificationEmail(ctx context.Context, toEmail, toName, token string) error {
	body, err := render(verifyEmailTemplate, map[string]string{"Name": toName, "Link": s.Links.VerifyLink(token)})
	if err != nil {
		return err
	}
	return s.send(ctx, toEmail, "Email Verification", body)
}

func (s *SMTPNotifier) SendResetPasswordEmail(ctx context.Context, toEmail, token string) error {
	body, err := render(resetEmailTemplate, map[string]string{"Link": s.Links.ResetLink(token)})
	if err != nil {
		return err
	}
	return s.send(ctx, toEmail, "Password Reset", body)
}

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render %s email: %w", t.Name(), err)
	}
	return buf.String(), nil
}

func (s *SMTPNotifier) send(ctx context.Context, to, subject, html string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", s.From)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&msg, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n\r\n")
	msg.WriteString(html)

	var auth smtp.Auth
	if s.Username != "" {
		auth = smtp.PlainAuth("", s.Username, s.Password, s.Host)
	}
	sendMail := s.SendMail
	if sendMail == nil {
		sendMail = SendMailContext
	}
	addr := net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
	if err := sendMail(ctx, addr, auth, s.From, []string{to}, msg.Bytes()); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return fmt.Errorf("smtp send to %s: %w", to, err)
	}
	return nil
}

// SendMailContext is smtp.SendMail bounded by ctx: the dial honours ctx,
// the connection deadline follows ctx's deadline, and cancelling ctx
// closes the connection.
func SendMailContext(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) (err error) {
	defer func() {
		// the connection deadline can fire just before ctx reports it
		if err != nil && ctx.Err() == nil && errors.Is(err, os.ErrDeadlineExceeded) {
			err = context.DeadlineExceeded
		}
	}()
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return err
		}
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	host, _, _ := net.SplitHostPort(addr)
	c, err := smtp.NewClient(conn, host)
	if err != nil {
		return err
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: host}); err != nil {
			return err
		}
	}
	if a != nil {
		if ok, _ := c.Extension("AUTH"); !ok {
			return errors.New("smtp: server doesn't support AUTH")
		}
		if err := c.Auth(a); err != nil {
			return err
		}
	}
	if err := c.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}
