package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"mime"
	"net/smtp"
	"strconv"
	"time"

	"lms/pkg/config"
)

const emailTemplate = `<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif;">
  <h2>Library Management System</h2>
  <p>Hello {{.UserName}},</p>
  <p>Borrowing request <strong>#{{.RequestID}}</strong> submitted on {{.RequestDate.Format "2006-01-02 15:04"}}
     is now <strong style="color: {{.StatusColor}};">{{.Status}}</strong>.</p>
  <p>{{.Message}}</p>
</body>
</html>
`

var bodyTemplate = template.Must(template.New("decision").Parse(emailTemplate))

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type SMTPNotifier struct {
	addr string
	from string
	auth smtp.Auth
	send sendFunc
}

func NewSMTPNotifier(cfg *config.Config) *SMTPNotifier {
	var auth smtp.Auth
	if cfg.SMTPUsername != "" {
		auth = smtp.PlainAuth("", cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPHost)
	}
	return &SMTPNotifier{
		addr: cfg.SMTPHost + ":" + strconv.Itoa(cfg.SMTPPort),
		from: cfg.SMTPFrom,
		auth: auth,
		send: smtp.SendMail,
	}
}

// Notify renders the HTML body and hands it to the relay. net/smtp has no
// context support, so cancellation is only checked before sending.
func (n *SMTPNotifier) Notify(ctx context.Context, msg Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := n.compose(msg)
	if err != nil {
		return err
	}
	if err := n.send(n.addr, n.auth, n.from, []string{msg.To}, raw); err != nil {
		return fmt.Errorf("send mail to %s: %w", msg.To, err)
	}
	return nil
}

func (n *SMTPNotifier) compose(msg Notification) ([]byte, error) {
	var html bytes.Buffer
	if err := bodyTemplate.Execute(&html, msg.Body); err != nil {
		return nil, fmt.Errorf("render mail body: %w", err)
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: Library Management System <%s>\r\n", n.from)
	fmt.Fprintf(&buf, "To: %s\r\n", msg.To)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	fmt.Fprintf(&buf, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n\r\n")
	buf.Write(html.Bytes())
	return buf.Bytes(), nil
}
