package notify

import (
	"context"
	"errors"
	"net/smtp"
	"testing"
	"time"

	"lms/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testNotification() Notification {
	return Notification{
		To:      "bob@example.com",
		Subject: "Book Borrowing Request is Approved",
		Body: Body{
			RequestID:   42,
			RequestDate: time.Date(2024, 5, 2, 9, 30, 0, 0, time.UTC),
			UserName:    "bob <admin>",
			Status:      "Approved",
			StatusColor: "green",
			Message:     "Dear bob, your book borrowing request has been approved by lib.",
		},
	}
}

func TestSMTPNotifierSends(t *testing.T) {
	cfg := &config.Config{SMTPHost: "mail.local", SMTPPort: 2525, SMTPFrom: "library@local"}
	n := NewSMTPNotifier(cfg)

	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	n.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	}

	require.NoError(t, n.Notify(context.Background(), testNotification()))

	assert.Equal(t, "mail.local:2525", gotAddr)
	assert.Equal(t, "library@local", gotFrom)
	assert.Equal(t, []string{"bob@example.com"}, gotTo)

	body := string(gotMsg)
	assert.Contains(t, body, "To: bob@example.com\r\n")
	assert.Contains(t, body, "Subject: Book Borrowing Request is Approved\r\n")
	assert.Contains(t, body, "Content-Type: text/html")
	assert.Contains(t, body, "#42")
	assert.Contains(t, body, "2024-05-02 09:30")
	assert.Contains(t, body, "color: green")
	assert.Contains(t, body, "bob &lt;admin&gt;")
	assert.NotContains(t, body, "bob <admin>")
}

func TestSMTPNotifierSendError(t *testing.T) {
	n := NewSMTPNotifier(&config.Config{SMTPHost: "mail.local", SMTPPort: 25})
	relayErr := errors.New("connection refused")
	n.send = func(string, smtp.Auth, string, []string, []byte) error { return relayErr }

	err := n.Notify(context.Background(), testNotification())
	assert.ErrorIs(t, err, relayErr)
}

func TestSMTPNotifierCancelled(t *testing.T) {
	n := NewSMTPNotifier(&config.Config{SMTPHost: "mail.local", SMTPPort: 25})
	called := false
	n.send = func(string, smtp.Auth, string, []string, []byte) error {
		called = true
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, n.Notify(ctx, testNotification()), context.Canceled)
	assert.False(t, called)
}
