package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"lms/pkg/models"
)

type Body struct {
	RequestID   uint      `json:"requestId"`
	RequestDate time.Time `json:"requestDate"`
	UserName    string    `json:"userName"`
	Status      string    `json:"status"`
	StatusColor string    `json:"statusColor"`
	Message     string    `json:"message"`
}

type Notification struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    Body   `json:"body"`
}

// Notifier delivers a single notification over one channel.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NewDecision builds the message sent to a requestor once a librarian has
// decided on their borrowing request.
func NewDecision(req *models.BorrowingRequest, requestor, approver *models.User) Notification {
	status := req.Status.String()
	return Notification{
		To:      requestor.Email,
		Subject: fmt.Sprintf("Book Borrowing Request is %s", status),
		Body: Body{
			RequestID:   req.ID,
			RequestDate: req.DateRequest,
			UserName:    requestor.UserName,
			Status:      status,
			StatusColor: req.Status.Color(),
			Message: fmt.Sprintf("Dear %s, your book borrowing request has been %s by %s.",
				requestor.UserName, strings.ToLower(status), approver.UserName),
		},
	}
}
