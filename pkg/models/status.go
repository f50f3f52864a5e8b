package models

import (
	"fmt"
)

// Status is the decision state of a borrowing request. The numeric values
// are part of the wire format and must not be reordered.
type Status int

const (
	StatusApproved Status = 0
	StatusRejected Status = 1
	StatusWaiting  Status = 2
)

func (s Status) Valid() bool {
	return s == StatusApproved || s == StatusRejected || s == StatusWaiting
}

// Terminal reports whether no further decision is expected.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

func (s Status) String() string {
	switch s {
	case StatusApproved:
		return "Approved"
	case StatusRejected:
		return "Rejected"
	case StatusWaiting:
		return "Waiting"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Color is the accent used by the decision e-mail.
func (s Status) Color() string {
	if s == StatusApproved {
		return "green"
	}
	return "red"
}

// ParseStatusFilter turns the optional query value used by list endpoints
// into a filter. -1 (or anything outside the enum) means "all statuses".
func ParseStatusFilter(v int) *Status {
	s := Status(v)
	if !s.Valid() {
		return nil
	}
	return &s
}
