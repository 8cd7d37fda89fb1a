package domain

import (
	"errors"
	"time"
)

var (
	ErrNotFound     = errors.New("check-in not found")
	ErrUnauthorized = errors.New("anonymous ID does not match")
)

type Status string

const (
	StatusActive     Status = "active"
	StatusCheckedOut Status = "checked-out"
)

func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusActive, StatusCheckedOut:
		return Status(s), true
	default:
		return "", false
	}
}

// CheckIn is one anonymous check-in session. AnonymousID is not unique:
// the same value may appear on any number of records.
type CheckIn struct {
	ID           string     `json:"id"`
	AnonymousID  string     `json:"anonymousId"`
	DeviceInfo   *string    `json:"deviceInfo,omitempty"`
	Status       Status     `json:"status"`
	CheckInTime  time.Time  `json:"checkInTime"`
	CheckOutTime *time.Time `json:"checkOutTime,omitempty"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

type CheckInReq struct {
	AnonymousID string  `json:"anonymousId"`
	DeviceInfo  *string `json:"deviceInfo"`
}

// CheckInPatch carries the fields the generic update accepts. Nil means
// leave the stored value alone.
type CheckInPatch struct {
	Status       *Status    `json:"status"`
	CheckOutTime *time.Time `json:"checkOutTime"`
}

type CheckOutReq struct {
	AnonymousID string `json:"anonymousId"`
}
