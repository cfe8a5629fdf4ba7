// Package equipment implements the custody lifecycle of shared physical items.
//
// Items move available -> pending_approval -> assigned -> returned -> available.
// A pending item is guarded by two clocks: a short one-time code expiry that
// gates approval, and a longer request expiry that releases the item. When both
// have lapsed the request expiry is reported.
package equipment

import (
	"errors"
	"fmt"
	"time"
)

const (
	// CodeTTL is how long an access code can be used for approval.
	CodeTTL = 20 * time.Minute
	// RequestTTL is how long a pending request holds an item.
	RequestTTL = 40 * time.Minute
)

var (
	// ErrInvalidTransition is returned when an operation does not apply to the item's status.
	ErrInvalidTransition = errors.New("equipment: invalid transition")
	// ErrRequestExpired is returned when the pending request outlived RequestTTL.
	ErrRequestExpired = errors.New("equipment: request expired")
	// ErrCodeExpired is returned when the access code outlived CodeTTL.
	ErrCodeExpired = errors.New("equipment: access code expired")
	// ErrCodeMismatch is returned when the presented code does not belong to the item.
	ErrCodeMismatch = errors.New("equipment: access code mismatch")
	// ErrNotHolder is returned when someone other than the assignee returns an item.
	ErrNotHolder = errors.New("equipment: not the current holder")
)

// Status enumerates custody states.
type Status string

const (
	StatusAvailable Status = "available"
	StatusPending   Status = "pending_approval"
	StatusAssigned  Status = "assigned"
	StatusReturned  Status = "returned"
)

// Item is the custody state of one physical item. Zero times mean "unset".
type Item struct {
	ID               string
	Name             string
	Status           Status
	RequestedBy      string
	MeetingID        string
	AssignedTo       string
	CodeDigest       string
	CodeExpiresAt    time.Time
	RequestExpiresAt time.Time
	ReturnBy         time.Time
	RequestedAt      time.Time
	ApprovedBy       string
	ApprovedAt       time.Time
	ReturnedAt       time.Time
	VerifiedBy       string
	VerifiedAt       time.Time
	Late             bool

	// ExpiredCodeDigest and RequestExpiredAt remember the last request released
	// by its request clock, so a late approval still reports the expiry.
	ExpiredCodeDigest string
	RequestExpiredAt  time.Time
}

// Condition is the result of checking a pending item's clocks.
type Condition string

const (
	ConditionValid          Condition = "valid"
	ConditionCodeExpired    Condition = "code_expired"
	ConditionRequestExpired Condition = "request_expired"
	ConditionNotPending     Condition = "not_pending"
)

// Check examines both clocks of a pending item. The request clock is checked
// first so a request past both deadlines reports ConditionRequestExpired.
func Check(item Item, now time.Time) Condition {
	if item.Status != StatusPending {
		return ConditionNotPending
	}
	if !now.Before(item.RequestExpiresAt) {
		return ConditionRequestExpired
	}
	if !now.Before(item.CodeExpiresAt) {
		return ConditionCodeExpired
	}
	return ConditionValid
}

// Open places an available item on hold for requester. codeDigest is the keyed
// digest of the access code handed to the requester.
func Open(item Item, requester, meetingID string, returnBy time.Time, codeDigest string, now time.Time) (Item, error) {
	if item.Status != StatusAvailable {
		return item, fmt.Errorf("%w: open from %s", ErrInvalidTransition, item.Status)
	}
	item.Status = StatusPending
	item.RequestedBy = requester
	item.MeetingID = meetingID
	item.ReturnBy = dateOnly(returnBy)
	item.CodeDigest = codeDigest
	item.RequestedAt = now
	item.CodeExpiresAt = now.Add(CodeTTL)
	item.RequestExpiresAt = now.Add(RequestTTL)
	item.Late = false
	item.ExpiredCodeDigest = ""
	item.RequestExpiredAt = time.Time{}
	return item, nil
}

// Approve assigns a pending item to its requester when digest matches.
//
// On ErrRequestExpired the returned item has already been released and should
// be persisted by the caller. On every other error the item is returned unchanged.
func Approve(item Item, digest, approver string, now time.Time) (Item, error) {
	switch Check(item, now) {
	case ConditionNotPending:
		return item, fmt.Errorf("%w: approve from %s", ErrInvalidTransition, item.Status)
	case ConditionRequestExpired:
		released, _ := Release(item, now)
		return released, ErrRequestExpired
	case ConditionCodeExpired:
		return item, ErrCodeExpired
	}
	if !DigestsEqual(item.CodeDigest, digest) {
		return item, ErrCodeMismatch
	}

	item.Status = StatusAssigned
	item.AssignedTo = item.RequestedBy
	item.ApprovedBy = approver
	item.ApprovedAt = now
	item.CodeDigest = ""
	item.CodeExpiresAt = time.Time{}
	item.RequestExpiresAt = time.Time{}
	return item, nil
}

// Release returns a pending item to available once its request clock has run out.
// It reports whether anything changed.
func Release(item Item, now time.Time) (Item, bool) {
	if Check(item, now) != ConditionRequestExpired {
		return item, false
	}
	digest, expiredAt := item.CodeDigest, item.RequestExpiresAt
	item = clearHold(item)
	item.ExpiredCodeDigest = digest
	item.RequestExpiredAt = expiredAt
	return item, true
}

// ExpiredBy reports whether digest belongs to the request that Release last
// dropped from item.
func ExpiredBy(item Item, digest string) bool {
	return item.Status == StatusAvailable && item.ExpiredCodeDigest != "" && DigestsEqual(item.ExpiredCodeDigest, digest)
}

// Return records that holder handed the item back.
func Return(item Item, holder string, now time.Time) (Item, error) {
	if item.Status != StatusAssigned {
		return item, fmt.Errorf("%w: return from %s", ErrInvalidTransition, item.Status)
	}
	if item.AssignedTo != holder {
		return item, ErrNotHolder
	}
	item.Status = StatusReturned
	item.ReturnedAt = now
	return item, nil
}

// Verify confirms a returned item and makes it available again. The late flag
// compares the verification date with the return-due date, ignoring time of day.
func Verify(item Item, verifier string, now time.Time) (Item, bool, error) {
	if item.Status != StatusReturned {
		return item, false, fmt.Errorf("%w: verify from %s", ErrInvalidTransition, item.Status)
	}
	late := !item.ReturnBy.IsZero() && dateOnly(now).After(dateOnly(item.ReturnBy))

	item = clearHold(item)
	item.VerifiedBy = verifier
	item.VerifiedAt = now
	item.Late = late
	return item, late, nil
}

func clearHold(item Item) Item {
	item.Status = StatusAvailable
	item.RequestedBy = ""
	item.MeetingID = ""
	item.AssignedTo = ""
	item.CodeDigest = ""
	item.CodeExpiresAt = time.Time{}
	item.RequestExpiresAt = time.Time{}
	item.ReturnBy = time.Time{}
	item.ApprovedBy = ""
	item.ApprovedAt = time.Time{}
	return item
}

func dateOnly(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseReturnDate accepts YYYY-MM-DD or DD/MM/YYYY.
func ParseReturnDate(raw string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02", "2/1/2006"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("equipment: invalid return date %q", raw)
}
