// Package domain holds typed identifiers shared across bounded contexts.
//
// Identifiers are positive integers assigned by the store. Distinct named
// types keep a MemberID from being passed where a UserID is expected.
package domain

import (
	"strconv"
	"strings"

	dErrors "clubgate/pkg/domain-errors"
)

type (
	UserID   int64
	MemberID int64
	AccessID int64
	EventID  int64
)

// maxIDLength bounds decimal input before parsing (int64 has 19 digits).
const maxIDLength = 19

func (u UserID) IsNil() bool { return u <= 0 }

func (u UserID) String() string { return strconv.FormatInt(int64(u), 10) }

func (m MemberID) IsNil() bool { return m <= 0 }

func (m MemberID) String() string { return strconv.FormatInt(int64(m), 10) }

func (a AccessID) IsNil() bool { return a <= 0 }

func (a AccessID) String() string { return strconv.FormatInt(int64(a), 10) }

func (e EventID) IsNil() bool { return e <= 0 }

func (e EventID) String() string { return strconv.FormatInt(int64(e), 10) }

// Int64Ptr returns nil for a nil id, which maps to SQL NULL.
func (u UserID) Int64Ptr() *int64 {
	if u.IsNil() {
		return nil
	}
	v := int64(u)
	return &v
}

func ParseUserID(s string) (UserID, error) {
	v, err := parsePositive(s, "user ID")
	return UserID(v), err
}

func ParseMemberID(s string) (MemberID, error) {
	v, err := parsePositive(s, "member ID")
	return MemberID(v), err
}

func ParseAccessID(s string) (AccessID, error) {
	v, err := parsePositive(s, "access ID")
	return AccessID(v), err
}

func ParseEventID(s string) (EventID, error) {
	v, err := parsePositive(s, "event ID")
	return EventID(v), err
}

func parsePositive(s, label string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, dErrors.New(dErrors.CodeInvalidInput, label+" is required")
	}
	if len(s) > maxIDLength {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label)
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label)
		}
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v <= 0 {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label)
	}
	return v, nil
}
