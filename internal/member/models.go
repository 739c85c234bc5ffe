// Package member holds the read model of club members that access control
// decides on. Members are created here for seeding; every other mutation
// belongs to the membership and billing systems.
package member

import (
	"fmt"
	"time"

	id "clubgate/pkg/domain"
)

// State is the membership state. Values are the persisted and wire strings.
type State string

const (
	StateActive     State = "activo"
	StateDelinquent State = "moroso"
	StateSuspended  State = "suspendido"
	StateTerminated State = "baja"
)

func (s State) IsValid() bool {
	switch s {
	case StateActive, StateDelinquent, StateSuspended, StateTerminated:
		return true
	}
	return false
}

// Member is one enrolled person. Balance is negative when the member owes
// money.
type Member struct {
	ID             id.MemberID
	Number         string
	DocumentType   string
	DocumentNumber string
	FullName       string
	Category       string
	PhotoURL       string
	State          State
	Balance        float64
	LastPaidPeriod *time.Time
	NextDueDate    *time.Time

	CredentialPayload  string
	CredentialHash     string
	CredentialIssuedAt *time.Time

	Deleted   bool
	CreatedAt time.Time
}

// HasCredential reports whether a QR credential was issued.
func (m *Member) HasCredential() bool {
	return m.CredentialIssuedAt != nil && m.CredentialPayload != ""
}

// Debt is the amount owed, or zero when the balance is not negative.
func (m *Member) Debt() float64 {
	if m.Balance < 0 {
		return -m.Balance
	}
	return 0
}

// DaysOverdue counts whole days from the next due date to at, or zero when
// the member is not overdue.
func (m *Member) DaysOverdue(at time.Time) int {
	if m.NextDueDate == nil {
		return 0
	}
	due := truncateDay(*m.NextDueDate)
	day := truncateDay(at)
	if !day.After(due) {
		return 0
	}
	return int(day.Sub(due).Hours() / 24)
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// FormatNumber renders a member number as prefix plus a zero-padded sequence.
func FormatNumber(prefix string, seq int64) string {
	return fmt.Sprintf("%s%06d", prefix, seq)
}

// Enrollment carries the fields of a new member.
type Enrollment struct {
	DocumentType   string
	DocumentNumber string
	FullName       string
	Category       string
	PhotoURL       string
	State          State
	Balance        float64
	LastPaidPeriod *time.Time
	NextDueDate    *time.Time
}
