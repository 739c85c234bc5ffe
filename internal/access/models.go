// Package access decides whether a member is admitted at the gate and keeps
// the immutable record of every decision.
package access

import (
	"time"

	"clubgate/internal/member"
	id "clubgate/pkg/domain"
)

// Channel is how the member presented themselves.
type Channel string

const (
	ChannelQR     Channel = "qr"
	ChannelManual Channel = "manual"
	// Reserved: no decision path produces these yet.
	ChannelRFID Channel = "rfid"
	ChannelFace Channel = "face"
)

// Outcome is the admission result. Values are the wire strings.
type Outcome string

const (
	OutcomePermitted Outcome = "permitido"
	OutcomeWarned    Outcome = "advertencia"
	OutcomeRejected  Outcome = "rechazado"
)

func (o Outcome) IsValid() bool {
	switch o {
	case OutcomePermitted, OutcomeWarned, OutcomeRejected:
		return true
	}
	return false
}

// Allowed reports whether the member may pass.
func (o Outcome) Allowed() bool {
	return o == OutcomePermitted || o == OutcomeWarned
}

// Level is the alert colour shown to the gatekeeper.
type Level string

const (
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Record is one admission decision. Records are never updated.
type Record struct {
	ID              id.AccessID
	MemberID        id.MemberID
	OccurredAt      time.Time
	Channel         Channel
	Outcome         Outcome
	Level           Level
	Location        string
	DeviceID        string
	ScannedPayload  string
	PayloadVerified bool
	Message         string
	OperatorID      id.UserID
	MemberState     member.State
	MemberBalance   float64
	Latitude        *float64
	Longitude       *float64
	Observations    string
}

// ScanContext describes where and by whom a credential was presented.
type ScanContext struct {
	Location     string
	DeviceID     string
	Latitude     *float64
	Longitude    *float64
	Observations string
}

// QRScan is a presented QR payload.
type QRScan struct {
	Payload string
	ScanContext
}

// ManualEntry records an admission without a credential.
type ManualEntry struct {
	MemberID     id.MemberID
	Location     string
	Observations string
	Force        bool
}

// Result is what the engine returns for a completed decision.
type Result struct {
	Record      *Record
	Member      *member.Member
	Debt        *float64
	DaysOverdue int
}

// Allowed reports whether the member was admitted.
func (r *Result) Allowed() bool {
	return r.Record.Outcome.Allowed()
}

// HistoryFilter narrows history queries. Zero values mean no constraint.
type HistoryFilter struct {
	MemberID id.MemberID
	From     time.Time
	To       time.Time
	Outcome  Outcome
	Limit    int
	Offset   int
}

// Page is a slice of records plus the total number that matched.
type Page struct {
	Records  []Record
	Total    int
	Page     int
	PageSize int
}

// Summary counts decisions over calendar windows ending now.
type Summary struct {
	Today  int
	Week   int
	Month  int
	Recent []Record
}

// HourCount is the number of decisions in one hour of the day.
type HourCount struct {
	Hour  int
	Count int
}

// Statistics describes today's traffic.
type Statistics struct {
	Day       time.Time
	Hourly    []HourCount
	PeakHour  int
	PeakCount int
	Permitted int
	Warned    int
	Rejected  int
}

// Total is the number of decisions counted in the statistics.
func (s *Statistics) Total() int {
	return s.Permitted + s.Warned + s.Rejected
}
