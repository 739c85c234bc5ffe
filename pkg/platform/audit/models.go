package audit

import (
	"context"
	"time"

	id "clubgate/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose. It selects
// the Kafka partition key prefix and lets consumers route without parsing kinds.
type EventCategory string

const (
	// CategoryCompliance covers accountability events: user management and
	// admission decisions.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers authentication failures, tampering and
	// authorization denials.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine activity such as token refreshes and
	// retention runs.
	CategoryOperations EventCategory = "operations"
)

// Kind enumerates the events the service records.
type Kind string

const (
	// Identity events
	KindLoginSucceeded       Kind = "login_succeeded"
	KindLoginFailed          Kind = "login_failed"
	KindLoginLocked          Kind = "login_locked"
	KindTokenRefreshed       Kind = "token_refreshed"
	KindTokenRefreshFailed   Kind = "token_refresh_failed"
	KindPasswordChanged      Kind = "password_changed"
	KindPasswordChangeFailed Kind = "password_change_failed"
	KindAuthorizationDenied  Kind = "authorization_denied"

	// User management events
	KindUserCreated     Kind = "user_created"
	KindUserRoleChanged Kind = "user_role_changed"
	KindUserActivated   Kind = "user_activated"
	KindUserDeactivated Kind = "user_deactivated"
	KindUserDeleted     Kind = "user_deleted"

	// Member events
	KindMemberCreated Kind = "member_created"

	// Access events
	KindAccessPermitted       Kind = "access_permitted"
	KindAccessWarned          Kind = "access_warned"
	KindAccessDenied          Kind = "access_denied"
	KindCredentialUnparseable Kind = "credential_unparseable"
	KindCredentialUnknown     Kind = "credential_unknown_member"
	KindCredentialTampered    Kind = "credential_tampered"

	// Maintenance events
	KindAuditPurged Kind = "audit_purged"
)

var kindCategories = map[Kind]EventCategory{
	KindLoginFailed:           CategorySecurity,
	KindLoginLocked:           CategorySecurity,
	KindTokenRefreshFailed:    CategorySecurity,
	KindPasswordChangeFailed:  CategorySecurity,
	KindAuthorizationDenied:   CategorySecurity,
	KindCredentialUnparseable: CategorySecurity,
	KindCredentialUnknown:     CategorySecurity,
	KindCredentialTampered:    CategorySecurity,

	KindUserCreated:     CategoryCompliance,
	KindUserRoleChanged: CategoryCompliance,
	KindUserActivated:   CategoryCompliance,
	KindUserDeactivated: CategoryCompliance,
	KindUserDeleted:     CategoryCompliance,
	KindPasswordChanged: CategoryCompliance,
	KindMemberCreated:   CategoryCompliance,
	KindAccessPermitted: CategoryCompliance,
	KindAccessWarned:    CategoryCompliance,
	KindAccessDenied:    CategoryCompliance,

	KindLoginSucceeded: CategoryOperations,
	KindTokenRefreshed: CategoryOperations,
	KindAuditPurged:    CategoryOperations,
}

// Category returns the EventCategory for this kind.
// Unknown kinds default to CategoryOperations.
func (k Kind) Category() EventCategory {
	if cat, ok := kindCategories[k]; ok {
		return cat
	}
	return CategoryOperations
}

// IsValid reports whether k is a known kind.
func (k Kind) IsValid() bool {
	_, ok := kindCategories[k]
	return ok
}

// Severity levels for audit events.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

func (s Severity) IsValid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityError, SeverityCritical:
		return true
	}
	return false
}

// SubjectKind names the entity an event is about.
type SubjectKind string

const (
	SubjectUser   SubjectKind = "user"
	SubjectMember SubjectKind = "member"
	SubjectAccess SubjectKind = "access"
)

// Event is an append-only audit record. ID is assigned by the store.
// ActorID and SubjectID are zero when absent.
type Event struct {
	ID          id.EventID
	Kind        Kind
	Severity    Severity
	Description string
	ActorID     id.UserID
	SubjectKind SubjectKind
	SubjectID   int64
	Details     map[string]any
	IP          string
	UserAgent   string
	RequestID   string
	Timestamp   time.Time
}

// Filter narrows List queries. Zero values mean "no constraint".
type Filter struct {
	Kind        Kind
	Severity    Severity
	ActorID     id.UserID
	SubjectKind SubjectKind
	SubjectID   int64
	From        time.Time
	To          time.Time
	Search      string
	Limit       int
	Offset      int
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event *Event) error
	Get(ctx context.Context, eventID id.EventID) (*Event, error)
	List(ctx context.Context, filter Filter) ([]Event, int, error)
	// ListBefore returns up to limit events older than cutoff with id greater
	// than afterID, ordered by id.
	ListBefore(ctx context.Context, cutoff time.Time, afterID id.EventID, limit int) ([]Event, error)
	DeleteByIDs(ctx context.Context, ids []id.EventID) (int64, error)
}

// Sink mirrors appended events to an external system.
type Sink interface {
	Publish(ctx context.Context, event Event) error
}
