package access

import (
	"fmt"

	"clubgate/internal/member"
)

// Decision is the outcome of the admission policy.
type Decision struct {
	Outcome Outcome
	Level   Level
	Message string
}

// EvaluateAdmission applies the admission policy. It is pure and total over
// every state and balance: any state other than active rejects, an active
// member with a non-negative balance passes, a debt up to ceiling passes with a
// warning and a larger debt rejects.
func EvaluateAdmission(state member.State, balance, ceiling float64) Decision {
	switch state {
	case member.StateActive:
	case member.StateDelinquent:
		return reject("access denied: membership delinquent")
	case member.StateSuspended:
		return reject("access denied: membership suspended")
	case member.StateTerminated:
		return reject("access denied: membership terminated")
	default:
		return reject(fmt.Sprintf("access denied: membership state %q", state))
	}

	switch {
	case balance >= 0:
		return Decision{Outcome: OutcomePermitted, Level: LevelSuccess, Message: "access granted"}
	case balance >= -ceiling:
		return Decision{
			Outcome: OutcomeWarned,
			Level:   LevelWarning,
			Message: fmt.Sprintf("access granted with outstanding debt of %.2f", -balance),
		}
	default:
		return reject(fmt.Sprintf("access denied: debt of %.2f exceeds the limit of %.2f", -balance, ceiling))
	}
}

// ForcedAdmission is used when an operator overrides the policy.
func ForcedAdmission(state member.State, balance float64) Decision {
	msg := "access granted by operator override"
	if state != member.StateActive || balance < 0 {
		msg = fmt.Sprintf("access granted by operator override (state %s, balance %.2f)", state, balance)
	}
	return Decision{Outcome: OutcomePermitted, Level: LevelSuccess, Message: msg}
}

// TamperedDecision rejects a payload that failed verification.
func TamperedDecision(reason string) Decision {
	return reject("tampered credential: " + reason)
}

func reject(msg string) Decision {
	return Decision{Outcome: OutcomeRejected, Level: LevelError, Message: msg}
}
