package domain

import "time"

type DenyReason string

const (
	DenyNotFound    DenyReason = "not_found"
	DenyPending     DenyReason = "pending"
	DenyRevoked     DenyReason = "revoked"
	DenyExpired     DenyReason = "expired"
	DenyNotYetValid DenyReason = "not_yet_valid"
)

var denyMessages = map[DenyReason]string{
	DenyNotFound:    "Invalid or not found",
	DenyPending:     "Pass is pending approval",
	DenyRevoked:     "Pass has been revoked",
	DenyExpired:     "Visit date has expired",
	DenyNotYetValid: "Visit date is in the future",
}

func (r DenyReason) Message() string {
	return denyMessages[r]
}

// Verification is the outcome of a scan. A denial is a normal result, not an
// error.
type Verification struct {
	Verified  bool        `json:"verified"`
	Reason    DenyReason  `json:"reason,omitempty"`
	Message   string      `json:"message"`
	Visitor   *PassHolder `json:"visitor,omitempty"`
	CheckedAt time.Time   `json:"checked_at"`
}

func Granted(v *Visitor, at time.Time) *Verification {
	return &Verification{Verified: true, Message: "Access granted", Visitor: v.Holder(), CheckedAt: at}
}

func Denied(reason DenyReason, at time.Time) *Verification {
	return &Verification{Reason: reason, Message: reason.Message(), CheckedAt: at}
}

type VerifyRequest struct {
	ID            string
	GuardUsername string
	// Gate marks a guard scan at the gate, as opposed to a passive lookup.
	Gate bool
}

type ContactField string

const (
	ByID    ContactField = "id"
	ByEmail ContactField = "email"
	ByPhone ContactField = "phone"
)

type RetrieveRequest struct {
	By    ContactField `json:"by"`
	Value string       `json:"value"`
}
