package billing

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// PlanType enumerates plan tags carried by periods and payments.
type PlanType string

const (
	PlanStandard PlanType = "standard"
	PlanPremium  PlanType = "premium"
	// PlanCustom marks a one-time top-up. It never defines a recurring rate.
	PlanCustom PlanType = "custom"
)

// Recurring reports whether the plan type defines a recurring monthly rate.
func (p PlanType) Recurring() bool {
	return p == PlanStandard || p == PlanPremium
}

// NormalizePlanType maps a free-form payment tag onto a PlanType. Anything
// that is not standard or premium is treated as a custom top-up label.
func NormalizePlanType(tag string) PlanType {
	switch p := PlanType(strings.ToLower(strings.TrimSpace(tag))); p {
	case PlanStandard, PlanPremium:
		return p
	default:
		return PlanCustom
	}
}

// Key identifies one ledger track. An empty Subscriber means the track for
// the relay's own hosting cost; otherwise it is the per-subscriber track.
type Key struct {
	RelayID    string
	Subscriber string
}

// OwnerKey returns the ledger key for a relay's own hosting cost.
func OwnerKey(relayID string) Key {
	return Key{RelayID: relayID}
}

// SubscriberKey returns the ledger key for one subscriber on a relay.
func SubscriberKey(relayID, pubkey string) Key {
	return Key{RelayID: relayID, Subscriber: pubkey}
}

// String renders the key for logs and cache keys.
func (k Key) String() string {
	if k.Subscriber == "" {
		return "relay:" + k.RelayID
	}
	return "relay:" + k.RelayID + ":sub:" + k.Subscriber
}

// PlanPeriod is one row of the append-only plan ledger: a contiguous span
// during which a single plan and payment were in effect for a key.
type PlanPeriod struct {
	ID               uuid.UUID
	RelayID          string
	SubscriberPubkey string
	PlanType         PlanType
	AmountPaid       int64
	StartedAt        time.Time
	EndedAt          *time.Time
	PaymentID        *uuid.UUID
	CreatedAt        time.Time
}

// Key returns the ledger key this period belongs to.
func (p PlanPeriod) Key() Key {
	return Key{RelayID: p.RelayID, Subscriber: p.SubscriberPubkey}
}

// Active reports whether this period is still open.
func (p PlanPeriod) Active() bool {
	return p.EndedAt == nil
}

// TransitionInput describes a plan change to be recorded.
type TransitionInput struct {
	Key        Key
	PlanType   PlanType
	AmountPaid int64
	PaymentID  *uuid.UUID
	// StartedAt defaults to the current time when zero. Backfill and tests
	// use it to backdate periods.
	StartedAt time.Time
}
