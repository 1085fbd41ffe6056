package payments

import (
	"time"

	"github.com/google/uuid"
)

// PaymentRecord is one settled or pending Lightning payment as written by
// the wallet integration. This package only reads them; the invoice flow
// that creates rows lives outside the billing core.
type PaymentRecord struct {
	ID               uuid.UUID
	RelayID          string
	SubscriberPubkey string
	AmountSats       int64
	// PlanType is the free-form order tag: "standard", "premium", or any
	// label the top-up flow attached.
	PlanType  string
	Paid      bool
	PaidAt    *time.Time
	CreatedAt time.Time
}

// Key names one billed entity as stored on payment rows. An empty
// SubscriberPubkey means the relay owner's own hosting payments.
type Key struct {
	RelayID          string
	SubscriberPubkey string
}
