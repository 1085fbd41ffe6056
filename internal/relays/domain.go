package relays

import "time"

// RelayStatus enumerates relay provisioning states.
type RelayStatus string

const (
	StatusProvisioning RelayStatus = "provisioning"
	StatusRunning      RelayStatus = "running"
	StatusSuspended    RelayStatus = "suspended"
)

// Relay is one hosted relay instance.
type Relay struct {
	ID          string
	Name        string
	Domain      string
	OwnerPubkey string
	Status      RelayStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
