package models

import (
	"time"

	"github.com/google/uuid"
)

// WorkerStatus is the availability of a worker's service profile.
type WorkerStatus string

const (
	WorkerAvailable WorkerStatus = "available"
	WorkerBusy      WorkerStatus = "busy"
	WorkerOffline   WorkerStatus = "offline"
)

// Valid reports whether s is a known worker status.
func (s WorkerStatus) Valid() bool {
	switch s {
	case WorkerAvailable, WorkerBusy, WorkerOffline:
		return true
	}
	return false
}

// WorkerProfile is a worker's service-offering profile.
type WorkerProfile struct {
	ID        uuid.UUID    `json:"id"`
	WorkerID  uuid.UUID    `json:"worker"`
	Name      string       `json:"name"`
	Status    WorkerStatus `json:"status"`
	CreatedAt time.Time    `json:"createdAt"`
}
