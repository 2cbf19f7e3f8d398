// Package model defines the core domain models used throughout the application.
package model

import (
	"time"

	"github.com/google/uuid"
)

// ProcessStatus is the lifecycle state of a vehicle visit.
type ProcessStatus string

// Process status constants.
const (
	StatusPending  ProcessStatus = "Pending"
	StatusFinished ProcessStatus = "Finished"
)

// Display formats for a record's canonical date and arrival time.
const (
	CreationDateLayout = "01/02/2006"
	ArrivalTimeLayout  = "15:04"
	FormDateLayout     = "2006-01-02"
)

// ProcessRecord tracks one vehicle from WaitIn to WaitOut.
// WaitOut is nil exactly while Status is StatusPending.
type ProcessRecord struct {
	CreatedAt     time.Time     `json:"createdAt"`
	FinishedAt    *time.Time    `json:"finishedAt,omitempty"`
	WaitOut       *WaitOutForm  `json:"waitOut"`
	TicketNumber  string        `json:"tokenNumber"`
	VehicleNumber string        `json:"vehicleNumber"`
	CreationDate  string        `json:"date"`
	ArrivalTime   string        `json:"arrivalTime"`
	Status        ProcessStatus `json:"status"`
	WaitIn        WaitInForm    `json:"waitIn"`
	ID            uuid.UUID     `json:"id"`
}

// IsFinished reports whether the WaitOut step has been recorded.
func (r *ProcessRecord) IsFinished() bool {
	return r.Status == StatusFinished
}

// Clone returns a copy that shares no mutable state with r.
func (r ProcessRecord) Clone() ProcessRecord {
	out := r
	if r.WaitOut != nil {
		wo := *r.WaitOut
		out.WaitOut = &wo
	}
	if r.FinishedAt != nil {
		ft := *r.FinishedAt
		out.FinishedAt = &ft
	}
	return out
}
