package models

import (
	"time"

	"bookingcore/internal/domain"
)

// AuditEntry is one status transition. Entries are never updated.
type AuditEntry struct {
	ID             int64                `json:"id"`
	BookingID      int64                `json:"bookingId"`
	Status         domain.BookingStatus `json:"status"`
	Timestamp      time.Time            `json:"timestamp"`
	UpdatedBy      string               `json:"updatedBy"`
	UpdatedByModel domain.ActorRole     `json:"updatedByModel"`
	Reason         string               `json:"reason,omitempty"`
	Notes          string               `json:"notes,omitempty"`
}
