package models

import "time"

// AlertType 告警类型
type AlertType string

const (
	AlertLowStock    AlertType = "Low Stock"
	AlertExpiry      AlertType = "Expiry"
	AlertNewDonation AlertType = "New Donation"
)

// Alert is a derived notice about an NGO's inventory or donations.
// The ID is deterministic in the source entity, so read state survives recomputation.
type Alert struct {
	ID        string    `json:"id"`
	NGOID     string    `json:"ngo_id,omitempty"`
	Type      AlertType `json:"type"`
	SourceID  string    `json:"source_id"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
	IsRead    bool      `json:"is_read"`
}

func (a Alert) RecordID() string { return a.ID }

func (a *Alert) Stamp(id string, now time.Time) {
	if a.ID == "" {
		a.ID = id
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
}
