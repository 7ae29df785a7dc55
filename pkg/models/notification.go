package models

import "time"

// NotificationType 通知事件类型
type NotificationType string

const (
	NotificationNewNGO      NotificationType = "new_ngo"
	NotificationNewDonor    NotificationType = "new_donor"
	NotificationNewDonation NotificationType = "new_donation"
)

// Notification is an append-only admin event record. Only IsRead ever changes.
type Notification struct {
	ID        string           `json:"id"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Timestamp time.Time        `json:"timestamp"`
	IsRead    bool             `json:"is_read"`
	RelatedID string           `json:"related_id,omitempty"`
}

func (n Notification) RecordID() string { return n.ID }

func (n *Notification) Stamp(id string, now time.Time) {
	n.ID = id
	n.Timestamp = now
}
