package models

import "time"

// Urgency 需求紧急程度
type Urgency string

const (
	UrgencyHigh   Urgency = "High"
	UrgencyMedium Urgency = "Medium"
	UrgencyLow    Urgency = "Low"
)

// Need is an item an NGO declares it currently requires.
type Need struct {
	ID          string     `json:"id"`
	NGOID       string     `json:"ngo_id" validate:"required"`
	ItemName    string     `json:"item_name" validate:"required"`
	Category    string     `json:"category" validate:"required"`
	Quantity    int        `json:"quantity" validate:"gt=0"`
	Urgency     Urgency    `json:"urgency" validate:"required,oneof=High Medium Low"`
	Description string     `json:"description,omitempty"`
	ExpiryDate  *time.Time `json:"expiry_date,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func (n Need) RecordID() string { return n.ID }

func (n *Need) Stamp(id string, now time.Time) {
	n.ID = id
	n.CreatedAt = now
}
