package models

import "time"

// DonatedItemsCategory 捐赠入库物品的固定分类
const DonatedItemsCategory = "Donated Items"

// InventoryItem is stock currently held by an NGO.
type InventoryItem struct {
	ID         string     `json:"id"`
	NGOID      string     `json:"ngo_id,omitempty"`
	Name       string     `json:"name" validate:"required"`
	Category   string     `json:"category" validate:"required"`
	Quantity   int        `json:"quantity" validate:"gte=0"`
	ExpiryDate *time.Time `json:"expiry_date,omitempty"`
	AddedAt    time.Time  `json:"added_at"`
}

func (i InventoryItem) RecordID() string { return i.ID }

func (i *InventoryItem) Stamp(id string, now time.Time) {
	i.ID = id
	i.AddedAt = now
}
