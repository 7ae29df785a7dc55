package models

import "time"

// DonationStatus NGO侧捐赠状态：Pending → Confirmed → Received
type DonationStatus string

const (
	DonationPending   DonationStatus = "Pending"
	DonationConfirmed DonationStatus = "Confirmed"
	DonationReceived  DonationStatus = "Received"
)

// Donation is the NGO-side record of an incoming donation.
type Donation struct {
	ID        string         `json:"id"`
	NGOID     string         `json:"ngo_id,omitempty"`
	DonorName string         `json:"donor_name" validate:"required"`
	Item      string         `json:"item" validate:"required"`
	Quantity  int            `json:"quantity" validate:"gt=0"`
	Status    DonationStatus `json:"status" validate:"required,oneof=Pending Confirmed Received"`
	DonatedAt time.Time      `json:"donated_at"`
}

func (d Donation) RecordID() string { return d.ID }

func (d *Donation) Stamp(id string, now time.Time) {
	d.ID = id
	d.DonatedAt = now
	if d.Status == "" {
		d.Status = DonationPending
	}
}

// DonorDonationStatus 捐赠者侧捐赠状态：Pending → Confirmed → Delivered
type DonorDonationStatus string

const (
	DonorDonationPending   DonorDonationStatus = "Pending"
	DonorDonationConfirmed DonorDonationStatus = "Confirmed"
	DonorDonationDelivered DonorDonationStatus = "Delivered"
)

// DonorDonation is the donor-side view of a pledged donation.
type DonorDonation struct {
	ID       string              `json:"id"`
	DonorID  string              `json:"donor_id" validate:"required"`
	NGOID    string              `json:"ngo_id" validate:"required"`
	NGOName  string              `json:"ngo_name"`
	Item     string              `json:"item" validate:"required"`
	Quantity int                 `json:"quantity" validate:"gt=0"`
	Notes    string              `json:"notes,omitempty"`
	Status   DonorDonationStatus `json:"status" validate:"required,oneof=Pending Confirmed Delivered"`
	Date     time.Time           `json:"date"`
}

func (d DonorDonation) RecordID() string { return d.ID }

func (d *DonorDonation) Stamp(id string, now time.Time) {
	d.ID = id
	d.Date = now
	if d.Status == "" {
		d.Status = DonorDonationPending
	}
}
