package models

import "time"

// RegistrationStatus NGO注册审核状态
type RegistrationStatus string

const (
	RegistrationPending  RegistrationStatus = "Pending"
	RegistrationApproved RegistrationStatus = "Approved"
	RegistrationRejected RegistrationStatus = "Rejected"
)

// NGORegistration is an NGO's self-registration awaiting admin verification.
type NGORegistration struct {
	ID              string             `json:"id"`
	Name            string             `json:"name" validate:"required"`
	Email           string             `json:"email" validate:"required,email"`
	Contact         string             `json:"contact" validate:"required"`
	Address         string             `json:"address" validate:"required"`
	Category        string             `json:"category" validate:"required"`
	Description     string             `json:"description"`
	Documents       []string           `json:"documents,omitempty"`
	Status          RegistrationStatus `json:"status" validate:"required,oneof=Pending Approved Rejected"`
	RejectionReason string             `json:"rejection_reason,omitempty"`
	SubmittedAt     time.Time          `json:"submitted_at"`
}

func (r NGORegistration) RecordID() string { return r.ID }

func (r *NGORegistration) Stamp(id string, now time.Time) {
	r.ID = id
	r.SubmittedAt = now
	r.Status = RegistrationPending
}

// Donor 捐赠者账户
type Donor struct {
	ID        string    `json:"id"`
	Name      string    `json:"name" validate:"required"`
	Email     string    `json:"email" validate:"required,email"`
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (d Donor) RecordID() string { return d.ID }

func (d *Donor) Stamp(id string, now time.Time) {
	d.ID = id
	d.CreatedAt = now
}
