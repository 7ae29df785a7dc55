package models

import "time"

// VolunteerStatus 志愿者申请状态
type VolunteerStatus string

const (
	VolunteerPending   VolunteerStatus = "Pending"
	VolunteerApproved  VolunteerStatus = "Approved"
	VolunteerRejected  VolunteerStatus = "Rejected"
	VolunteerScheduled VolunteerStatus = "Scheduled"
)

// VolunteerRequest is a donor's request to volunteer in person for an NGO.
type VolunteerRequest struct {
	ID            string          `json:"id"`
	DonorID       string          `json:"donor_id" validate:"required"`
	DonorName     string          `json:"donor_name" validate:"required"`
	DonorEmail    string          `json:"donor_email" validate:"required,email"`
	NGOID         string          `json:"ngo_id" validate:"required"`
	NGOName       string          `json:"ngo_name"`
	RequestDate   time.Time       `json:"request_date"`
	Status        VolunteerStatus `json:"status" validate:"required,oneof=Pending Approved Rejected Scheduled"`
	ScheduledDate *time.Time      `json:"scheduled_date,omitempty"`
	Skills        []string        `json:"skills"`
	Availability  []string        `json:"availability"`
	Notes         string          `json:"notes,omitempty"`
}

func (v VolunteerRequest) RecordID() string { return v.ID }

func (v *VolunteerRequest) Stamp(id string, now time.Time) {
	v.ID = id
	v.RequestDate = now
	if v.Status == "" {
		v.Status = VolunteerPending
	}
}
