package lifecycle

import "sevaconnect-backend/pkg/models"

// flow lists the states reachable in one step from each state.
type flow[S ~string] map[S][]S

func (f flow[S]) allows(from, to S) bool {
	for _, s := range f[from] {
		if s == to {
			return true
		}
	}
	return false
}

// next returns the only successor of from, if there is exactly one.
func (f flow[S]) next(from S) (S, bool) {
	if len(f[from]) != 1 {
		var zero S
		return zero, false
	}
	return f[from][0], true
}

var donationFlow = flow[models.DonationStatus]{
	models.DonationPending:   {models.DonationConfirmed},
	models.DonationConfirmed: {models.DonationReceived},
}

var donorDonationFlow = flow[models.DonorDonationStatus]{
	models.DonorDonationPending:   {models.DonorDonationConfirmed},
	models.DonorDonationConfirmed: {models.DonorDonationDelivered},
}

var volunteerFlow = flow[models.VolunteerStatus]{
	models.VolunteerPending:  {models.VolunteerApproved, models.VolunteerRejected, models.VolunteerScheduled},
	models.VolunteerApproved: {models.VolunteerScheduled},
}

var registrationFlow = flow[models.RegistrationStatus]{
	models.RegistrationPending: {models.RegistrationApproved, models.RegistrationRejected},
}
