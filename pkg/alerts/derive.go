// Package alerts derives NGO alerts from inventory and donation state.
package alerts

import (
	"fmt"
	"time"

	"sevaconnect-backend/pkg/models"
)

// Thresholds control when inventory items raise alerts.
type Thresholds struct {
	// LowStock raises an alert for quantity strictly below it.
	LowStock int
	// ExpiryWindow raises an alert for items expiring at or before now+window.
	ExpiryWindow time.Duration
}

// DefaultThresholds returns 5 units and 7 days.
func DefaultThresholds() Thresholds {
	return Thresholds{LowStock: 5, ExpiryWindow: 7 * 24 * time.Hour}
}

// ID prefixes. An alert id is the prefix followed by the source record id.
const (
	LowStockPrefix    = "low-stock-"
	ExpiryPrefix      = "expiry-"
	NewDonationPrefix = "new-donation-"
)

// Derive computes the full alert set for the given inventory and donations
// and merges it with previous by id. Read state and creation time survive for
// alerts whose condition still holds; everything else in previous is dropped.
func Derive(now time.Time, inventory []models.InventoryItem, donations []models.Donation, previous []models.Alert, th Thresholds) []models.Alert {
	var fresh []models.Alert

	for _, it := range inventory {
		if it.Quantity < th.LowStock {
			fresh = append(fresh, models.Alert{
				ID:       LowStockPrefix + it.ID,
				NGOID:    it.NGOID,
				Type:     models.AlertLowStock,
				SourceID: it.ID,
				Message:  fmt.Sprintf("%s is running low (%d left)", it.Name, it.Quantity),
			})
		}
	}

	deadline := now.Add(th.ExpiryWindow)
	for _, it := range inventory {
		if it.ExpiryDate == nil || it.ExpiryDate.After(deadline) {
			continue
		}
		msg := fmt.Sprintf("%s expires on %s", it.Name, it.ExpiryDate.Format("2006-01-02"))
		if !it.ExpiryDate.After(now) {
			msg = fmt.Sprintf("%s expired on %s", it.Name, it.ExpiryDate.Format("2006-01-02"))
		}
		fresh = append(fresh, models.Alert{
			ID:       ExpiryPrefix + it.ID,
			NGOID:    it.NGOID,
			Type:     models.AlertExpiry,
			SourceID: it.ID,
			Message:  msg,
		})
	}

	for _, d := range donations {
		if d.Status != models.DonationPending {
			continue
		}
		fresh = append(fresh, models.Alert{
			ID:       NewDonationPrefix + d.ID,
			NGOID:    d.NGOID,
			Type:     models.AlertNewDonation,
			SourceID: d.ID,
			Message:  fmt.Sprintf("%s donated %d x %s", d.DonorName, d.Quantity, d.Item),
		})
	}

	return merge(now, fresh, previous)
}

func merge(now time.Time, fresh, previous []models.Alert) []models.Alert {
	prev := make(map[string]models.Alert, len(previous))
	for _, a := range previous {
		prev[a.ID] = a
	}

	out := make([]models.Alert, 0, len(fresh))
	seen := make(map[string]bool, len(fresh))
	for _, a := range fresh {
		// a source record yields at most one alert per type
		if seen[a.ID] {
			continue
		}
		seen[a.ID] = true
		if old, ok := prev[a.ID]; ok {
			a.IsRead = old.IsRead
			a.CreatedAt = old.CreatedAt
		} else {
			a.CreatedAt = now
		}
		out = append(out, a)
	}
	return out
}

// Count returns the number of alerts per type.
func Count(alerts []models.Alert) map[models.AlertType]int {
	counts := map[models.AlertType]int{
		models.AlertLowStock:    0,
		models.AlertExpiry:      0,
		models.AlertNewDonation: 0,
	}
	for _, a := range alerts {
		counts[a.Type]++
	}
	return counts
}
