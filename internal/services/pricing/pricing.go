// Package pricing holds the representative price schedule: six unit prices
// for limited (per-GB) plans and six for unlimited (per-subscription) plans,
// one per duration from 1 to 6 months.
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/user/marfanet-crm/internal/models"
)

// Durations supported per service type.
const MaxDurationMonths = 6

// Default schedules in Toman, applied when a representative is created
// without explicit pricing (including creation-on-demand during import).
var (
	defaultLimitedPrices   = []int64{900, 900, 900, 1400, 1500, 1600}
	defaultUnlimitedPrices = []int64{40000, 80000, 120000, 160000, 200000, 240000}
)

// DefaultSchedule returns the default price rows for a new representative.
func DefaultSchedule() []models.RepresentativePrice {
	rows := make([]models.RepresentativePrice, 0, 2*MaxDurationMonths)
	for i, p := range defaultLimitedPrices {
		rows = append(rows, models.RepresentativePrice{
			ServiceType:    models.ServiceTypeLimited,
			DurationMonths: i + 1,
			UnitPrice:      decimal.NewFromInt(p),
		})
	}
	for i, p := range defaultUnlimitedPrices {
		rows = append(rows, models.RepresentativePrice{
			ServiceType:    models.ServiceTypeUnlimited,
			DurationMonths: i + 1,
			UnitPrice:      decimal.NewFromInt(p),
		})
	}
	return rows
}

// Table - a snapshot of one representative's price points, used by the
// invoice builder so that prices read once stay fixed for the whole invoice.
type Table struct {
	prices map[string]decimal.Decimal
}

func key(serviceType string, durationMonths int) string {
	return fmt.Sprintf("%s:%d", serviceType, durationMonths)
}

// NewTable builds a snapshot table from price rows.
func NewTable(rows []models.RepresentativePrice) *Table {
	t := &Table{prices: make(map[string]decimal.Decimal, len(rows))}
	for _, r := range rows {
		t.prices[key(r.ServiceType, r.DurationMonths)] = r.UnitPrice
	}
	return t
}

// UnitPrice returns the configured price for a bucket. The second return is
// false when the representative has no row for that bucket.
func (t *Table) UnitPrice(serviceType string, durationMonths int) (decimal.Decimal, bool) {
	p, ok := t.prices[key(serviceType, durationMonths)]
	return p, ok
}

// Validate checks a submitted schedule: known service types, durations 1..6,
// non-negative prices.
func Validate(rows []models.RepresentativePrice) error {
	for _, r := range rows {
		if r.ServiceType != models.ServiceTypeLimited && r.ServiceType != models.ServiceTypeUnlimited {
			return fmt.Errorf("unknown service type %q", r.ServiceType)
		}
		if r.DurationMonths < 1 || r.DurationMonths > MaxDurationMonths {
			return fmt.Errorf("duration %d out of range 1..%d", r.DurationMonths, MaxDurationMonths)
		}
		if r.UnitPrice.IsNegative() {
			return fmt.Errorf("negative unit price for %s %d month", r.ServiceType, r.DurationMonths)
		}
	}
	return nil
}
