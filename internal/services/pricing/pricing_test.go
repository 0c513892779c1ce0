package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/user/marfanet-crm/internal/models"
)

func TestDefaultSchedule(t *testing.T) {
	rows := DefaultSchedule()

	if len(rows) != 2*MaxDurationMonths {
		t.Fatalf("DefaultSchedule() returned %d rows, want %d", len(rows), 2*MaxDurationMonths)
	}

	table := NewTable(rows)

	tests := []struct {
		serviceType string
		months      int
		want        int64
	}{
		{models.ServiceTypeLimited, 1, 900},
		{models.ServiceTypeLimited, 3, 900},
		{models.ServiceTypeLimited, 4, 1400},
		{models.ServiceTypeLimited, 6, 1600},
		{models.ServiceTypeUnlimited, 1, 40000},
		{models.ServiceTypeUnlimited, 6, 240000},
	}

	for _, tt := range tests {
		got, ok := table.UnitPrice(tt.serviceType, tt.months)
		if !ok {
			t.Errorf("UnitPrice(%s, %d) missing", tt.serviceType, tt.months)
			continue
		}
		if !got.Equal(decimal.NewFromInt(tt.want)) {
			t.Errorf("UnitPrice(%s, %d) = %s, want %d", tt.serviceType, tt.months, got, tt.want)
		}
	}
}

func TestTableUnitPriceMissingBucket(t *testing.T) {
	table := NewTable([]models.RepresentativePrice{
		{ServiceType: models.ServiceTypeLimited, DurationMonths: 1, UnitPrice: decimal.NewFromInt(900)},
	})

	if _, ok := table.UnitPrice(models.ServiceTypeLimited, 2); ok {
		t.Error("UnitPrice for unconfigured bucket reported ok")
	}
	if _, ok := table.UnitPrice(models.ServiceTypeUnlimited, 1); ok {
		t.Error("UnitPrice for unconfigured service type reported ok")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		rows    []models.RepresentativePrice
		wantErr bool
	}{
		{
			name: "valid full schedule",
			rows: DefaultSchedule(),
		},
		{
			name: "unknown service type",
			rows: []models.RepresentativePrice{
				{ServiceType: "metered", DurationMonths: 1, UnitPrice: decimal.NewFromInt(100)},
			},
			wantErr: true,
		},
		{
			name: "duration too high",
			rows: []models.RepresentativePrice{
				{ServiceType: models.ServiceTypeLimited, DurationMonths: 7, UnitPrice: decimal.NewFromInt(100)},
			},
			wantErr: true,
		},
		{
			name: "duration zero",
			rows: []models.RepresentativePrice{
				{ServiceType: models.ServiceTypeLimited, DurationMonths: 0, UnitPrice: decimal.NewFromInt(100)},
			},
			wantErr: true,
		},
		{
			name: "negative price",
			rows: []models.RepresentativePrice{
				{ServiceType: models.ServiceTypeUnlimited, DurationMonths: 2, UnitPrice: decimal.NewFromInt(-1)},
			},
			wantErr: true,
		},
		{
			name: "zero price allowed",
			rows: []models.RepresentativePrice{
				{ServiceType: models.ServiceTypeUnlimited, DurationMonths: 2, UnitPrice: decimal.Zero},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.rows)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
