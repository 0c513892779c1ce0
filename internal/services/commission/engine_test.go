package commission

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/user/marfanet-crm/internal/models"
)

type fakeEngineRepo struct {
	invoice       *models.Invoice
	rep           *models.Representative
	collab        *models.Collaborator
	hasRecords    bool
	savedRecords  []models.CommissionRecord
	savedItems    []models.InvoiceItem
	savedTotal    decimal.Decimal
	saveCallCount int
}

func (f *fakeEngineRepo) GetInvoiceWithItems(invoiceID uint) (*models.Invoice, error) {
	if f.invoice == nil {
		return nil, errors.New("invoice not found")
	}
	return f.invoice, nil
}

func (f *fakeEngineRepo) GetRepresentativeByID(id uint) (*models.Representative, error) {
	return f.rep, nil
}

func (f *fakeEngineRepo) GetCollaboratorByID(id uint) (*models.Collaborator, error) {
	if f.collab == nil {
		return nil, errors.New("not found")
	}
	return f.collab, nil
}

func (f *fakeEngineRepo) HasCommissionRecords(invoiceID uint) (bool, error) {
	return f.hasRecords, nil
}

func (f *fakeEngineRepo) SaveCommissionResult(collaboratorID uint, records []models.CommissionRecord, items []models.InvoiceItem, total decimal.Decimal) error {
	f.saveCallCount++
	f.savedRecords = records
	f.savedItems = items
	f.savedTotal = total
	return nil
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func collabRep(collabID uint) *models.Representative {
	return &models.Representative{
		ID:             2,
		SourcingType:   models.SourcingCollaborator,
		CollaboratorID: &collabID,
	}
}

func TestRevenueTypeFor(t *testing.T) {
	if got := RevenueTypeFor(models.ServiceTypeLimited); got != models.RevenueTypeVolume {
		t.Errorf("RevenueTypeFor(limited) = %s, want volume", got)
	}
	if got := RevenueTypeFor(models.ServiceTypeUnlimited); got != models.RevenueTypeUnlimited {
		t.Errorf("RevenueTypeFor(unlimited) = %s, want unlimited", got)
	}
}

func TestEffectiveRate(t *testing.T) {
	collab := &models.Collaborator{CommissionPercentage: dec("10")}
	override := dec("15")

	tests := []struct {
		name        string
		rep         *models.Representative
		revenueType string
		want        string
	}{
		{"default volume rate", &models.Representative{}, models.RevenueTypeVolume, "10"},
		{"default unlimited rate", &models.Representative{}, models.RevenueTypeUnlimited, "10"},
		{"volume override", &models.Representative{VolumeCommissionRate: &override}, models.RevenueTypeVolume, "15"},
		{"volume override leaves unlimited alone", &models.Representative{VolumeCommissionRate: &override}, models.RevenueTypeUnlimited, "10"},
		{"unlimited override", &models.Representative{UnlimitedCommissionRate: &override}, models.RevenueTypeUnlimited, "15"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EffectiveRate(tt.rep, collab, tt.revenueType)
			if !got.Equal(dec(tt.want)) {
				t.Errorf("EffectiveRate() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestAmountRounding(t *testing.T) {
	tests := []struct {
		base string
		rate string
		want string
	}{
		{"9000", "10", "900"},
		{"100", "12.5", "12.5"},
		{"33.33", "10", "3.33"},   // 3.333 rounds down
		{"33.35", "10", "3.34"},   // 3.335 rounds half up
		{"10.05", "10", "1.01"},   // 1.005 rounds half up
		{"0", "10", "0"},
	}

	for _, tt := range tests {
		got := Amount(dec(tt.base), dec(tt.rate))
		if !got.Equal(dec(tt.want)) {
			t.Errorf("Amount(%s, %s) = %s, want %s", tt.base, tt.rate, got, tt.want)
		}
	}
}

func TestCalculateForInvoiceBasic(t *testing.T) {
	// 10 GB x 900 Toman limited volume, collaborator rate 10%
	repo := &fakeEngineRepo{
		invoice: &models.Invoice{
			ID:               1,
			InvoiceNumber:    "INV-2026-000001",
			RepresentativeID: 2,
			TotalAmount:      dec("9000"),
			Items: []models.InvoiceItem{
				{ID: 11, ServiceType: models.ServiceTypeLimited, DurationMonths: 1, TotalPrice: dec("9000")},
			},
		},
		rep:    collabRep(3),
		collab: &models.Collaborator{ID: 3, Code: "C1", CommissionPercentage: dec("10")},
	}

	engine := NewEngine(repo)
	if err := engine.CalculateForInvoice(1); err != nil {
		t.Fatalf("CalculateForInvoice() error = %v", err)
	}

	if len(repo.savedRecords) != 1 {
		t.Fatalf("saved %d records, want 1", len(repo.savedRecords))
	}
	rec := repo.savedRecords[0]
	if rec.RevenueType != models.RevenueTypeVolume {
		t.Errorf("RevenueType = %s, want volume", rec.RevenueType)
	}
	if !rec.BaseRevenueAmount.Equal(dec("9000")) {
		t.Errorf("BaseRevenueAmount = %s, want 9000", rec.BaseRevenueAmount)
	}
	if !rec.CommissionAmount.Equal(dec("900")) {
		t.Errorf("CommissionAmount = %s, want 900", rec.CommissionAmount)
	}
	if !repo.savedTotal.Equal(dec("900")) {
		t.Errorf("total commission = %s, want 900", repo.savedTotal)
	}

	// Per-item rate and amount stamped for audit
	if repo.savedItems[0].CommissionRate == nil || !repo.savedItems[0].CommissionRate.Equal(dec("10")) {
		t.Error("item commission rate not stamped")
	}
	if repo.savedItems[0].CommissionAmount == nil || !repo.savedItems[0].CommissionAmount.Equal(dec("900")) {
		t.Error("item commission amount not stamped")
	}
}

func TestCalculateForInvoiceSplitsRevenueTypes(t *testing.T) {
	volumeRate := dec("10")
	unlimitedRate := dec("5")
	rep := collabRep(3)
	rep.VolumeCommissionRate = &volumeRate
	rep.UnlimitedCommissionRate = &unlimitedRate

	repo := &fakeEngineRepo{
		invoice: &models.Invoice{
			ID:               1,
			RepresentativeID: 2,
			Items: []models.InvoiceItem{
				{ID: 1, ServiceType: models.ServiceTypeLimited, TotalPrice: dec("9000")},
				{ID: 2, ServiceType: models.ServiceTypeLimited, TotalPrice: dec("1400")},
				{ID: 3, ServiceType: models.ServiceTypeUnlimited, TotalPrice: dec("40000")},
			},
		},
		rep:    rep,
		collab: &models.Collaborator{ID: 3, CommissionPercentage: dec("20")},
	}

	engine := NewEngine(repo)
	if err := engine.CalculateForInvoice(1); err != nil {
		t.Fatalf("CalculateForInvoice() error = %v", err)
	}

	if len(repo.savedRecords) != 2 {
		t.Fatalf("saved %d records, want 2", len(repo.savedRecords))
	}

	// Records come in fixed order: volume first
	volume, unlimited := repo.savedRecords[0], repo.savedRecords[1]
	if volume.RevenueType != models.RevenueTypeVolume || unlimited.RevenueType != models.RevenueTypeUnlimited {
		t.Fatalf("record order = %s,%s", volume.RevenueType, unlimited.RevenueType)
	}
	if !volume.BaseRevenueAmount.Equal(dec("10400")) || !volume.CommissionAmount.Equal(dec("1040")) {
		t.Errorf("volume record = base %s amount %s, want 10400/1040", volume.BaseRevenueAmount, volume.CommissionAmount)
	}
	if !unlimited.BaseRevenueAmount.Equal(dec("40000")) || !unlimited.CommissionAmount.Equal(dec("2000")) {
		t.Errorf("unlimited record = base %s amount %s, want 40000/2000", unlimited.BaseRevenueAmount, unlimited.CommissionAmount)
	}
	if !repo.savedTotal.Equal(dec("3040")) {
		t.Errorf("total = %s, want 3040", repo.savedTotal)
	}
}

func TestCalculateForInvoiceDirectRepIsNoop(t *testing.T) {
	repo := &fakeEngineRepo{
		invoice: &models.Invoice{ID: 1, RepresentativeID: 2, Items: []models.InvoiceItem{
			{ServiceType: models.ServiceTypeLimited, TotalPrice: dec("9000")},
		}},
		rep: &models.Representative{ID: 2, SourcingType: models.SourcingDirect},
	}

	engine := NewEngine(repo)
	if err := engine.CalculateForInvoice(1); err != nil {
		t.Fatalf("CalculateForInvoice() error = %v", err)
	}
	if repo.saveCallCount != 0 {
		t.Error("commission saved for direct representative")
	}
}

func TestCalculateForInvoiceIdempotent(t *testing.T) {
	repo := &fakeEngineRepo{
		invoice: &models.Invoice{ID: 1, RepresentativeID: 2, Items: []models.InvoiceItem{
			{ServiceType: models.ServiceTypeLimited, TotalPrice: dec("9000")},
		}},
		rep:        collabRep(3),
		collab:     &models.Collaborator{ID: 3, CommissionPercentage: dec("10")},
		hasRecords: true,
	}

	engine := NewEngine(repo)
	if err := engine.CalculateForInvoice(1); err != nil {
		t.Fatalf("CalculateForInvoice() error = %v", err)
	}
	if repo.saveCallCount != 0 {
		t.Error("commission saved twice for the same invoice")
	}
}

func TestCalculateForInvoiceMissingCollaborator(t *testing.T) {
	repo := &fakeEngineRepo{
		invoice: &models.Invoice{ID: 1, RepresentativeID: 2, Items: []models.InvoiceItem{
			{ServiceType: models.ServiceTypeLimited, TotalPrice: dec("9000")},
		}},
		rep: collabRep(99),
	}

	engine := NewEngine(repo)
	err := engine.CalculateForInvoice(1)
	if !errors.Is(err, ErrCollaboratorNotFound) {
		t.Errorf("CalculateForInvoice() error = %v, want ErrCollaboratorNotFound", err)
	}
}
