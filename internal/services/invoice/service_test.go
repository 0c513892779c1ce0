package invoice

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/user/marfanet-crm/internal/models"
	"github.com/user/marfanet-crm/internal/services/importer"
	"github.com/user/marfanet-crm/internal/services/pricing"
)

type fakeInvoiceRepo struct {
	prices      map[uint][]models.RepresentativePrice
	batches     []models.InvoiceBatch
	invoices    []models.Invoice
	items       map[uint][]models.InvoiceItem
	ledgerCount int
	failCreate  bool

	recalculated []uint
	statusByID   map[uint]string
	paidAt       map[uint]time.Time
}

func newFakeInvoiceRepo() *fakeInvoiceRepo {
	return &fakeInvoiceRepo{
		prices:     map[uint][]models.RepresentativePrice{},
		items:      map[uint][]models.InvoiceItem{},
		statusByID: map[uint]string{},
		paidAt:     map[uint]time.Time{},
	}
}

func (f *fakeInvoiceRepo) GetRepresentativePrices(repID uint) ([]models.RepresentativePrice, error) {
	return f.prices[repID], nil
}

func (f *fakeInvoiceRepo) CreateInvoiceBatch(batch *models.InvoiceBatch) error {
	batch.ID = uint(len(f.batches) + 1)
	f.batches = append(f.batches, *batch)
	return nil
}

func (f *fakeInvoiceRepo) CreateInvoiceWithItems(invoice *models.Invoice, items []models.InvoiceItem) error {
	if f.failCreate {
		return errors.New("constraint violation")
	}
	invoice.ID = uint(len(f.invoices) + 1)
	f.invoices = append(f.invoices, *invoice)
	f.items[invoice.ID] = items
	f.statusByID[invoice.ID] = invoice.Status
	f.ledgerCount++ // debit entry rides the same transaction
	return nil
}

func (f *fakeInvoiceRepo) RecalculateBatchTotals(batchID uint) error {
	f.recalculated = append(f.recalculated, batchID)
	return nil
}

func (f *fakeInvoiceRepo) GetInvoiceByID(id uint) (*models.Invoice, error) {
	for i := range f.invoices {
		if f.invoices[i].ID == id {
			inv := f.invoices[i]
			inv.Status = f.statusByID[id]
			return &inv, nil
		}
	}
	return nil, nil
}

func (f *fakeInvoiceRepo) MarkInvoicePaid(invoiceID uint, paidAt time.Time) error {
	f.statusByID[invoiceID] = models.InvoiceStatusPaid
	f.paidAt[invoiceID] = paidAt
	f.ledgerCount++ // credit entry rides the same transaction
	return nil
}

func (f *fakeInvoiceRepo) UpdateInvoiceStatus(invoiceID uint, status string) error {
	f.statusByID[invoiceID] = status
	return nil
}

func (f *fakeInvoiceRepo) MarkOverdueInvoices(asOf time.Time) (int64, error) {
	var marked int64
	for i := range f.invoices {
		id := f.invoices[i].ID
		if f.statusByID[id] == models.InvoiceStatusPending && f.invoices[i].DueDate.Before(asOf) {
			f.statusByID[id] = models.InvoiceStatusOverdue
			marked++
		}
	}
	return marked, nil
}

func (f *fakeInvoiceRepo) SetInvoiceTelegramFlag(invoiceID uint, sent bool, sentAt *time.Time) error {
	return nil
}

type fakeCalculator struct {
	calls []uint
	err   error
}

func (f *fakeCalculator) CalculateForInvoice(invoiceID uint) error {
	f.calls = append(f.calls, invoiceID)
	return f.err
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func activityWith(repID uint, limitedMonth int, volume string) importer.Activity {
	a := importer.Activity{AdminUsername: "rep", RepresentativeID: repID}
	a.LimitedVolumes[limitedMonth-1] = dec(volume)
	return a
}

func TestBuildFromActivitiesSingleItem(t *testing.T) {
	repo := newFakeInvoiceRepo()
	repo.prices[1] = pricing.DefaultSchedule()
	calc := &fakeCalculator{}
	svc := NewService(repo, calc)

	// 10 GB of 1-month limited volume at the default 900 Toman/GB
	result, err := svc.BuildFromActivities([]importer.Activity{activityWith(1, 1, "10")}, "usage.json")
	if err != nil {
		t.Fatalf("BuildFromActivities() error = %v", err)
	}

	if result.InvoicesCreated != 1 || result.InvoicesFailed != 0 {
		t.Fatalf("created=%d failed=%d, want 1/0", result.InvoicesCreated, result.InvoicesFailed)
	}
	if !result.TotalAmount.Equal(dec("9000")) {
		t.Errorf("TotalAmount = %s, want 9000", result.TotalAmount)
	}

	inv := repo.invoices[0]
	if !inv.TotalAmount.Equal(dec("9000")) {
		t.Errorf("invoice total = %s, want 9000", inv.TotalAmount)
	}
	if inv.Status != models.InvoiceStatusPending {
		t.Errorf("status = %s, want pending", inv.Status)
	}
	if want := inv.IssueDate.Add(dueAfter); !inv.DueDate.Equal(want) {
		t.Errorf("due date = %v, want issue+30d", inv.DueDate)
	}

	items := repo.items[inv.ID]
	if len(items) != 1 {
		t.Fatalf("item count = %d, want 1", len(items))
	}
	item := items[0]
	if item.ServiceType != models.ServiceTypeLimited || item.DurationMonths != 1 {
		t.Errorf("item bucket = %s/%d", item.ServiceType, item.DurationMonths)
	}
	if !item.Quantity.Equal(dec("10")) || !item.UnitPrice.Equal(dec("900")) || !item.TotalPrice.Equal(dec("9000")) {
		t.Errorf("item = qty %s price %s total %s", item.Quantity, item.UnitPrice, item.TotalPrice)
	}

	// Ledger debit rode the invoice transaction; commission ran after commit
	if repo.ledgerCount != 1 {
		t.Errorf("ledger entries = %d, want 1", repo.ledgerCount)
	}
	if len(calc.calls) != 1 || calc.calls[0] != inv.ID {
		t.Errorf("commission calls = %v, want [%d]", calc.calls, inv.ID)
	}
	if len(repo.recalculated) != 1 {
		t.Errorf("batch totals recalculated %d times, want 1", len(repo.recalculated))
	}
}

func TestBuildFromActivitiesUsesPriceSnapshot(t *testing.T) {
	repo := newFakeInvoiceRepo()
	repo.prices[1] = []models.RepresentativePrice{
		{RepresentativeID: 1, ServiceType: models.ServiceTypeLimited, DurationMonths: 1, UnitPrice: dec("1200")},
	}
	svc := NewService(repo, nil)

	result, err := svc.BuildFromActivities([]importer.Activity{activityWith(1, 1, "5")}, "usage.json")
	if err != nil {
		t.Fatalf("BuildFromActivities() error = %v", err)
	}
	if result.InvoicesCreated != 1 {
		t.Fatalf("created = %d, want 1", result.InvoicesCreated)
	}
	if !result.TotalAmount.Equal(dec("6000")) {
		t.Errorf("TotalAmount = %s, want 6000 (custom 1200/GB)", result.TotalAmount)
	}
}

func TestBuildFromActivitiesMissingPriceFailsThatInvoiceOnly(t *testing.T) {
	repo := newFakeInvoiceRepo()
	repo.prices[1] = pricing.DefaultSchedule()
	// Representative 2 has no price row for the 2-month bucket
	repo.prices[2] = []models.RepresentativePrice{
		{RepresentativeID: 2, ServiceType: models.ServiceTypeLimited, DurationMonths: 1, UnitPrice: dec("900")},
	}
	svc := NewService(repo, nil)

	activities := []importer.Activity{
		activityWith(2, 2, "4"), // missing price: fails
		activityWith(1, 1, "10"),
	}

	result, err := svc.BuildFromActivities(activities, "usage.json")
	if err != nil {
		t.Fatalf("BuildFromActivities() error = %v", err)
	}
	if result.InvoicesCreated != 1 || result.InvoicesFailed != 1 {
		t.Errorf("created=%d failed=%d, want 1/1", result.InvoicesCreated, result.InvoicesFailed)
	}
}

func TestBuildFromActivitiesPersistFailureContinues(t *testing.T) {
	repo := newFakeInvoiceRepo()
	repo.prices[1] = pricing.DefaultSchedule()
	repo.failCreate = true
	svc := NewService(repo, nil)

	result, err := svc.BuildFromActivities([]importer.Activity{activityWith(1, 1, "10")}, "usage.json")
	if err != nil {
		t.Fatalf("BuildFromActivities() error = %v", err)
	}
	if result.InvoicesCreated != 0 || result.InvoicesFailed != 1 {
		t.Errorf("created=%d failed=%d, want 0/1", result.InvoicesCreated, result.InvoicesFailed)
	}
}

func TestBuildLineItemsOrderAndTotals(t *testing.T) {
	table := pricing.NewTable(pricing.DefaultSchedule())

	activity := importer.Activity{RepresentativeID: 1}
	activity.LimitedVolumes[0] = dec("10") // 10 x 900
	activity.LimitedVolumes[3] = dec("2")  // 2 x 1400
	activity.UnlimitedCounts[0] = dec("3") // 3 x 40000

	items, total, err := buildLineItems(&activity, table)
	if err != nil {
		t.Fatalf("buildLineItems() error = %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("item count = %d, want 3", len(items))
	}
	// Limited buckets come before unlimited, in duration order
	if items[0].DurationMonths != 1 || items[1].DurationMonths != 4 || items[2].ServiceType != models.ServiceTypeUnlimited {
		t.Errorf("unexpected item order: %+v", items)
	}
	if !total.Equal(dec("131800")) {
		t.Errorf("total = %s, want 131800", total)
	}
}

func TestInvoiceNumberFormat(t *testing.T) {
	svc := NewService(newFakeInvoiceRepo(), nil)

	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	pattern := regexp.MustCompile(`^INV-2026-\d{6}$`)

	seen := map[string]bool{}
	for i := 0; i < 10; i++ {
		n := svc.nextInvoiceNumber(now)
		if !pattern.MatchString(n) {
			t.Fatalf("invoice number %q does not match INV-{year}-{6 digits}", n)
		}
		if seen[n] {
			t.Fatalf("duplicate invoice number %q within one process", n)
		}
		seen[n] = true
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to string
		want     bool
	}{
		{models.InvoiceStatusPending, models.InvoiceStatusPaid, true},
		{models.InvoiceStatusPending, models.InvoiceStatusOverdue, true},
		{models.InvoiceStatusPending, models.InvoiceStatusCancelled, true},
		{models.InvoiceStatusOverdue, models.InvoiceStatusPaid, true},
		{models.InvoiceStatusOverdue, models.InvoiceStatusCancelled, true},
		{models.InvoiceStatusPaid, models.InvoiceStatusPending, false},
		{models.InvoiceStatusPaid, models.InvoiceStatusCancelled, false},
		{models.InvoiceStatusCancelled, models.InvoiceStatusPaid, false},
		{models.InvoiceStatusOverdue, models.InvoiceStatusPending, false},
	}

	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestUpdateStatus(t *testing.T) {
	repo := newFakeInvoiceRepo()
	repo.prices[1] = pricing.DefaultSchedule()
	svc := NewService(repo, nil)

	if _, err := svc.BuildFromActivities([]importer.Activity{activityWith(1, 1, "10")}, "usage.json"); err != nil {
		t.Fatal(err)
	}
	id := repo.invoices[0].ID
	ledgerBefore := repo.ledgerCount

	// pending -> paid records payment time and the ledger credit
	if err := svc.UpdateStatus(id, models.InvoiceStatusPaid); err != nil {
		t.Fatalf("UpdateStatus(paid) error = %v", err)
	}
	if repo.statusByID[id] != models.InvoiceStatusPaid {
		t.Errorf("status = %s, want paid", repo.statusByID[id])
	}
	if repo.paidAt[id].IsZero() {
		t.Error("paid date not recorded")
	}
	if repo.ledgerCount != ledgerBefore+1 {
		t.Errorf("ledger entries = %d, want %d", repo.ledgerCount, ledgerBefore+1)
	}

	// paid is terminal
	err := svc.UpdateStatus(id, models.InvoiceStatusCancelled)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("UpdateStatus(paid->cancelled) error = %v, want ErrInvalidTransition", err)
	}

	// unknown invoice
	err = svc.UpdateStatus(999, models.InvoiceStatusPaid)
	if !errors.Is(err, ErrInvoiceNotFound) {
		t.Errorf("UpdateStatus(unknown) error = %v, want ErrInvoiceNotFound", err)
	}
}

func TestMarkOverdue(t *testing.T) {
	repo := newFakeInvoiceRepo()
	repo.prices[1] = pricing.DefaultSchedule()
	svc := NewService(repo, nil)

	if _, err := svc.BuildFromActivities([]importer.Activity{activityWith(1, 1, "10")}, "usage.json"); err != nil {
		t.Fatal(err)
	}
	id := repo.invoices[0].ID

	// Not yet due
	marked, err := svc.MarkOverdue()
	if err != nil {
		t.Fatalf("MarkOverdue() error = %v", err)
	}
	if marked != 0 {
		t.Errorf("marked = %d, want 0 before due date", marked)
	}

	// Push the due date into the past
	repo.invoices[0].DueDate = time.Now().Add(-time.Hour)
	marked, err = svc.MarkOverdue()
	if err != nil {
		t.Fatalf("MarkOverdue() error = %v", err)
	}
	if marked != 1 || repo.statusByID[id] != models.InvoiceStatusOverdue {
		t.Errorf("marked=%d status=%s, want 1/overdue", marked, repo.statusByID[id])
	}
}
