package ledger

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/user/marfanet-crm/internal/models"
)

type fakeLedgerRepo struct {
	entries map[uint][]models.LedgerEntry
	nextID  uint
}

func newFakeLedgerRepo() *fakeLedgerRepo {
	return &fakeLedgerRepo{entries: map[uint][]models.LedgerEntry{}, nextID: 1}
}

func (f *fakeLedgerRepo) AppendLedgerEntry(repID uint, transactionType string, amount decimal.Decimal, invoiceID *uint, description string) (*models.LedgerEntry, error) {
	last := decimal.Zero
	if entries := f.entries[repID]; len(entries) > 0 {
		last = entries[len(entries)-1].RunningBalance
	}
	balance, err := NextBalance(last, transactionType, amount)
	if err != nil {
		return nil, err
	}
	entry := models.LedgerEntry{
		ID:               f.nextID,
		RepresentativeID: repID,
		TransactionType:  transactionType,
		Amount:           amount,
		RunningBalance:   balance,
		InvoiceID:        invoiceID,
		Description:      description,
	}
	f.nextID++
	f.entries[repID] = append(f.entries[repID], entry)
	return &entry, nil
}

func (f *fakeLedgerRepo) GetLastLedgerEntry(repID uint) (*models.LedgerEntry, error) {
	entries := f.entries[repID]
	if len(entries) == 0 {
		return nil, nil
	}
	e := entries[len(entries)-1]
	return &e, nil
}

func (f *fakeLedgerRepo) GetLedgerEntries(repID uint) ([]models.LedgerEntry, error) {
	return f.entries[repID], nil
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestNextBalance(t *testing.T) {
	tests := []struct {
		name            string
		last            string
		transactionType string
		amount          string
		want            string
		wantErr         error
	}{
		{"invoice adds debt", "0", models.LedgerTypeInvoice, "9000", "9000", nil},
		{"payment reduces debt", "9000", models.LedgerTypePayment, "4000", "5000", nil},
		{"payment can overshoot into credit", "100", models.LedgerTypePayment, "250.50", "-150.50", nil},
		{"unknown type rejected", "0", "refund", "10", "0", ErrUnknownTransactionType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextBalance(dec(tt.last), tt.transactionType, dec(tt.amount))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("NextBalance() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && !got.Equal(dec(tt.want)) {
				t.Errorf("NextBalance() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestReplay(t *testing.T) {
	valid := []models.LedgerEntry{
		{ID: 1, TransactionType: models.LedgerTypeInvoice, Amount: dec("9000"), RunningBalance: dec("9000")},
		{ID: 2, TransactionType: models.LedgerTypeInvoice, Amount: dec("1500"), RunningBalance: dec("10500")},
		{ID: 3, TransactionType: models.LedgerTypePayment, Amount: dec("10500"), RunningBalance: dec("0")},
	}
	if err := Replay(valid); err != nil {
		t.Errorf("Replay(valid) error = %v", err)
	}

	tampered := []models.LedgerEntry{
		{ID: 1, TransactionType: models.LedgerTypeInvoice, Amount: dec("9000"), RunningBalance: dec("9000")},
		{ID: 2, TransactionType: models.LedgerTypePayment, Amount: dec("4000"), RunningBalance: dec("5001")},
	}
	if err := Replay(tampered); !errors.Is(err, ErrBalanceMismatch) {
		t.Errorf("Replay(tampered) error = %v, want ErrBalanceMismatch", err)
	}

	if err := Replay(nil); err != nil {
		t.Errorf("Replay(empty) error = %v", err)
	}
}

func TestServiceBalanceAndPayments(t *testing.T) {
	repo := newFakeLedgerRepo()
	svc := NewService(repo)

	// No entries yet: zero balance
	balance, err := svc.GetBalance(1)
	if err != nil {
		t.Fatalf("GetBalance() error = %v", err)
	}
	if !balance.IsZero() {
		t.Errorf("GetBalance() = %s, want 0", balance)
	}

	invID := uint(7)
	if _, err := repo.AppendLedgerEntry(1, models.LedgerTypeInvoice, dec("9000"), &invID, "Invoice INV-2026-000001"); err != nil {
		t.Fatal(err)
	}

	entry, err := svc.RecordPayment(1, dec("4000"), "card transfer")
	if err != nil {
		t.Fatalf("RecordPayment() error = %v", err)
	}
	if !entry.RunningBalance.Equal(dec("5000")) {
		t.Errorf("RunningBalance = %s, want 5000", entry.RunningBalance)
	}

	if _, err := svc.RecordPayment(1, dec("0"), "nothing"); err == nil {
		t.Error("RecordPayment(0) succeeded, want error")
	}
	if _, err := svc.RecordPayment(1, dec("-10"), "negative"); err == nil {
		t.Error("RecordPayment(-10) succeeded, want error")
	}

	if err := svc.Verify(1); err != nil {
		t.Errorf("Verify() error = %v", err)
	}
}
