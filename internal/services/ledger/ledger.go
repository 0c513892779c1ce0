// Package ledger maintains the append-only per-representative transaction
// log with running balances (invoice = debit, payment = credit).
package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/user/marfanet-crm/internal/models"
)

var (
	// ErrUnknownTransactionType - transaction type is neither invoice nor payment
	ErrUnknownTransactionType = errors.New("unknown ledger transaction type")

	// ErrBalanceMismatch - a stored running balance does not match the replayed value
	ErrBalanceMismatch = errors.New("stored running balance does not match replay")
)

// NextBalance computes the running balance after applying one entry.
// Invoices increase what the representative owes; payments decrease it.
func NextBalance(last decimal.Decimal, transactionType string, amount decimal.Decimal) (decimal.Decimal, error) {
	switch transactionType {
	case models.LedgerTypeInvoice:
		return last.Add(amount), nil
	case models.LedgerTypePayment:
		return last.Sub(amount), nil
	default:
		return decimal.Zero, fmt.Errorf("%w: %q", ErrUnknownTransactionType, transactionType)
	}
}

// Repository - persistence required by the ledger service. AppendLedgerEntry
// must serialize concurrent appends per representative (the entry's running
// balance is computed under a row lock).
type Repository interface {
	AppendLedgerEntry(representativeID uint, transactionType string, amount decimal.Decimal, invoiceID *uint, description string) (*models.LedgerEntry, error)
	GetLastLedgerEntry(representativeID uint) (*models.LedgerEntry, error)
	GetLedgerEntries(representativeID uint) ([]models.LedgerEntry, error)
}

// Service - financial ledger operations
type Service struct {
	repo Repository
}

// NewService creates a new ledger service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// RecordPayment appends a credit entry for a manual payment.
func (s *Service) RecordPayment(representativeID uint, amount decimal.Decimal, description string) (*models.LedgerEntry, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("payment amount must be positive, got %s", amount)
	}
	return s.repo.AppendLedgerEntry(representativeID, models.LedgerTypePayment, amount, nil, description)
}

// GetBalance returns the latest running balance, zero when the
// representative has no entries.
func (s *Service) GetBalance(representativeID uint) (decimal.Decimal, error) {
	last, err := s.repo.GetLastLedgerEntry(representativeID)
	if err != nil {
		return decimal.Zero, err
	}
	if last == nil {
		return decimal.Zero, nil
	}
	return last.RunningBalance, nil
}

// GetLedger returns the full ordered entry sequence for statement display.
func (s *Service) GetLedger(representativeID uint) ([]models.LedgerEntry, error) {
	return s.repo.GetLedgerEntries(representativeID)
}

// Verify replays the representative's entries from zero and checks every
// stored running balance. Used by the audit endpoint and tests.
func (s *Service) Verify(representativeID uint) error {
	entries, err := s.repo.GetLedgerEntries(representativeID)
	if err != nil {
		return err
	}
	return Replay(entries)
}

// Replay recomputes running balances from zero and compares them with the
// stored values. Entries must be in creation order.
func Replay(entries []models.LedgerEntry) error {
	balance := decimal.Zero
	for i, e := range entries {
		next, err := NextBalance(balance, e.TransactionType, e.Amount)
		if err != nil {
			return fmt.Errorf("entry %d (id %d): %w", i, e.ID, err)
		}
		if !next.Equal(e.RunningBalance) {
			return fmt.Errorf("%w: entry %d (id %d) stored %s, replayed %s",
				ErrBalanceMismatch, i, e.ID, e.RunningBalance, next)
		}
		balance = next
	}
	return nil
}
