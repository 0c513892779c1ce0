// Package commission computes and records collaborator commission for
// invoices of collaborator-introduced representatives, and tracks payouts
// against accumulated earnings.
package commission

import (
	"errors"
	"fmt"
	"log"

	"github.com/shopspring/decimal"
	"github.com/user/marfanet-crm/internal/models"
)

var (
	// ErrInsufficientBalance - payout exceeds the collaborator's accumulated earnings
	ErrInsufficientBalance = errors.New("payout amount exceeds accumulated earnings")

	// ErrCollaboratorNotFound - representative references a missing collaborator
	ErrCollaboratorNotFound = errors.New("collaborator not found")
)

var oneHundred = decimal.NewFromInt(100)

// RevenueTypeFor maps an invoice item service type to a commission revenue type.
func RevenueTypeFor(serviceType string) string {
	if serviceType == models.ServiceTypeLimited {
		return models.RevenueTypeVolume
	}
	return models.RevenueTypeUnlimited
}

// EffectiveRate returns the commission rate for one revenue type: the
// representative's override when present, else the collaborator's default.
func EffectiveRate(rep *models.Representative, collab *models.Collaborator, revenueType string) decimal.Decimal {
	switch revenueType {
	case models.RevenueTypeVolume:
		if rep.VolumeCommissionRate != nil {
			return *rep.VolumeCommissionRate
		}
	case models.RevenueTypeUnlimited:
		if rep.UnlimitedCommissionRate != nil {
			return *rep.UnlimitedCommissionRate
		}
	}
	return collab.CommissionPercentage
}

// Amount computes base * rate / 100 rounded half-up to 2 decimals.
func Amount(base, rate decimal.Decimal) decimal.Decimal {
	return base.Mul(rate).Div(oneHundred).Round(2)
}

// Repository - persistence required by the engine. SaveResult must apply the
// records, the item updates and the collaborator earnings increment in one
// transaction; the increment must be an atomic in-database add so it cannot
// race a concurrent payout.
type Repository interface {
	GetInvoiceWithItems(invoiceID uint) (*models.Invoice, error)
	GetRepresentativeByID(id uint) (*models.Representative, error)
	GetCollaboratorByID(id uint) (*models.Collaborator, error)
	HasCommissionRecords(invoiceID uint) (bool, error)
	SaveCommissionResult(collaboratorID uint, records []models.CommissionRecord, items []models.InvoiceItem, totalCommission decimal.Decimal) error
}

// Engine - commission engine
type Engine struct {
	repo Repository
}

// NewEngine creates a new commission engine.
func NewEngine(repo Repository) *Engine {
	return &Engine{repo: repo}
}

// CalculateForInvoice computes commission for one invoice. A representative
// without a collaborator is a no-op, not an error. The calculation is
// idempotent: when records for the invoice already exist nothing is written.
func (e *Engine) CalculateForInvoice(invoiceID uint) error {
	invoice, err := e.repo.GetInvoiceWithItems(invoiceID)
	if err != nil {
		return fmt.Errorf("load invoice %d: %w", invoiceID, err)
	}

	rep, err := e.repo.GetRepresentativeByID(invoice.RepresentativeID)
	if err != nil {
		return fmt.Errorf("load representative %d: %w", invoice.RepresentativeID, err)
	}

	if rep.SourcingType != models.SourcingCollaborator || rep.CollaboratorID == nil {
		return nil
	}

	exists, err := e.repo.HasCommissionRecords(invoiceID)
	if err != nil {
		return fmt.Errorf("check existing records: %w", err)
	}
	if exists {
		log.Printf("[Commission] Invoice %s already has commission records, skipping", invoice.InvoiceNumber)
		return nil
	}

	collab, err := e.repo.GetCollaboratorByID(*rep.CollaboratorID)
	if err != nil {
		return fmt.Errorf("%w: id %d: %v", ErrCollaboratorNotFound, *rep.CollaboratorID, err)
	}

	// Per-item amounts are rounded individually and stored on the items;
	// the per-revenue-type records carry the sums of those amounts.
	type aggregate struct {
		base   decimal.Decimal
		amount decimal.Decimal
		rate   decimal.Decimal
	}
	aggregates := map[string]*aggregate{}

	items := invoice.Items
	for i := range items {
		revenueType := RevenueTypeFor(items[i].ServiceType)
		rate := EffectiveRate(rep, collab, revenueType)
		amount := Amount(items[i].TotalPrice, rate)

		rateCopy := rate
		amountCopy := amount
		items[i].CommissionRate = &rateCopy
		items[i].CommissionAmount = &amountCopy

		agg, ok := aggregates[revenueType]
		if !ok {
			agg = &aggregate{base: decimal.Zero, amount: decimal.Zero, rate: rate}
			aggregates[revenueType] = agg
		}
		agg.base = agg.base.Add(items[i].TotalPrice)
		agg.amount = agg.amount.Add(amount)
	}

	var records []models.CommissionRecord
	totalCommission := decimal.Zero
	for _, revenueType := range []string{models.RevenueTypeVolume, models.RevenueTypeUnlimited} {
		agg, ok := aggregates[revenueType]
		if !ok {
			continue
		}
		records = append(records, models.CommissionRecord{
			CollaboratorID:    collab.ID,
			RepresentativeID:  rep.ID,
			InvoiceID:         invoice.ID,
			BatchID:           invoice.BatchID,
			RevenueType:       revenueType,
			BaseRevenueAmount: agg.base,
			CommissionRate:    agg.rate,
			CommissionAmount:  agg.amount,
		})
		totalCommission = totalCommission.Add(agg.amount)
	}

	if len(records) == 0 {
		return nil
	}

	if err := e.repo.SaveCommissionResult(collab.ID, records, items, totalCommission); err != nil {
		return fmt.Errorf("save commission for invoice %s: %w", invoice.InvoiceNumber, err)
	}

	log.Printf("[Commission] Invoice %s: %s Toman commission for collaborator %s",
		invoice.InvoiceNumber, totalCommission.StringFixed(2), collab.Code)
	return nil
}
