// Package invoice builds invoices from import activity records and manages
// their status lifecycle.
package invoice

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/user/marfanet-crm/internal/models"
	"github.com/user/marfanet-crm/internal/services/importer"
	"github.com/user/marfanet-crm/internal/services/pricing"
)

const dueAfter = 30 * 24 * time.Hour

var (
	// ErrMissingPrice - a non-zero duration bucket has no configured price row
	ErrMissingPrice = errors.New("no unit price configured for duration bucket")

	// ErrInvalidTransition - requested invoice status change is not allowed
	ErrInvalidTransition = errors.New("invalid invoice status transition")

	// ErrInvoiceNotFound - invoice id does not exist
	ErrInvoiceNotFound = errors.New("invoice not found")
)

// Repository - persistence required by the invoice service
type Repository interface {
	GetRepresentativePrices(representativeID uint) ([]models.RepresentativePrice, error)
	CreateInvoiceBatch(batch *models.InvoiceBatch) error
	// CreateInvoiceWithItems persists the invoice, its items and the ledger
	// debit entry in one transaction; a unique-constraint violation on the
	// invoice number surfaces as an error.
	CreateInvoiceWithItems(invoice *models.Invoice, items []models.InvoiceItem) error
	RecalculateBatchTotals(batchID uint) error
	GetInvoiceByID(id uint) (*models.Invoice, error)
	// MarkInvoicePaid sets status/paidDate and appends the ledger credit in
	// one transaction.
	MarkInvoicePaid(invoiceID uint, paidAt time.Time) error
	UpdateInvoiceStatus(invoiceID uint, status string) error
	MarkOverdueInvoices(asOf time.Time) (int64, error)
	SetInvoiceTelegramFlag(invoiceID uint, sent bool, sentAt *time.Time) error
}

// CommissionCalculator - invoked after an invoice is committed. Failures are
// logged and never roll the invoice back; the calculation is idempotent and
// can be re-run later.
type CommissionCalculator interface {
	CalculateForInvoice(invoiceID uint) error
}

// Service - invoice builder and lifecycle manager
type Service struct {
	repo       Repository
	commission CommissionCalculator

	mu  sync.Mutex
	seq int64
}

// NewService creates a new invoice service.
func NewService(repo Repository, commission CommissionCalculator) *Service {
	return &Service{repo: repo, commission: commission}
}

// BatchResult - outcome of building invoices for one import
type BatchResult struct {
	BatchID         uint            `json:"batch_id"`
	InvoicesCreated int             `json:"invoices_created"`
	InvoicesFailed  int             `json:"invoices_failed"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
}

// BuildFromActivities creates one invoice per activity record inside a new
// batch. A failure is fatal only for that representative's invoice; the rest
// of the batch continues.
func (s *Service) BuildFromActivities(activities []importer.Activity, fileName string) (*BatchResult, error) {
	batch := &models.InvoiceBatch{FileName: fileName}
	if err := s.repo.CreateInvoiceBatch(batch); err != nil {
		return nil, fmt.Errorf("create invoice batch: %w", err)
	}

	result := &BatchResult{BatchID: batch.ID, TotalAmount: decimal.Zero}

	for i := range activities {
		inv, err := s.buildInvoice(&activities[i], batch.ID)
		if err != nil {
			// Log raw activity values so the row can be reprocessed manually
			log.Printf("[Invoice] Representative %d (%s): %v (limited=%v unlimited=%v)",
				activities[i].RepresentativeID, activities[i].AdminUsername, err,
				activities[i].LimitedVolumes, activities[i].UnlimitedCounts)
			result.InvoicesFailed++
			continue
		}
		if inv == nil {
			continue
		}

		result.InvoicesCreated++
		result.TotalAmount = result.TotalAmount.Add(inv.TotalAmount)

		// Commission is secondary bookkeeping relative to the invoice of record
		if s.commission != nil {
			if err := s.commission.CalculateForInvoice(inv.ID); err != nil {
				log.Printf("[Commission] Invoice %s: %v", inv.InvoiceNumber, err)
			}
		}
	}

	if err := s.repo.RecalculateBatchTotals(batch.ID); err != nil {
		log.Printf("[Invoice] Batch %d: recalculate totals: %v", batch.ID, err)
	}

	log.Printf("[Invoice] Batch %d: %d invoices created, %d failed, total %s Toman",
		batch.ID, result.InvoicesCreated, result.InvoicesFailed, result.TotalAmount.StringFixed(2))
	return result, nil
}

// buildInvoice creates the invoice and its items for one activity record
// using the representative's current price snapshot. Returns (nil, nil) when
// the activity prices to a zero total.
func (s *Service) buildInvoice(activity *importer.Activity, batchID uint) (*models.Invoice, error) {
	priceRows, err := s.repo.GetRepresentativePrices(activity.RepresentativeID)
	if err != nil {
		return nil, fmt.Errorf("load prices: %w", err)
	}
	table := pricing.NewTable(priceRows)

	items, total, err := buildLineItems(activity, table)
	if err != nil {
		return nil, err
	}

	// Defensive re-check: the parser filters zero-activity rows already
	if len(items) == 0 || total.IsZero() {
		return nil, nil
	}

	now := time.Now()
	inv := &models.Invoice{
		InvoiceNumber:    s.nextInvoiceNumber(now),
		RepresentativeID: activity.RepresentativeID,
		BatchID:          &batchID,
		TotalAmount:      total,
		Status:           models.InvoiceStatusPending,
		IssueDate:        now,
		DueDate:          now.Add(dueAfter),
	}

	if err := s.repo.CreateInvoiceWithItems(inv, items); err != nil {
		return nil, fmt.Errorf("persist invoice %s: %w", inv.InvoiceNumber, err)
	}
	return inv, nil
}

// buildLineItems emits one item per non-zero duration bucket.
func buildLineItems(activity *importer.Activity, table *pricing.Table) ([]models.InvoiceItem, decimal.Decimal, error) {
	var items []models.InvoiceItem
	total := decimal.Zero

	appendItem := func(serviceType string, month int, quantity decimal.Decimal) error {
		if !quantity.IsPositive() {
			return nil
		}
		unitPrice, ok := table.UnitPrice(serviceType, month)
		if !ok {
			return fmt.Errorf("%w: %s %d month", ErrMissingPrice, serviceType, month)
		}
		totalPrice := quantity.Mul(unitPrice)
		items = append(items, models.InvoiceItem{
			ServiceType:    serviceType,
			DurationMonths: month,
			Quantity:       quantity,
			UnitPrice:      unitPrice,
			TotalPrice:     totalPrice,
		})
		total = total.Add(totalPrice)
		return nil
	}

	for m := 0; m < pricing.MaxDurationMonths; m++ {
		if err := appendItem(models.ServiceTypeLimited, m+1, activity.LimitedVolumes[m]); err != nil {
			return nil, decimal.Zero, err
		}
	}
	for m := 0; m < pricing.MaxDurationMonths; m++ {
		if err := appendItem(models.ServiceTypeUnlimited, m+1, activity.UnlimitedCounts[m]); err != nil {
			return nil, decimal.Zero, err
		}
	}

	return items, total, nil
}

// nextInvoiceNumber generates INV-{year}-{6-digit suffix}. The suffix mixes
// the millisecond clock with an in-process counter; real uniqueness is
// enforced by the unique index on invoice_number.
func (s *Service) nextInvoiceNumber(now time.Time) string {
	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.mu.Unlock()

	suffix := (now.UnixNano()/int64(time.Millisecond) + seq) % 1000000
	return fmt.Sprintf("INV-%d-%06d", now.Year(), suffix)
}

// allowed status transitions
var transitions = map[string][]string{
	models.InvoiceStatusPending: {models.InvoiceStatusPaid, models.InvoiceStatusOverdue, models.InvoiceStatusCancelled},
	models.InvoiceStatusOverdue: {models.InvoiceStatusPaid, models.InvoiceStatusCancelled},
}

// CanTransition reports whether a status change is allowed.
func CanTransition(from, to string) bool {
	for _, t := range transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// UpdateStatus applies a status change. Transition to paid records the
// payment time and the ledger credit.
func (s *Service) UpdateStatus(invoiceID uint, status string) error {
	inv, err := s.repo.GetInvoiceByID(invoiceID)
	if err != nil {
		return err
	}
	if inv == nil {
		return fmt.Errorf("%w: id %d", ErrInvoiceNotFound, invoiceID)
	}
	if !CanTransition(inv.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, inv.Status, status)
	}

	if status == models.InvoiceStatusPaid {
		return s.repo.MarkInvoicePaid(invoiceID, time.Now())
	}
	return s.repo.UpdateInvoiceStatus(invoiceID, status)
}

// MarkOverdue flips pending invoices past their due date. Run daily by cron.
func (s *Service) MarkOverdue() (int64, error) {
	return s.repo.MarkOverdueInvoices(time.Now())
}

// SetTelegramShared toggles the telegram share flag.
func (s *Service) SetTelegramShared(invoiceID uint, sent bool) error {
	var at *time.Time
	if sent {
		now := time.Now()
		at = &now
	}
	return s.repo.SetInvoiceTelegramFlag(invoiceID, sent, at)
}
