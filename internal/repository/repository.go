package repository

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/user/marfanet-crm/internal/config"
	"github.com/user/marfanet-crm/internal/models"
	"github.com/user/marfanet-crm/internal/services/commission"
	"github.com/user/marfanet-crm/internal/services/ledger"
	"github.com/user/marfanet-crm/internal/services/pricing"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrRepresentativeInUse - representative still referenced by invoices or
// commission records; deletion would break ledger integrity
var ErrRepresentativeInUse = errors.New("representative has dependent invoices or commission records")

// Repository - database access layer
type Repository struct {
	db *gorm.DB
}

// NewPostgresDB creates the PostgreSQL connection
func NewPostgresDB(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		cfg.Host, cfg.User, cfg.Password, cfg.DBName, cfg.Port, cfg.SSLMode,
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.Collaborator{},
		&models.Representative{},
		&models.RepresentativePrice{},
		&models.InvoiceBatch{},
		&models.Invoice{},
		&models.InvoiceItem{},
		&models.CommissionRecord{},
		&models.CollaboratorPayout{},
		&models.LedgerEntry{},
		&models.AISettings{},
		&models.AIUsageLog{},
		&models.CRMInsight{},
	); err != nil {
		return nil, err
	}

	return db, nil
}

// NewRepository creates a new repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// DB exposes the underlying handle for service wiring
func (r *Repository) DB() *gorm.DB {
	return r.db
}

// === Representatives ===

// GetRepresentatives returns all representatives with pricing and collaborator
func (r *Repository) GetRepresentatives() ([]models.Representative, error) {
	var reps []models.Representative
	if err := r.db.Preload("Prices").Preload("Collaborator").Order("admin_username").Find(&reps).Error; err != nil {
		return nil, err
	}
	return reps, nil
}

// GetRepresentativeByID returns one representative with pricing
func (r *Repository) GetRepresentativeByID(id uint) (*models.Representative, error) {
	var rep models.Representative
	if err := r.db.Preload("Prices").Preload("Collaborator").First(&rep, id).Error; err != nil {
		return nil, err
	}
	return &rep, nil
}

// GetRepresentativeByUsername returns one representative by admin username
func (r *Repository) GetRepresentativeByUsername(username string) (*models.Representative, error) {
	var rep models.Representative
	if err := r.db.Preload("Prices").Where("admin_username = ?", username).First(&rep).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rep, nil
}

// CreateRepresentative creates a representative; when no price rows are given
// the default schedule is seeded
func (r *Repository) CreateRepresentative(rep *models.Representative, prices []models.RepresentativePrice) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(rep).Error; err != nil {
			return err
		}
		if len(prices) == 0 {
			prices = pricing.DefaultSchedule()
		}
		for i := range prices {
			prices[i].ID = 0
			prices[i].RepresentativeID = rep.ID
		}
		return tx.Create(&prices).Error
	})
}

// ResolveRepresentative returns the representative for an admin username,
// creating one with default pricing when absent. The upsert is race-safe:
// a concurrent insert of the same username never yields duplicates.
func (r *Repository) ResolveRepresentative(username string) (*models.Representative, error) {
	var rep models.Representative
	err := r.db.Where("admin_username = ?", username).First(&rep).Error
	if err == nil {
		return &rep, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	rep = models.Representative{
		AdminUsername: username,
		DisplayName:   username,
		Status:        "active",
		SourcingType:  models.SourcingDirect,
	}
	res := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "admin_username"}},
		DoNothing: true,
	}).Create(&rep)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		// Lost the race to a concurrent import; use the winner's row
		if err := r.db.Where("admin_username = ?", username).First(&rep).Error; err != nil {
			return nil, err
		}
		return &rep, nil
	}

	prices := pricing.DefaultSchedule()
	for i := range prices {
		prices[i].RepresentativeID = rep.ID
	}
	if err := r.db.Create(&prices).Error; err != nil {
		return nil, err
	}
	return &rep, nil
}

// UpdateRepresentative updates representative fields
func (r *Repository) UpdateRepresentative(rep *models.Representative) error {
	return r.db.Save(rep).Error
}

// GetRepresentativePrices returns the price rows for one representative
func (r *Repository) GetRepresentativePrices(representativeID uint) ([]models.RepresentativePrice, error) {
	var rows []models.RepresentativePrice
	if err := r.db.Where("representative_id = ?", representativeID).
		Order("service_type, duration_months").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ReplaceRepresentativePrices swaps the full price schedule. Existing invoice
// items keep their snapshotted prices untouched.
func (r *Repository) ReplaceRepresentativePrices(representativeID uint, rows []models.RepresentativePrice) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("representative_id = ?", representativeID).
			Delete(&models.RepresentativePrice{}).Error; err != nil {
			return err
		}
		for i := range rows {
			rows[i].ID = 0
			rows[i].RepresentativeID = representativeID
		}
		return tx.Create(&rows).Error
	})
}

// DeleteRepresentative removes a representative unless invoices or commission
// records reference it
func (r *Repository) DeleteRepresentative(id uint) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var invoices int64
		if err := tx.Model(&models.Invoice{}).Where("representative_id = ?", id).Count(&invoices).Error; err != nil {
			return err
		}
		var commissions int64
		if err := tx.Model(&models.CommissionRecord{}).Where("representative_id = ?", id).Count(&commissions).Error; err != nil {
			return err
		}
		if invoices > 0 || commissions > 0 {
			return fmt.Errorf("%w: %d invoices, %d commission records", ErrRepresentativeInUse, invoices, commissions)
		}
		if err := tx.Where("representative_id = ?", id).Delete(&models.RepresentativePrice{}).Error; err != nil {
			return err
		}
		if err := tx.Where("representative_id = ?", id).Delete(&models.LedgerEntry{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Representative{}, id).Error
	})
}

// === Collaborators ===

// GetCollaborators returns all collaborators
func (r *Repository) GetCollaborators() ([]models.Collaborator, error) {
	var collabs []models.Collaborator
	if err := r.db.Order("code").Find(&collabs).Error; err != nil {
		return nil, err
	}
	return collabs, nil
}

// GetCollaboratorByID returns one collaborator
func (r *Repository) GetCollaboratorByID(id uint) (*models.Collaborator, error) {
	var collab models.Collaborator
	if err := r.db.First(&collab, id).Error; err != nil {
		return nil, err
	}
	return &collab, nil
}

// CreateCollaborator creates a collaborator
func (r *Repository) CreateCollaborator(collab *models.Collaborator) error {
	return r.db.Create(collab).Error
}

// UpdateCollaborator updates profile fields only; balances are mutated
// exclusively through commission and payout transactions
func (r *Repository) UpdateCollaborator(collab *models.Collaborator) error {
	return r.db.Model(&models.Collaborator{}).Where("id = ?", collab.ID).
		Updates(map[string]interface{}{
			"code":                  collab.Code,
			"name":                  collab.Name,
			"phone":                 collab.Phone,
			"telegram_id":           collab.TelegramID,
			"commission_percentage": collab.CommissionPercentage,
		}).Error
}

// === Commission ===

// HasCommissionRecords reports whether the invoice already has commission rows
func (r *Repository) HasCommissionRecords(invoiceID uint) (bool, error) {
	var count int64
	if err := r.db.Model(&models.CommissionRecord{}).Where("invoice_id = ?", invoiceID).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetCommissionRecords returns commission rows for one collaborator, newest first
func (r *Repository) GetCommissionRecords(collaboratorID uint, limit int) ([]models.CommissionRecord, error) {
	var records []models.CommissionRecord
	if err := r.db.Where("collaborator_id = ?", collaboratorID).
		Order("created_at DESC").Limit(limit).Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// SaveCommissionResult applies one invoice's commission atomically: the
// records, the per-item rate/amount updates and the collaborator earnings
// increment happen in one transaction. The increment is an in-database add so
// it cannot race a concurrent payout.
func (r *Repository) SaveCommissionResult(collaboratorID uint, records []models.CommissionRecord, items []models.InvoiceItem, totalCommission decimal.Decimal) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&records).Error; err != nil {
			return err
		}
		for i := range items {
			if items[i].CommissionRate == nil {
				continue
			}
			if err := tx.Model(&models.InvoiceItem{}).Where("id = ?", items[i].ID).
				Updates(map[string]interface{}{
					"commission_rate":   items[i].CommissionRate,
					"commission_amount": items[i].CommissionAmount,
				}).Error; err != nil {
				return err
			}
		}
		return tx.Model(&models.Collaborator{}).Where("id = ?", collaboratorID).
			Updates(map[string]interface{}{
				"current_accumulated_earnings": gorm.Expr("current_accumulated_earnings + ?", totalCommission),
				"total_earnings_to_date":       gorm.Expr("total_earnings_to_date + ?", totalCommission),
			}).Error
	})
}

// CreatePayout records a disbursement. The balance check and the decrement
// run under a row lock so check-then-act cannot be split by a concurrent
// commission credit or payout.
func (r *Repository) CreatePayout(payout *models.CollaboratorPayout) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var collab models.Collaborator
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&collab, payout.CollaboratorID).Error; err != nil {
			return err
		}

		if payout.Amount.GreaterThan(collab.CurrentAccumulatedEarnings) {
			return fmt.Errorf("%w: requested %s, available %s",
				commission.ErrInsufficientBalance,
				payout.Amount.StringFixed(2), collab.CurrentAccumulatedEarnings.StringFixed(2))
		}

		if err := tx.Model(&models.Collaborator{}).Where("id = ?", collab.ID).
			Updates(map[string]interface{}{
				"current_accumulated_earnings": gorm.Expr("current_accumulated_earnings - ?", payout.Amount),
				"total_payouts_to_date":        gorm.Expr("total_payouts_to_date + ?", payout.Amount),
			}).Error; err != nil {
			return err
		}

		return tx.Create(payout).Error
	})
}

// GetPayouts returns payout history for one collaborator, newest first
func (r *Repository) GetPayouts(collaboratorID uint) ([]models.CollaboratorPayout, error) {
	var payouts []models.CollaboratorPayout
	if err := r.db.Where("collaborator_id = ?", collaboratorID).
		Order("payout_date DESC").Find(&payouts).Error; err != nil {
		return nil, err
	}
	return payouts, nil
}

// === Invoice batches ===

// CreateInvoiceBatch creates a batch
func (r *Repository) CreateInvoiceBatch(batch *models.InvoiceBatch) error {
	return r.db.Create(batch).Error
}

// GetBatches returns batches, newest first
func (r *Repository) GetBatches(limit int) ([]models.InvoiceBatch, error) {
	var batches []models.InvoiceBatch
	if err := r.db.Order("created_at DESC").Limit(limit).Find(&batches).Error; err != nil {
		return nil, err
	}
	return batches, nil
}

// GetBatchByID returns one batch with its invoices
func (r *Repository) GetBatchByID(id uint) (*models.InvoiceBatch, error) {
	var batch models.InvoiceBatch
	if err := r.db.Preload("Invoices").First(&batch, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &batch, nil
}

// RecalculateBatchTotals refreshes the denormalized batch aggregates from
// its invoices
func (r *Repository) RecalculateBatchTotals(batchID uint) error {
	var agg struct {
		Total decimal.Decimal
		Count int64
	}
	if err := r.db.Model(&models.Invoice{}).
		Select("COALESCE(SUM(total_amount), 0) as total, COUNT(*) as count").
		Where("batch_id = ?", batchID).Scan(&agg).Error; err != nil {
		return err
	}
	return r.db.Model(&models.InvoiceBatch{}).Where("id = ?", batchID).
		Updates(map[string]interface{}{
			"total_amount":  agg.Total,
			"invoice_count": agg.Count,
		}).Error
}

// === Invoices ===

// CreateInvoiceWithItems persists one invoice, its items and the ledger
// debit in a single transaction: a partially written invoice is never
// observable, and an invoice-number collision rolls everything back.
func (r *Repository) CreateInvoiceWithItems(invoice *models.Invoice, items []models.InvoiceItem) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(invoice).Error; err != nil {
			return err
		}
		for i := range items {
			items[i].InvoiceID = invoice.ID
		}
		if err := tx.Create(&items).Error; err != nil {
			return err
		}
		_, err := r.appendLedgerEntryTx(tx, invoice.RepresentativeID, models.LedgerTypeInvoice,
			invoice.TotalAmount, &invoice.ID, "Invoice "+invoice.InvoiceNumber)
		return err
	})
}

// GetInvoices returns invoices, newest first, optionally filtered by status
// or representative
func (r *Repository) GetInvoices(limit int, status string, representativeID uint) ([]models.Invoice, error) {
	query := r.db.Preload("Representative").Order("created_at DESC").Limit(limit)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if representativeID > 0 {
		query = query.Where("representative_id = ?", representativeID)
	}
	var invoices []models.Invoice
	if err := query.Find(&invoices).Error; err != nil {
		return nil, err
	}
	return invoices, nil
}

// GetInvoiceByID returns one invoice with items, nil when absent
func (r *Repository) GetInvoiceByID(id uint) (*models.Invoice, error) {
	var invoice models.Invoice
	if err := r.db.Preload("Representative").Preload("Items").First(&invoice, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &invoice, nil
}

// GetInvoiceWithItems returns one invoice with items, erroring when absent
func (r *Repository) GetInvoiceWithItems(invoiceID uint) (*models.Invoice, error) {
	var invoice models.Invoice
	if err := r.db.Preload("Items").First(&invoice, invoiceID).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

// MarkInvoicePaid sets status/paidDate and appends the ledger credit in one
// transaction
func (r *Repository) MarkInvoicePaid(invoiceID uint, paidAt time.Time) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var invoice models.Invoice
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&invoice, invoiceID).Error; err != nil {
			return err
		}
		if invoice.Status == models.InvoiceStatusPaid {
			return nil
		}
		if err := tx.Model(&models.Invoice{}).Where("id = ?", invoiceID).
			Updates(map[string]interface{}{
				"status":    models.InvoiceStatusPaid,
				"paid_date": paidAt,
			}).Error; err != nil {
			return err
		}
		_, err := r.appendLedgerEntryTx(tx, invoice.RepresentativeID, models.LedgerTypePayment,
			invoice.TotalAmount, &invoice.ID, "Payment for "+invoice.InvoiceNumber)
		return err
	})
}

// UpdateInvoiceStatus sets the status only (overdue, cancelled)
func (r *Repository) UpdateInvoiceStatus(invoiceID uint, status string) error {
	return r.db.Model(&models.Invoice{}).Where("id = ?", invoiceID).Update("status", status).Error
}

// MarkOverdueInvoices flips pending invoices whose due date has passed
func (r *Repository) MarkOverdueInvoices(asOf time.Time) (int64, error) {
	res := r.db.Model(&models.Invoice{}).
		Where("status = ? AND due_date < ?", models.InvoiceStatusPending, asOf).
		Update("status", models.InvoiceStatusOverdue)
	return res.RowsAffected, res.Error
}

// SetInvoiceTelegramFlag toggles the telegram share flag
func (r *Repository) SetInvoiceTelegramFlag(invoiceID uint, sent bool, sentAt *time.Time) error {
	return r.db.Model(&models.Invoice{}).Where("id = ?", invoiceID).
		Updates(map[string]interface{}{
			"sent_to_telegram":    sent,
			"sent_to_telegram_at": sentAt,
		}).Error
}

// === Financial ledger ===

// appendLedgerEntryTx inserts one ledger entry inside tx. The representative
// row is locked first so concurrent appends for the same representative
// serialize their read of the last running balance.
func (r *Repository) appendLedgerEntryTx(tx *gorm.DB, representativeID uint, transactionType string, amount decimal.Decimal, invoiceID *uint, description string) (*models.LedgerEntry, error) {
	var rep models.Representative
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id").First(&rep, representativeID).Error; err != nil {
		return nil, err
	}

	lastBalance := decimal.Zero
	var last models.LedgerEntry
	err := tx.Where("representative_id = ?", representativeID).
		Order("id DESC").First(&last).Error
	if err == nil {
		lastBalance = last.RunningBalance
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	newBalance, err := ledger.NextBalance(lastBalance, transactionType, amount)
	if err != nil {
		return nil, err
	}

	entry := models.LedgerEntry{
		RepresentativeID: representativeID,
		TransactionType:  transactionType,
		Amount:           amount,
		RunningBalance:   newBalance,
		InvoiceID:        invoiceID,
		Description:      description,
	}
	if err := tx.Create(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

// AppendLedgerEntry appends one entry in its own transaction
func (r *Repository) AppendLedgerEntry(representativeID uint, transactionType string, amount decimal.Decimal, invoiceID *uint, description string) (*models.LedgerEntry, error) {
	var entry *models.LedgerEntry
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var txErr error
		entry, txErr = r.appendLedgerEntryTx(tx, representativeID, transactionType, amount, invoiceID, description)
		return txErr
	})
	return entry, err
}

// GetLastLedgerEntry returns the most recent entry, nil when none exist
func (r *Repository) GetLastLedgerEntry(representativeID uint) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	if err := r.db.Where("representative_id = ?", representativeID).
		Order("id DESC").First(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

// GetLedgerEntries returns the full entry sequence in creation order
func (r *Repository) GetLedgerEntries(representativeID uint) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	if err := r.db.Where("representative_id = ?", representativeID).
		Order("id ASC").Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// === Dashboard ===

// DashboardStats - aggregate figures for the admin dashboard
type DashboardStats struct {
	TotalRepresentatives  int64           `json:"total_representatives"`
	ActiveRepresentatives int64           `json:"active_representatives"`
	PendingInvoiceTotal   decimal.Decimal `json:"pending_invoice_total"`
	OverdueInvoiceTotal   decimal.Decimal `json:"overdue_invoice_total"`
	CollaboratorLiability decimal.Decimal `json:"collaborator_liability"`
	InvoiceCount          int64           `json:"invoice_count"`
}

// GetDashboardStats computes the dashboard aggregates
func (r *Repository) GetDashboardStats() (*DashboardStats, error) {
	stats := &DashboardStats{}

	if err := r.db.Model(&models.Representative{}).Count(&stats.TotalRepresentatives).Error; err != nil {
		return nil, err
	}
	if err := r.db.Model(&models.Representative{}).Where("status = ?", "active").
		Count(&stats.ActiveRepresentatives).Error; err != nil {
		return nil, err
	}
	if err := r.db.Model(&models.Invoice{}).Count(&stats.InvoiceCount).Error; err != nil {
		return nil, err
	}

	var sums struct {
		Pending decimal.Decimal
		Overdue decimal.Decimal
	}
	if err := r.db.Model(&models.Invoice{}).
		Select("COALESCE(SUM(CASE WHEN status = ? THEN total_amount ELSE 0 END), 0) as pending, "+
			"COALESCE(SUM(CASE WHEN status = ? THEN total_amount ELSE 0 END), 0) as overdue",
			models.InvoiceStatusPending, models.InvoiceStatusOverdue).
		Scan(&sums).Error; err != nil {
		return nil, err
	}
	stats.PendingInvoiceTotal = sums.Pending
	stats.OverdueInvoiceTotal = sums.Overdue

	var liability struct {
		Total decimal.Decimal
	}
	if err := r.db.Model(&models.Collaborator{}).
		Select("COALESCE(SUM(current_accumulated_earnings), 0) as total").
		Scan(&liability).Error; err != nil {
		return nil, err
	}
	stats.CollaboratorLiability = liability.Total

	return stats, nil
}

// === AI ===

// GetAISettings returns the AI settings row, nil when not configured yet
func (r *Repository) GetAISettings() (*models.AISettings, error) {
	var settings models.AISettings
	if err := r.db.First(&settings).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &settings, nil
}

// SaveAISettings persists the AI settings
func (r *Repository) SaveAISettings(settings *models.AISettings) error {
	return r.db.Save(settings).Error
}

// CreateAIUsageLog records one AI call
func (r *Repository) CreateAIUsageLog(entry *models.AIUsageLog) error {
	return r.db.Create(entry).Error
}

// GetAIUsage returns recent usage rows
func (r *Repository) GetAIUsage(limit int) ([]models.AIUsageLog, error) {
	var logs []models.AIUsageLog
	if err := r.db.Order("created_at DESC").Limit(limit).Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}

// SaveInsight stores a cached insight
func (r *Repository) SaveInsight(insight *models.CRMInsight) error {
	return r.db.Create(insight).Error
}

// GetValidInsights returns unexpired insights for one representative
func (r *Repository) GetValidInsights(representativeID uint) ([]models.CRMInsight, error) {
	var insights []models.CRMInsight
	if err := r.db.Where("representative_id = ? AND expires_at > ?", representativeID, time.Now()).
		Order("created_at DESC").Find(&insights).Error; err != nil {
		return nil, err
	}
	return insights, nil
}

// ListInsights returns recent unexpired insights across representatives
func (r *Repository) ListInsights(limit int) ([]models.CRMInsight, error) {
	var insights []models.CRMInsight
	if err := r.db.Preload("Representative").Where("expires_at > ?", time.Now()).
		Order("created_at DESC").Limit(limit).Find(&insights).Error; err != nil {
		return nil, err
	}
	return insights, nil
}

// DeleteExpiredInsights removes stale cached insights
func (r *Repository) DeleteExpiredInsights() (int64, error) {
	res := r.db.Where("expires_at <= ?", time.Now()).Delete(&models.CRMInsight{})
	return res.RowsAffected, res.Error
}
