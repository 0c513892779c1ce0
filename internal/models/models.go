package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Service types for subscription line items.
const (
	ServiceTypeLimited   = "limited"   // volume-based, priced per GB
	ServiceTypeUnlimited = "unlimited" // count-based, priced per subscription
)

// Revenue types used by commission records.
const (
	RevenueTypeVolume    = "volume"
	RevenueTypeUnlimited = "unlimited"
)

// Representative sourcing.
const (
	SourcingDirect       = "direct"
	SourcingCollaborator = "collaborator_introduced"
)

// Invoice statuses.
const (
	InvoiceStatusPending   = "pending"
	InvoiceStatusPaid      = "paid"
	InvoiceStatusOverdue   = "overdue"
	InvoiceStatusCancelled = "cancelled"
)

// Ledger transaction types.
const (
	LedgerTypeInvoice = "invoice" // debit: representative owes more
	LedgerTypePayment = "payment" // credit: representative paid
)

// Representative - a reseller (shop) selling subscription access
type Representative struct {
	ID            uint   `gorm:"primaryKey" json:"id"`
	AdminUsername string `gorm:"size:100;uniqueIndex;not null" json:"admin_username"`
	DisplayName   string `gorm:"size:255" json:"display_name"`
	Phone         string `gorm:"size:50" json:"phone"`
	TelegramID    string `gorm:"size:100" json:"telegram_id"`
	StoreName     string `gorm:"size:255" json:"store_name"`
	Status        string `gorm:"size:20;default:'active'" json:"status"` // "active", "inactive", "suspended"

	// Sourcing: representatives introduced by a collaborator generate commission
	SourcingType   string `gorm:"size:30;default:'direct'" json:"sourcing_type"`
	CollaboratorID *uint  `gorm:"index" json:"collaborator_id,omitempty"`

	// Optional per-representative override rates; when nil the collaborator's
	// default commissionPercentage applies
	VolumeCommissionRate    *decimal.Decimal `gorm:"type:decimal(5,2)" json:"volume_commission_rate,omitempty"`
	UnlimitedCommissionRate *decimal.Decimal `gorm:"type:decimal(5,2)" json:"unlimited_commission_rate,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	Prices       []RepresentativePrice `gorm:"foreignKey:RepresentativeID" json:"prices,omitempty"`
	Collaborator *Collaborator         `gorm:"foreignKey:CollaboratorID" json:"collaborator,omitempty"`
}

// RepresentativePrice - one unit price point keyed by (service type, duration).
// Replaces the legacy 12-column price table.
type RepresentativePrice struct {
	ID               uint            `gorm:"primaryKey" json:"id"`
	RepresentativeID uint            `gorm:"not null;uniqueIndex:idx_rep_price_unique" json:"representative_id"`
	ServiceType      string          `gorm:"size:10;not null;uniqueIndex:idx_rep_price_unique" json:"service_type"`
	DurationMonths   int             `gorm:"not null;uniqueIndex:idx_rep_price_unique" json:"duration_months"` // 1..6
	UnitPrice        decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"unit_price"`                    // Toman
}

// Collaborator - an affiliate who introduces representatives and earns commission
type Collaborator struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	Code       string `gorm:"size:50;uniqueIndex;not null" json:"code"`
	Name       string `gorm:"size:255;not null" json:"name"`
	Phone      string `gorm:"size:50" json:"phone"`
	TelegramID string `gorm:"size:100" json:"telegram_id"`

	// Default commission rate (%) when the representative carries no override
	CommissionPercentage decimal.Decimal `gorm:"type:decimal(5,2);not null;default:0" json:"commission_percentage"`

	// Invariant: totalEarningsToDate - totalPayoutsToDate == currentAccumulatedEarnings
	CurrentAccumulatedEarnings decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"current_accumulated_earnings"`
	TotalEarningsToDate        decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"total_earnings_to_date"`
	TotalPayoutsToDate         decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"total_payouts_to_date"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// InvoiceBatch - invoices produced by one bulk import operation
type InvoiceBatch struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	FileName     string          `gorm:"size:255" json:"file_name"`
	TotalAmount  decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"total_amount"`
	InvoiceCount int             `gorm:"not null;default:0" json:"invoice_count"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`

	Invoices []Invoice `gorm:"foreignKey:BatchID" json:"invoices,omitempty"`
}

// Invoice - one bill for a representative. Immutable after creation except
// status, paidDate and the telegram share flags.
type Invoice struct {
	ID               uint            `gorm:"primaryKey" json:"id"`
	InvoiceNumber    string          `gorm:"size:30;uniqueIndex;not null" json:"invoice_number"` // INV-{year}-{6 digits}
	RepresentativeID uint            `gorm:"not null;index" json:"representative_id"`
	BatchID          *uint           `gorm:"index" json:"batch_id,omitempty"`
	TotalAmount      decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"total_amount"`
	Status           string          `gorm:"size:20;default:'pending'" json:"status"` // "pending", "paid", "overdue", "cancelled"
	IssueDate        time.Time       `gorm:"not null" json:"issue_date"`
	DueDate          time.Time       `gorm:"not null" json:"due_date"`
	PaidDate         *time.Time      `json:"paid_date,omitempty"`
	SentToTelegram   bool            `gorm:"default:false" json:"sent_to_telegram"`
	SentToTelegramAt *time.Time      `json:"sent_to_telegram_at,omitempty"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`

	Representative Representative `gorm:"foreignKey:RepresentativeID" json:"representative,omitempty"`
	Items          []InvoiceItem  `gorm:"foreignKey:InvoiceID" json:"items,omitempty"`
}

// InvoiceItem - one priced duration bucket. unitPrice is a snapshot of the
// representative's price at invoice creation, never a live reference.
type InvoiceItem struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	InvoiceID      uint            `gorm:"not null;index" json:"invoice_id"`
	ServiceType    string          `gorm:"size:10;not null" json:"service_type"`
	DurationMonths int             `gorm:"not null" json:"duration_months"`
	Quantity       decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"quantity"` // GB for limited, count for unlimited
	UnitPrice      decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"unit_price"`
	TotalPrice     decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"total_price"`

	// Filled by the commission engine when the representative is collaborator-introduced
	CommissionRate   *decimal.Decimal `gorm:"type:decimal(5,2)" json:"commission_rate,omitempty"`
	CommissionAmount *decimal.Decimal `gorm:"type:decimal(20,2)" json:"commission_amount,omitempty"`
}

// CommissionRecord - append-only commission row, one per (invoice, revenue type).
// The composite unique index doubles as the idempotency guard.
type CommissionRecord struct {
	ID                uint            `gorm:"primaryKey" json:"id"`
	CollaboratorID    uint            `gorm:"not null;index" json:"collaborator_id"`
	RepresentativeID  uint            `gorm:"not null;index" json:"representative_id"`
	InvoiceID         uint            `gorm:"not null;index;uniqueIndex:idx_commission_unique" json:"invoice_id"`
	BatchID           *uint           `gorm:"index" json:"batch_id,omitempty"`
	RevenueType       string          `gorm:"size:10;not null;uniqueIndex:idx_commission_unique" json:"revenue_type"` // "volume", "unlimited"
	BaseRevenueAmount decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"base_revenue_amount"`
	CommissionRate    decimal.Decimal `gorm:"type:decimal(5,2);not null" json:"commission_rate"`
	CommissionAmount  decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"commission_amount"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// CollaboratorPayout - one disbursement against accumulated earnings
type CollaboratorPayout struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	CollaboratorID uint            `gorm:"not null;index" json:"collaborator_id"`
	Amount         decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	PayoutDate     time.Time       `gorm:"not null" json:"payout_date"`
	Method         string          `gorm:"size:50" json:"method"` // "card", "bank_transfer", "cash"
	AdminUsername  string          `gorm:"size:100" json:"admin_username"`
	Notes          string          `gorm:"type:text" json:"notes,omitempty"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// LedgerEntry - append-only per-representative transaction log entry.
// runningBalance = previous entry's balance +amount (invoice) or -amount (payment).
type LedgerEntry struct {
	ID               uint            `gorm:"primaryKey" json:"id"`
	RepresentativeID uint            `gorm:"not null;index" json:"representative_id"`
	TransactionType  string          `gorm:"size:10;not null" json:"transaction_type"` // "invoice", "payment"
	Amount           decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	RunningBalance   decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"running_balance"`
	InvoiceID        *uint           `gorm:"index" json:"invoice_id,omitempty"`
	Description      string          `gorm:"size:255" json:"description"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// === AI CRM ===

// AISettings - AI provider settings (edited through the admin UI)
type AISettings struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	Enabled          bool      `gorm:"default:false" json:"enabled"`
	APIKey           string    `gorm:"size:255" json:"api_key,omitempty"`
	AnalysisModel    string    `gorm:"size:50;default:'deepseek-reasoner'" json:"analysis_model"` // slow model for insights
	SupportModel     string    `gorm:"size:50;default:'deepseek-chat'" json:"support_model"`      // fast model for summaries
	MaxTokens        int       `gorm:"default:2500" json:"max_tokens"`
	RateLimitPerHour int       `gorm:"default:6" json:"rate_limit_per_hour"`
	CacheTTLHours    int       `gorm:"default:24" json:"cache_ttl_hours"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// AIUsageLog - token accounting per AI call
type AIUsageLog struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	RequestType  string    `gorm:"size:50" json:"request_type"` // "voice_summary", "communication", "insight"
	InputTokens  int       `gorm:"default:0" json:"input_tokens"`
	OutputTokens int       `gorm:"default:0" json:"output_tokens"`
	TotalTokens  int       `gorm:"default:0" json:"total_tokens"`
	Success      bool      `gorm:"default:true" json:"success"`
	ErrorMessage string    `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// CRMInsight - cached AI analysis for one representative
type CRMInsight struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	RepresentativeID uint      `gorm:"not null;index" json:"representative_id"`
	InsightType      string    `gorm:"size:50;not null" json:"insight_type"` // "churn_risk", "upsell", "financial_impact"
	Severity         string    `gorm:"size:20;not null" json:"severity"`     // "info", "warning", "critical"
	Title            string    `gorm:"size:255;not null" json:"title"`
	Description      string    `gorm:"type:text" json:"description"`
	Recommendation   string    `gorm:"type:text" json:"recommendation,omitempty"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
	ExpiresAt        time.Time `gorm:"not null;index" json:"expires_at"`

	Representative Representative `gorm:"foreignKey:RepresentativeID" json:"representative,omitempty"`
}
