package commission

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/user/marfanet-crm/internal/models"
)

// PayoutRepository - persistence required by the payout tracker. CreatePayout
// must perform the balance-sufficiency check and the decrement in one
// transaction under a row lock, returning ErrInsufficientBalance when the
// amount exceeds currentAccumulatedEarnings.
type PayoutRepository interface {
	CreatePayout(payout *models.CollaboratorPayout) error
	GetPayouts(collaboratorID uint) ([]models.CollaboratorPayout, error)
}

// PayoutTracker - records collaborator disbursements
type PayoutTracker struct {
	repo PayoutRepository
}

// NewPayoutTracker creates a new payout tracker.
func NewPayoutTracker(repo PayoutRepository) *PayoutTracker {
	return &PayoutTracker{repo: repo}
}

// RecordPayout records one disbursement. A payout may never drive the
// collaborator's spendable balance negative; an excessive amount is rejected,
// not clamped.
func (t *PayoutTracker) RecordPayout(collaboratorID uint, amount decimal.Decimal, method, adminUsername, notes string) (*models.CollaboratorPayout, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("payout amount must be positive, got %s", amount)
	}

	payout := &models.CollaboratorPayout{
		CollaboratorID: collaboratorID,
		Amount:         amount,
		PayoutDate:     time.Now(),
		Method:         method,
		AdminUsername:  adminUsername,
		Notes:          notes,
	}

	if err := t.repo.CreatePayout(payout); err != nil {
		return nil, err
	}
	return payout, nil
}

// GetPayouts returns a collaborator's payout history, newest first.
func (t *PayoutTracker) GetPayouts(collaboratorID uint) ([]models.CollaboratorPayout, error) {
	return t.repo.GetPayouts(collaboratorID)
}
