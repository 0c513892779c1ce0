// Package handlers wires the HTTP API to the services layer.
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/user/marfanet-crm/internal/models"
	"github.com/user/marfanet-crm/internal/repository"
	"github.com/user/marfanet-crm/internal/services/ai"
	"github.com/user/marfanet-crm/internal/services/auth"
	"github.com/user/marfanet-crm/internal/services/commission"
	"github.com/user/marfanet-crm/internal/services/importer"
	"github.com/user/marfanet-crm/internal/services/invoice"
	"github.com/user/marfanet-crm/internal/services/ledger"
	"github.com/user/marfanet-crm/internal/services/pricing"
)

// Handler - HTTP request handlers
type Handler struct {
	repo     *repository.Repository
	auth     *auth.Service
	importer *importer.Parser
	invoice  *invoice.Service
	ledger   *ledger.Service
	engine   *commission.Engine
	payouts  *commission.PayoutTracker
	ai       *ai.Service
	pdf      *invoice.PDFGenerator
}

// NewHandler creates a new handler
func NewHandler(
	repo *repository.Repository,
	authSvc *auth.Service,
	parser *importer.Parser,
	invoiceSvc *invoice.Service,
	ledgerSvc *ledger.Service,
	engine *commission.Engine,
	payouts *commission.PayoutTracker,
	aiSvc *ai.Service,
	pdf *invoice.PDFGenerator,
) *Handler {
	return &Handler{
		repo:     repo,
		auth:     authSvc,
		importer: parser,
		invoice:  invoiceSvc,
		ledger:   ledgerSvc,
		engine:   engine,
		payouts:  payouts,
		ai:       aiSvc,
		pdf:      pdf,
	}
}

func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID"})
		return 0, false
	}
	return uint(id), true
}

// === Auth ===

// LoginRequest - login credentials
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login authenticates an admin user and returns a session token
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Username and password required"})
		return
	}

	token, user, err := h.auth.Login(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid username or password"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token, "user": user})
}

// Me returns the authenticated user's profile
func (h *Handler) Me(c *gin.Context) {
	userID := c.GetUint("userID")
	user, err := h.repo.GetUserByID(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, user)
}

// === Representatives ===

// GetRepresentatives returns all representatives
func (h *Handler) GetRepresentatives(c *gin.Context) {
	reps, err := h.repo.GetRepresentatives()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, reps)
}

// GetRepresentative returns one representative with its current debt balance
func (h *Handler) GetRepresentative(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	rep, err := h.repo.GetRepresentativeByID(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Representative not found"})
		return
	}

	balance, err := h.ledger.GetBalance(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"representative": rep,
		"debt_balance":   balance,
	})
}

// RepresentativeRequest - create/update payload
type RepresentativeRequest struct {
	AdminUsername           string                       `json:"admin_username" binding:"required"`
	DisplayName             string                       `json:"display_name"`
	Phone                   string                       `json:"phone"`
	TelegramID              string                       `json:"telegram_id"`
	StoreName               string                       `json:"store_name"`
	Status                  string                       `json:"status"`
	SourcingType            string                       `json:"sourcing_type"`
	CollaboratorID          *uint                        `json:"collaborator_id"`
	VolumeCommissionRate    *decimal.Decimal             `json:"volume_commission_rate"`
	UnlimitedCommissionRate *decimal.Decimal             `json:"unlimited_commission_rate"`
	Prices                  []models.RepresentativePrice `json:"prices"`
}

// CreateRepresentative creates a representative with its price schedule
func (h *Handler) CreateRepresentative(c *gin.Context) {
	var req RepresentativeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if len(req.Prices) > 0 {
		if err := pricing.Validate(req.Prices); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if req.SourcingType == models.SourcingCollaborator && req.CollaboratorID == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Collaborator-introduced representative needs a collaborator_id"})
		return
	}

	status := req.Status
	if status == "" {
		status = "active"
	}
	sourcing := req.SourcingType
	if sourcing == "" {
		sourcing = models.SourcingDirect
	}

	rep := &models.Representative{
		AdminUsername:           req.AdminUsername,
		DisplayName:             req.DisplayName,
		Phone:                   req.Phone,
		TelegramID:              req.TelegramID,
		StoreName:               req.StoreName,
		Status:                  status,
		SourcingType:            sourcing,
		CollaboratorID:          req.CollaboratorID,
		VolumeCommissionRate:    req.VolumeCommissionRate,
		UnlimitedCommissionRate: req.UnlimitedCommissionRate,
	}
	if err := h.repo.CreateRepresentative(rep, req.Prices); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, rep)
}

// UpdateRepresentative updates profile and sourcing fields
func (h *Handler) UpdateRepresentative(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	rep, err := h.repo.GetRepresentativeByID(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Representative not found"})
		return
	}

	var req RepresentativeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rep.AdminUsername = req.AdminUsername
	rep.DisplayName = req.DisplayName
	rep.Phone = req.Phone
	rep.TelegramID = req.TelegramID
	rep.StoreName = req.StoreName
	if req.Status != "" {
		rep.Status = req.Status
	}
	if req.SourcingType != "" {
		rep.SourcingType = req.SourcingType
	}
	rep.CollaboratorID = req.CollaboratorID
	rep.VolumeCommissionRate = req.VolumeCommissionRate
	rep.UnlimitedCommissionRate = req.UnlimitedCommissionRate

	if err := h.repo.UpdateRepresentative(rep); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, rep)
}

// DeleteRepresentative removes a representative without financial history
func (h *Handler) DeleteRepresentative(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := h.repo.DeleteRepresentative(id); err != nil {
		if errors.Is(err, repository.ErrRepresentativeInUse) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Representative deleted"})
}

// GetRepresentativePrices returns the price schedule
func (h *Handler) GetRepresentativePrices(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	prices, err := h.repo.GetRepresentativePrices(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, prices)
}

// UpdateRepresentativePrices replaces the price schedule. Existing invoices
// keep their snapshotted prices.
func (h *Handler) UpdateRepresentativePrices(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var rows []models.RepresentativePrice
	if err := c.ShouldBindJSON(&rows); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := pricing.Validate(rows); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.repo.ReplaceRepresentativePrices(id, rows); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Prices updated"})
}

// === Ledger ===

// GetRepresentativeLedger returns the full statement for one representative
func (h *Handler) GetRepresentativeLedger(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	entries, err := h.ledger.GetLedger(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	balance := decimal.Zero
	if len(entries) > 0 {
		balance = entries[len(entries)-1].RunningBalance
	}

	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"balance": balance,
	})
}

// PaymentRequest - manual payment registration
type PaymentRequest struct {
	Amount      decimal.Decimal `json:"amount" binding:"required"`
	Description string          `json:"description"`
}

// RecordPayment registers a manual payment against a representative's debt
func (h *Handler) RecordPayment(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	description := req.Description
	if description == "" {
		description = "Manual payment"
	}

	entry, err := h.ledger.RecordPayment(id, req.Amount, description)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, entry)
}

// VerifyLedger replays the representative's ledger and reports integrity
func (h *Handler) VerifyLedger(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := h.ledger.Verify(id); err != nil {
		c.JSON(http.StatusConflict, gin.H{"valid": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true})
}

// === Collaborators ===

// GetCollaborators returns all collaborators
func (h *Handler) GetCollaborators(c *gin.Context) {
	collabs, err := h.repo.GetCollaborators()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, collabs)
}

// GetCollaborator returns one collaborator with recent commission records
// and payout history
func (h *Handler) GetCollaborator(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	collab, err := h.repo.GetCollaboratorByID(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Collaborator not found"})
		return
	}

	records, err := h.repo.GetCommissionRecords(id, 100)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	payouts, err := h.payouts.GetPayouts(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"collaborator":       collab,
		"commission_records": records,
		"payouts":            payouts,
	})
}

// CollaboratorRequest - create/update payload
type CollaboratorRequest struct {
	Code                 string          `json:"code" binding:"required"`
	Name                 string          `json:"name" binding:"required"`
	Phone                string          `json:"phone"`
	TelegramID           string          `json:"telegram_id"`
	CommissionPercentage decimal.Decimal `json:"commission_percentage"`
}

// CreateCollaborator creates a collaborator
func (h *Handler) CreateCollaborator(c *gin.Context) {
	var req CollaboratorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.CommissionPercentage.IsNegative() || req.CommissionPercentage.GreaterThan(decimal.NewFromInt(100)) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Commission percentage must be between 0 and 100"})
		return
	}

	collab := &models.Collaborator{
		Code:                 req.Code,
		Name:                 req.Name,
		Phone:                req.Phone,
		TelegramID:           req.TelegramID,
		CommissionPercentage: req.CommissionPercentage,
	}
	if err := h.repo.CreateCollaborator(collab); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, collab)
}

// UpdateCollaborator updates profile fields; balances are read-only here
func (h *Handler) UpdateCollaborator(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	collab, err := h.repo.GetCollaboratorByID(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Collaborator not found"})
		return
	}

	var req CollaboratorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.CommissionPercentage.IsNegative() || req.CommissionPercentage.GreaterThan(decimal.NewFromInt(100)) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Commission percentage must be between 0 and 100"})
		return
	}

	collab.Code = req.Code
	collab.Name = req.Name
	collab.Phone = req.Phone
	collab.TelegramID = req.TelegramID
	collab.CommissionPercentage = req.CommissionPercentage

	if err := h.repo.UpdateCollaborator(collab); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, collab)
}

// PayoutRequest - disbursement payload
type PayoutRequest struct {
	Amount decimal.Decimal `json:"amount" binding:"required"`
	Method string          `json:"method"`
	Notes  string          `json:"notes"`
}

// CreatePayout records a disbursement against accumulated earnings
func (h *Handler) CreatePayout(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req PayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	adminUsername := c.GetString("username")
	payout, err := h.payouts.RecordPayout(id, req.Amount, req.Method, adminUsername, req.Notes)
	if err != nil {
		if errors.Is(err, commission.ErrInsufficientBalance) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, payout)
}

// GetPayouts returns a collaborator's payout history
func (h *Handler) GetPayouts(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	payouts, err := h.payouts.GetPayouts(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, payouts)
}

// === Invoices ===

// GetInvoices returns invoices with optional status/representative filters
func (h *Handler) GetInvoices(c *gin.Context) {
	limit := 100
	if l, err := strconv.Atoi(c.Query("limit")); err == nil && l > 0 && l <= 1000 {
		limit = l
	}
	var repID uint
	if r, err := strconv.ParseUint(c.Query("representative_id"), 10, 32); err == nil {
		repID = uint(r)
	}

	invoices, err := h.repo.GetInvoices(limit, c.Query("status"), repID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, invoices)
}

// GetInvoice returns one invoice with items
func (h *Handler) GetInvoice(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	inv, err := h.repo.GetInvoiceByID(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if inv == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Invoice not found"})
		return
	}
	c.JSON(http.StatusOK, inv)
}

// StatusRequest - invoice status change payload
type StatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// UpdateInvoiceStatus applies a status transition
func (h *Handler) UpdateInvoiceStatus(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.invoice.UpdateStatus(id, req.Status); err != nil {
		switch {
		case errors.Is(err, invoice.ErrInvoiceNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, invoice.ErrInvalidTransition):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Status updated"})
}

// DownloadInvoicePDF streams the invoice as a PDF document
func (h *Handler) DownloadInvoicePDF(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	inv, err := h.repo.GetInvoiceByID(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if inv == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Invoice not found"})
		return
	}

	pdfBytes, err := h.pdf.GenerateInvoicePDF(inv, &inv.Representative)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s.pdf", inv.InvoiceNumber))
	c.Data(http.StatusOK, "application/pdf", pdfBytes)
}

// TelegramFlagRequest - telegram share flag payload
type TelegramFlagRequest struct {
	Sent bool `json:"sent"`
}

// SetInvoiceTelegramFlag marks an invoice as shared (or not) on Telegram
func (h *Handler) SetInvoiceTelegramFlag(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req TelegramFlagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.invoice.SetTelegramShared(id, req.Sent); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Telegram flag updated"})
}

// === Batches ===

// GetBatches returns recent invoice batches
func (h *Handler) GetBatches(c *gin.Context) {
	limit := 50
	if l, err := strconv.Atoi(c.Query("limit")); err == nil && l > 0 && l <= 500 {
		limit = l
	}

	batches, err := h.repo.GetBatches(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, batches)
}

// GetBatch returns one batch with its invoices
func (h *Handler) GetBatch(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	batch, err := h.repo.GetBatchByID(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if batch == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Batch not found"})
		return
	}
	c.JSON(http.StatusOK, batch)
}

// === Dashboard ===

// GetDashboard returns aggregate figures for the admin dashboard
func (h *Handler) GetDashboard(c *gin.Context) {
	stats, err := h.repo.GetDashboardStats()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}
