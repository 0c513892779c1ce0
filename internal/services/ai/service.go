package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/user/marfanet-crm/internal/models"
	"golang.org/x/time/rate"
)

var (
	// ErrDisabled - AI features are off or no API key is configured
	ErrDisabled = errors.New("AI service is disabled")

	// ErrRateLimited - hourly AI request budget is exhausted
	ErrRateLimited = errors.New("AI request rate limit exceeded")
)

// Repository - persistence required by the AI service
type Repository interface {
	GetAISettings() (*models.AISettings, error)
	SaveAISettings(settings *models.AISettings) error
	CreateAIUsageLog(entry *models.AIUsageLog) error
	GetAIUsage(limit int) ([]models.AIUsageLog, error)
	SaveInsight(insight *models.CRMInsight) error
	GetValidInsights(representativeID uint) ([]models.CRMInsight, error)
	DeleteExpiredInsights() (int64, error)

	GetRepresentatives() ([]models.Representative, error)
	GetRepresentativeByID(id uint) (*models.Representative, error)
	GetInvoices(limit int, status string, representativeID uint) ([]models.Invoice, error)
	GetLedgerEntries(representativeID uint) ([]models.LedgerEntry, error)
}

// Service - CRM AI assistant (DeepSeek)
type Service struct {
	repo        Repository
	client      *Client
	rateLimiter *rate.Limiter
	settings    *models.AISettings
	mu          sync.RWMutex
}

// NewService creates a new AI service. Call Initialize before use.
func NewService(repo Repository) *Service {
	return &Service{
		repo:        repo,
		rateLimiter: rate.NewLimiter(rate.Every(time.Hour), 1),
	}
}

// Initialize loads settings from the database and builds the client. Missing
// settings are seeded with defaults (disabled).
func (s *Service) Initialize() error {
	settings, err := s.repo.GetAISettings()
	if err != nil {
		log.Printf("[AI] Load settings: %v", err)
		return err
	}

	if settings == nil {
		settings = &models.AISettings{
			Enabled:          false,
			AnalysisModel:    ModelReasoner,
			SupportModel:     ModelChat,
			MaxTokens:        2500,
			RateLimitPerHour: 6,
			CacheTTLHours:    24,
		}
		if err := s.repo.SaveAISettings(settings); err != nil {
			log.Printf("[AI] Save default settings: %v", err)
		}
	}

	s.applySettings(settings)
	if s.IsEnabled() {
		log.Println("[AI] DeepSeek service initialized")
	} else {
		log.Println("[AI] Service disabled (no API key or switched off)")
	}
	return nil
}

// UpdateSettings persists new settings and rebuilds the client and limiter
func (s *Service) UpdateSettings(settings *models.AISettings) error {
	if err := s.repo.SaveAISettings(settings); err != nil {
		return err
	}
	s.applySettings(settings)
	return nil
}

func (s *Service) applySettings(settings *models.AISettings) {
	perHour := settings.RateLimitPerHour
	if perHour <= 0 {
		perHour = 1
	}

	s.mu.Lock()
	s.settings = settings
	// Burst equals the hourly budget so a fresh hour can spend it immediately
	s.rateLimiter = rate.NewLimiter(rate.Every(time.Hour/time.Duration(perHour)), perHour)
	if settings.Enabled && settings.APIKey != "" {
		s.client = NewClient(settings.APIKey, settings.MaxTokens)
	} else {
		s.client = nil
	}
	s.mu.Unlock()
}

// IsEnabled reports whether AI calls can be made
func (s *Service) IsEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client != nil && s.client.IsEnabled() && s.settings != nil && s.settings.Enabled
}

// GetSettings returns the current settings
func (s *Service) GetSettings() *models.AISettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

func (s *Service) supportModel() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.settings != nil && s.settings.SupportModel != "" {
		return s.settings.SupportModel
	}
	return ModelChat
}

func (s *Service) analysisModel() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.settings != nil && s.settings.AnalysisModel != "" {
		return s.settings.AnalysisModel
	}
	return ModelReasoner
}

func (s *Service) cacheTTL() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	hours := 24
	if s.settings != nil && s.settings.CacheTTLHours > 0 {
		hours = s.settings.CacheTTLHours
	}
	return time.Duration(hours) * time.Hour
}

func (s *Service) allow() error {
	if !s.IsEnabled() {
		return ErrDisabled
	}
	s.mu.RLock()
	limiter := s.rateLimiter
	s.mu.RUnlock()
	if !limiter.Allow() {
		return ErrRateLimited
	}
	return nil
}

// === Voice note summaries ===

// VoiceSummary - structured summary of one transcribed voice note
type VoiceSummary struct {
	Summary     string   `json:"summary"`
	Commitments []string `json:"commitments"`
	FollowUp    string   `json:"follow_up"`
}

// SummarizeVoiceNote summarizes a Persian voice note transcript about one
// representative, extracting commitments and follow-ups
func (s *Service) SummarizeVoiceNote(ctx context.Context, representativeID uint, transcript string) (*VoiceSummary, error) {
	if err := s.allow(); err != nil {
		return nil, err
	}

	rep, err := s.repo.GetRepresentativeByID(representativeID)
	if err != nil {
		return nil, fmt.Errorf("load representative %d: %w", representativeID, err)
	}
	balance := s.currentBalance(representativeID)

	userPrompt := fmt.Sprintf(VoiceSummaryUserPromptTemplate,
		rep.DisplayName, rep.AdminUsername, balance.StringFixed(2), transcript)

	result, err := s.generate(ctx, "voice_summary", s.supportModel(), VoiceSummarySystemPrompt, userPrompt)
	if err != nil {
		return nil, err
	}

	var summary VoiceSummary
	if err := unmarshalLoose(result.Response, &summary); err != nil {
		return nil, fmt.Errorf("parse voice summary: %w", err)
	}
	return &summary, nil
}

// === Communication guidance ===

// CommunicationSuggestion - suggested Telegram message and tone advice
type CommunicationSuggestion struct {
	Message string `json:"message"`
	Tone    string `json:"tone"`
	Notes   string `json:"notes"`
}

// SuggestCommunication drafts a culturally appropriate Persian message for
// the described situation with one representative
func (s *Service) SuggestCommunication(ctx context.Context, representativeID uint, situation string) (*CommunicationSuggestion, error) {
	if err := s.allow(); err != nil {
		return nil, err
	}

	rep, err := s.repo.GetRepresentativeByID(representativeID)
	if err != nil {
		return nil, fmt.Errorf("load representative %d: %w", representativeID, err)
	}

	balance := s.currentBalance(representativeID)
	overdue, _ := s.repo.GetInvoices(100, models.InvoiceStatusOverdue, representativeID)
	daysSincePayment := s.daysSinceLastPayment(representativeID)

	userPrompt := fmt.Sprintf(CommunicationUserPromptTemplate,
		rep.DisplayName, rep.StoreName, balance.StringFixed(2),
		len(overdue), daysSincePayment, situation)

	result, err := s.generate(ctx, "communication", s.supportModel(), CommunicationSystemPrompt, userPrompt)
	if err != nil {
		return nil, err
	}

	var suggestion CommunicationSuggestion
	if err := unmarshalLoose(result.Response, &suggestion); err != nil {
		return nil, fmt.Errorf("parse communication suggestion: %w", err)
	}
	return &suggestion, nil
}

// === Representative insights ===

const insightInvoiceWindow = 10

// GetInsights returns cached insights for one representative, generating a
// fresh one when the cache is empty
func (s *Service) GetInsights(ctx context.Context, representativeID uint) ([]models.CRMInsight, error) {
	cached, err := s.repo.GetValidInsights(representativeID)
	if err != nil {
		return nil, err
	}
	if len(cached) > 0 {
		return cached, nil
	}

	insight, err := s.AnalyzeRepresentative(ctx, representativeID)
	if err != nil {
		return nil, err
	}
	return []models.CRMInsight{*insight}, nil
}

// AnalyzeRepresentative runs the analysis model over one representative's
// financial history and caches the resulting insight
func (s *Service) AnalyzeRepresentative(ctx context.Context, representativeID uint) (*models.CRMInsight, error) {
	if err := s.allow(); err != nil {
		return nil, err
	}

	rep, err := s.repo.GetRepresentativeByID(representativeID)
	if err != nil {
		return nil, fmt.Errorf("load representative %d: %w", representativeID, err)
	}

	invoices, err := s.repo.GetInvoices(insightInvoiceWindow, "", representativeID)
	if err != nil {
		return nil, err
	}

	balance := s.currentBalance(representativeID)
	overdue := 0
	invoicedTotal := decimal.Zero
	var totals []string
	for _, inv := range invoices {
		invoicedTotal = invoicedTotal.Add(inv.TotalAmount)
		if inv.Status == models.InvoiceStatusOverdue {
			overdue++
		}
		totals = append(totals, fmt.Sprintf("- %s: %s Toman (%s)",
			inv.IssueDate.Format("2006-01-02"), inv.TotalAmount.StringFixed(2), inv.Status))
	}
	if len(totals) == 0 {
		totals = append(totals, "- no invoices yet")
	}

	lastPayment := "never"
	if d := s.daysSinceLastPayment(representativeID); d >= 0 {
		lastPayment = fmt.Sprintf("%d days ago", d)
	}

	userPrompt := fmt.Sprintf(InsightUserPromptTemplate,
		rep.DisplayName, rep.AdminUsername, rep.Status,
		balance.StringFixed(2), len(invoices), invoicedTotal.StringFixed(2),
		overdue, lastPayment, strings.Join(totals, "\n"))

	result, err := s.generate(ctx, "insight", s.analysisModel(), InsightSystemPrompt, userPrompt)
	if err != nil {
		return nil, err
	}

	insightResp, err := ParseInsightResponse(result.Response)
	if err != nil {
		// The reasoner sometimes puts the JSON in its reasoning stream
		if result.ReasoningContent != "" {
			insightResp, err = ParseInsightResponse(result.ReasoningContent)
		}
		if err != nil {
			log.Printf("[AI] Parse insight for %s: %v", rep.AdminUsername, err)
			return nil, err
		}
	}

	insight := &models.CRMInsight{
		RepresentativeID: rep.ID,
		InsightType:      insightResp.InsightType,
		Severity:         insightResp.Severity,
		Title:            insightResp.Title,
		Description:      insightResp.Description,
		Recommendation:   insightResp.Recommendation,
		ExpiresAt:        time.Now().Add(s.cacheTTL()),
	}
	if err := s.repo.SaveInsight(insight); err != nil {
		return nil, err
	}
	return insight, nil
}

// RefreshInsights analyzes active representatives whose cache has expired.
// Run hourly by cron; stops early when the rate budget runs out.
func (s *Service) RefreshInsights(ctx context.Context) error {
	if !s.IsEnabled() {
		return nil
	}

	if deleted, err := s.repo.DeleteExpiredInsights(); err == nil && deleted > 0 {
		log.Printf("[AI] Dropped %d expired insights", deleted)
	}

	reps, err := s.repo.GetRepresentatives()
	if err != nil {
		return err
	}

	analyzed := 0
	for i := range reps {
		if reps[i].Status != "active" {
			continue
		}
		cached, err := s.repo.GetValidInsights(reps[i].ID)
		if err != nil || len(cached) > 0 {
			continue
		}

		if _, err := s.AnalyzeRepresentative(ctx, reps[i].ID); err != nil {
			if errors.Is(err, ErrRateLimited) {
				log.Printf("[AI] Rate limit reached, analyzed %d representatives", analyzed)
				return nil
			}
			log.Printf("[AI] Analyze representative %s: %v", reps[i].AdminUsername, err)
			continue
		}
		analyzed++
	}

	log.Printf("[AI] Insight refresh done, %d representatives analyzed", analyzed)
	return nil
}

// === Usage accounting ===

// UsageStats - aggregate AI usage figures
type UsageStats struct {
	TotalRequests      int `json:"total_requests"`
	SuccessfulRequests int `json:"successful_requests"`
	FailedRequests     int `json:"failed_requests"`
	TotalTokens        int `json:"total_tokens"`
	InputTokens        int `json:"input_tokens"`
	OutputTokens       int `json:"output_tokens"`
}

// GetUsageStats aggregates recent usage log rows
func (s *Service) GetUsageStats(limit int) (*UsageStats, error) {
	logs, err := s.repo.GetAIUsage(limit)
	if err != nil {
		return nil, err
	}

	stats := &UsageStats{}
	for _, entry := range logs {
		stats.TotalRequests++
		stats.TotalTokens += entry.TotalTokens
		stats.InputTokens += entry.InputTokens
		stats.OutputTokens += entry.OutputTokens
		if entry.Success {
			stats.SuccessfulRequests++
		} else {
			stats.FailedRequests++
		}
	}
	return stats, nil
}

// generate runs one completion and records the usage row
func (s *Service) generate(ctx context.Context, requestType, model, systemPrompt, userPrompt string) (*GenerateResult, error) {
	s.mu.RLock()
	client := s.client
	s.mu.RUnlock()
	if client == nil {
		return nil, ErrDisabled
	}

	result, err := client.Generate(ctx, model, systemPrompt, userPrompt)
	if err != nil {
		s.logUsage(requestType, 0, 0, 0, false, err.Error())
		return nil, err
	}
	s.logUsage(requestType, result.InputTokens, result.OutputTokens, result.TotalTokens, true, "")
	return result, nil
}

func (s *Service) logUsage(requestType string, input, output, total int, success bool, errorMsg string) {
	entry := &models.AIUsageLog{
		RequestType:  requestType,
		InputTokens:  input,
		OutputTokens: output,
		TotalTokens:  total,
		Success:      success,
		ErrorMessage: errorMsg,
	}
	if err := s.repo.CreateAIUsageLog(entry); err != nil {
		log.Printf("[AI] Save usage log: %v", err)
	}
}

// currentBalance reads the latest ledger running balance, zero on any error
func (s *Service) currentBalance(representativeID uint) decimal.Decimal {
	entries, err := s.repo.GetLedgerEntries(representativeID)
	if err != nil || len(entries) == 0 {
		return decimal.Zero
	}
	return entries[len(entries)-1].RunningBalance
}

// daysSinceLastPayment returns -1 when no payment entry exists
func (s *Service) daysSinceLastPayment(representativeID uint) int {
	entries, err := s.repo.GetLedgerEntries(representativeID)
	if err != nil {
		return -1
	}
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].TransactionType == models.LedgerTypePayment {
			return int(time.Since(entries[i].CreatedAt).Hours() / 24)
		}
	}
	return -1
}

// unmarshalLoose parses JSON that may be wrapped in a markdown code block
func unmarshalLoose(response string, v interface{}) error {
	response = strings.TrimSpace(response)
	if err := json.Unmarshal([]byte(response), v); err == nil {
		return nil
	}
	if idx := strings.Index(response, "{"); idx != -1 {
		if end := strings.LastIndex(response, "}"); end > idx {
			return json.Unmarshal([]byte(response[idx:end+1]), v)
		}
	}
	return fmt.Errorf("no JSON object in response")
}
