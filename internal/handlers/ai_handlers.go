package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/user/marfanet-crm/internal/models"
	"github.com/user/marfanet-crm/internal/services/ai"
)

func (h *Handler) aiError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ai.ErrDisabled):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "AI features are disabled"})
	case errors.Is(err, ai.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "AI request limit reached, try again later"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// GetAISettings returns the AI configuration (API key masked)
func (h *Handler) GetAISettings(c *gin.Context) {
	settings := h.ai.GetSettings()
	if settings == nil {
		c.JSON(http.StatusOK, gin.H{"enabled": false})
		return
	}

	masked := *settings
	if masked.APIKey != "" {
		masked.APIKey = "••••••••"
	}
	c.JSON(http.StatusOK, masked)
}

// AISettingsRequest - AI configuration payload
type AISettingsRequest struct {
	Enabled          bool   `json:"enabled"`
	APIKey           string `json:"api_key"`
	AnalysisModel    string `json:"analysis_model"`
	SupportModel     string `json:"support_model"`
	MaxTokens        int    `json:"max_tokens"`
	RateLimitPerHour int    `json:"rate_limit_per_hour"`
	CacheTTLHours    int    `json:"cache_ttl_hours"`
}

// UpdateAISettings saves the AI configuration and rebuilds the client
func (h *Handler) UpdateAISettings(c *gin.Context) {
	var req AISettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	settings := h.ai.GetSettings()
	if settings == nil {
		settings = &models.AISettings{}
	}

	settings.Enabled = req.Enabled
	// An empty api_key in the payload keeps the stored key
	if req.APIKey != "" && req.APIKey != "••••••••" {
		settings.APIKey = req.APIKey
	}
	if req.AnalysisModel != "" {
		settings.AnalysisModel = req.AnalysisModel
	}
	if req.SupportModel != "" {
		settings.SupportModel = req.SupportModel
	}
	if req.MaxTokens > 0 {
		settings.MaxTokens = req.MaxTokens
	}
	if req.RateLimitPerHour > 0 {
		settings.RateLimitPerHour = req.RateLimitPerHour
	}
	if req.CacheTTLHours > 0 {
		settings.CacheTTLHours = req.CacheTTLHours
	}

	if err := h.ai.UpdateSettings(settings); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "AI settings updated"})
}

// VoiceSummaryRequest - transcribed voice note payload
type VoiceSummaryRequest struct {
	RepresentativeID uint   `json:"representative_id" binding:"required"`
	Transcript       string `json:"transcript" binding:"required"`
}

// SummarizeVoiceNote summarizes a Persian voice note about a representative
func (h *Handler) SummarizeVoiceNote(c *gin.Context) {
	var req VoiceSummaryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	summary, err := h.ai.SummarizeVoiceNote(c.Request.Context(), req.RepresentativeID, req.Transcript)
	if err != nil {
		h.aiError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// CommunicationRequest - message drafting payload
type CommunicationRequest struct {
	RepresentativeID uint   `json:"representative_id" binding:"required"`
	Situation        string `json:"situation" binding:"required"`
}

// SuggestCommunication drafts a culturally appropriate Telegram message
func (h *Handler) SuggestCommunication(c *gin.Context) {
	var req CommunicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	suggestion, err := h.ai.SuggestCommunication(c.Request.Context(), req.RepresentativeID, req.Situation)
	if err != nil {
		h.aiError(c, err)
		return
	}
	c.JSON(http.StatusOK, suggestion)
}

// GetRepresentativeInsights returns cached (or freshly generated) insights
// for one representative
func (h *Handler) GetRepresentativeInsights(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	insights, err := h.ai.GetInsights(c.Request.Context(), id)
	if err != nil {
		h.aiError(c, err)
		return
	}
	c.JSON(http.StatusOK, insights)
}

// GetInsights returns recent unexpired insights across all representatives
func (h *Handler) GetInsights(c *gin.Context) {
	limit := 50
	if l, err := strconv.Atoi(c.Query("limit")); err == nil && l > 0 && l <= 500 {
		limit = l
	}

	insights, err := h.repo.ListInsights(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, insights)
}

// GetAIUsage returns aggregate AI usage statistics
func (h *Handler) GetAIUsage(c *gin.Context) {
	stats, err := h.ai.GetUsageStats(500)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}
