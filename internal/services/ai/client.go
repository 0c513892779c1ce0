// Package ai provides the DeepSeek-backed CRM assistant: voice note
// summaries, communication guidance and cached representative insights.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

const (
	// DeepSeek API endpoint (OpenAI-compatible)
	DefaultBaseURL = "https://api.deepseek.com"

	ModelReasoner = "deepseek-reasoner" // slow chain-of-thought model for analysis
	ModelChat     = "deepseek-chat"     // fast model for summaries and drafts
)

// Client - DeepSeek API client
type Client struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
	maxTokens  int
	enabled    bool
}

// NewClient creates a new DeepSeek client. An empty API key yields a
// disabled client, not an error; AI features then answer 503.
func NewClient(apiKey string, maxTokens int) *Client {
	if apiKey == "" {
		log.Println("[AI] No API key configured, AI client disabled")
		return &Client{enabled: false}
	}

	if maxTokens <= 0 {
		maxTokens = 2500
	}

	log.Printf("[AI] DeepSeek client initialized, max_tokens: %d", maxTokens)

	return &Client{
		// The reasoner model can take minutes on long prompts
		httpClient: &http.Client{Timeout: 120 * time.Second},
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		maxTokens:  maxTokens,
		enabled:    true,
	}
}

// IsEnabled returns true when the client is active
func (c *Client) IsEnabled() bool {
	return c.enabled && c.apiKey != ""
}

// ChatMessage - one chat turn
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest - DeepSeek API request
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
	Stream      bool          `json:"stream"`
}

// ChatResponse - DeepSeek API response
type ChatResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role             string `json:"role"`
			Content          string `json:"content"`
			ReasoningContent string `json:"reasoning_content,omitempty"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// GenerateResult - generation outcome with token accounting
type GenerateResult struct {
	Response         string
	ReasoningContent string // chain of thought, reasoner model only
	InputTokens      int
	OutputTokens     int
	TotalTokens      int
}

// Generate sends one system+user prompt pair and returns the completion
func (c *Client) Generate(ctx context.Context, model, systemPrompt, userPrompt string) (*GenerateResult, error) {
	if !c.IsEnabled() {
		return nil, fmt.Errorf("AI client not initialized")
	}

	req := ChatRequest{
		Model: model,
		Messages: []ChatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		MaxTokens:   c.maxTokens,
		Temperature: 0.3,
		Stream:      false,
	}

	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	var chatResp ChatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	if len(chatResp.Choices) == 0 {
		return nil, fmt.Errorf("empty response from DeepSeek")
	}

	return &GenerateResult{
		Response:         chatResp.Choices[0].Message.Content,
		ReasoningContent: chatResp.Choices[0].Message.ReasoningContent,
		InputTokens:      chatResp.Usage.PromptTokens,
		OutputTokens:     chatResp.Usage.CompletionTokens,
		TotalTokens:      chatResp.Usage.TotalTokens,
	}, nil
}

// InsightResponse - structured AI insight payload
type InsightResponse struct {
	Severity       string `json:"severity"`
	Title          string `json:"title"`
	Description    string `json:"description"`
	Recommendation string `json:"recommendation"`
	InsightType    string `json:"insight_type"`
}

// ParseInsightResponse extracts the insight JSON from a completion. The
// reasoner model may wrap JSON in a markdown block or surrounding prose.
func ParseInsightResponse(response string) (*InsightResponse, error) {
	if response == "" {
		return nil, fmt.Errorf("parse AI response: empty response")
	}

	var insight InsightResponse

	// Attempt 1: plain JSON
	if err := json.Unmarshal([]byte(response), &insight); err == nil {
		return validateInsight(&insight), nil
	}

	// Attempt 2: ```json ... ``` block
	if idx := strings.Index(response, "```json"); idx != -1 {
		start := idx + 7
		if end := strings.Index(response[start:], "```"); end != -1 {
			jsonStr := strings.TrimSpace(response[start : start+end])
			if err := json.Unmarshal([]byte(jsonStr), &insight); err == nil {
				return validateInsight(&insight), nil
			}
		}
	}

	// Attempt 3: ``` ... ``` block
	if idx := strings.Index(response, "```"); idx != -1 {
		start := idx + 3
		if end := strings.Index(response[start:], "```"); end != -1 {
			jsonStr := strings.TrimSpace(response[start : start+end])
			if err := json.Unmarshal([]byte(jsonStr), &insight); err == nil {
				return validateInsight(&insight), nil
			}
		}
	}

	// Attempt 4: first { ... } span in the text
	if idx := strings.Index(response, "{"); idx != -1 {
		if end := strings.LastIndex(response, "}"); end > idx {
			jsonStr := response[idx : end+1]
			if err := json.Unmarshal([]byte(jsonStr), &insight); err == nil {
				return validateInsight(&insight), nil
			}
		}
	}

	return nil, fmt.Errorf("parse AI response: no JSON found")
}

// validateInsight normalizes enum fields to known values
func validateInsight(insight *InsightResponse) *InsightResponse {
	switch insight.Severity {
	case "info", "warning", "critical":
	default:
		insight.Severity = "info"
	}

	switch insight.InsightType {
	case "churn_risk", "upsell", "financial_impact":
	default:
		insight.InsightType = "financial_impact"
	}

	return insight
}
