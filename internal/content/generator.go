package content

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/clienthq/followup-engine/internal/pkg/httpretry"
	"github.com/clienthq/followup-engine/internal/pkg/logger"
)

const (
	anthropicURL = "https://api.anthropic.com/v1/messages"
	openaiURL    = "https://api.openai.com/v1/chat/completions"

	baseTemperature = 0.7
	maxTemperature  = 1.0
)

// AIGenerator generates follow-up content through the Anthropic Messages
// API, falling back to OpenAI chat completions when Anthropic fails.
type AIGenerator struct {
	anthropicKey string
	openaiKey    string
	model        string
	timeout      time.Duration
	limiter      RateLimiter
	httpClient   *httpretry.RetryClient

	// anthropicEndpoint and openaiEndpoint are overridable for tests.
	anthropicEndpoint string
	openaiEndpoint    string
}

// NewAIGenerator builds a generator. Either key may be empty; generation
// fails outright only when both are.
func NewAIGenerator(anthropicKey, openaiKey, model string, timeout time.Duration, limiter RateLimiter) *AIGenerator {
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &AIGenerator{
		anthropicKey:      anthropicKey,
		openaiKey:         openaiKey,
		model:             model,
		timeout:           timeout,
		limiter:           limiter,
		httpClient:        httpretry.NewRetryClient(&http.Client{Timeout: timeout}, 2),
		anthropicEndpoint: anthropicURL,
		openaiEndpoint:    openaiURL,
	}
}

// Generate produces one follow-up message for a campaign send. The
// temperature rises with the number of prior sends so later messages in a
// long campaign drift further from the first one.
func (g *AIGenerator) Generate(ctx context.Context, req GenerationRequest) (*GeneratedMessage, error) {
	if g.anthropicKey == "" && g.openaiKey == "" {
		return nil, fmt.Errorf("no content generation API key configured")
	}

	if g.limiter != nil {
		allowed, err := g.limiter.Allow(ctx, req.OwnerID)
		if err != nil {
			return nil, fmt.Errorf("rate limit check: %w", err)
		}
		if !allowed {
			return nil, ErrRateLimited
		}
	}

	prompt := buildPrompt(req)
	temperature := baseTemperature + 0.1*float64(len(req.PriorMessages))
	if temperature > maxTemperature {
		temperature = maxTemperature
	}

	if g.anthropicKey != "" {
		msg, err := g.callAnthropic(ctx, prompt, temperature)
		if err == nil {
			return msg, nil
		}
		if err == ErrMalformedContent || g.openaiKey == "" {
			return nil, err
		}
		logger.Warn("anthropic generation failed, falling back to openai", "error", err.Error())
	}

	return g.callOpenAI(ctx, prompt, temperature)
}

func buildPrompt(req GenerationRequest) string {
	var b strings.Builder
	b.WriteString("Write a payment follow-up email.\n\n")

	fmt.Fprintf(&b, "Recipient: %s", req.Client.Name)
	if req.Client.Company != "" {
		fmt.Fprintf(&b, " at %s", req.Client.Company)
	}
	b.WriteString("\n")

	tone := req.Campaign.Tone
	if tone == "" {
		tone = "professional"
	}
	fmt.Fprintf(&b, "Tone: %s\n", tone)

	if req.Invoice != nil {
		fmt.Fprintf(&b, "Invoice %s: %.2f %s", req.Invoice.Number, req.Invoice.AmountDue, req.Invoice.Currency)
		if req.Invoice.DueDate != nil {
			fmt.Fprintf(&b, ", due %s", req.Invoice.DueDate.Format("January 2, 2006"))
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "This is follow-up number %d in the sequence.\n", len(req.PriorMessages)+1)

	if len(req.PriorMessages) > 0 {
		b.WriteString("\nPrevious messages in this sequence (do NOT repeat their openings, phrasing, or structure):\n")
		for i, m := range req.PriorMessages {
			body := m.Body
			if len(body) > 200 {
				body = body[:200] + "..."
			}
			fmt.Fprintf(&b, "%d. Subject: %s\n   %s\n", i+1, m.Subject, body)
		}
	}

	b.WriteString("\nRespond with ONLY a JSON object: {\"subject\": \"...\", \"body\": \"...\"}")
	return b.String()
}

func (g *AIGenerator) callAnthropic(ctx context.Context, prompt string, temperature float64) (*GeneratedMessage, error) {
	reqBody := map[string]interface{}{
		"model":       g.model,
		"max_tokens":  1024,
		"temperature": temperature,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
	}
	body, _ := json.Marshal(reqBody)

	req, err := http.NewRequestWithContext(ctx, "POST", g.anthropicEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-api-key", g.anthropicKey)
	req.Header.Set("anthropic-version", "2023-06-01")
	req.Header.Set("content-type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("anthropic request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("anthropic error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var anthropicResp struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(respBody, &anthropicResp); err != nil {
		return nil, fmt.Errorf("failed to parse anthropic response: %w", err)
	}
	if len(anthropicResp.Content) == 0 {
		return nil, fmt.Errorf("no content in anthropic response")
	}

	return parseGenerated(anthropicResp.Content[0].Text)
}

func (g *AIGenerator) callOpenAI(ctx context.Context, prompt string, temperature float64) (*GeneratedMessage, error) {
	reqBody := map[string]interface{}{
		"model":       "gpt-4o",
		"temperature": temperature,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
	}
	body, _ := json.Marshal(reqBody)

	req, err := http.NewRequestWithContext(ctx, "POST", g.openaiEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+g.openaiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("openai error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var openaiResp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(respBody, &openaiResp); err != nil {
		return nil, fmt.Errorf("failed to parse openai response: %w", err)
	}
	if len(openaiResp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in openai response")
	}

	return parseGenerated(openaiResp.Choices[0].Message.Content)
}

// parseGenerated extracts the subject/body JSON from a model response,
// tolerating surrounding prose and markdown fences.
func parseGenerated(text string) (*GeneratedMessage, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return nil, ErrMalformedContent
	}

	var msg GeneratedMessage
	if err := json.Unmarshal([]byte(text[start:end+1]), &msg); err != nil {
		return nil, ErrMalformedContent
	}
	if strings.TrimSpace(msg.Subject) == "" || strings.TrimSpace(msg.Body) == "" {
		return nil, ErrMalformedContent
	}
	return &msg, nil
}

var _ Generator = (*AIGenerator)(nil)

// StaticGenerator returns canned content. Used in simulation deployments
// and tests.
type StaticGenerator struct {
	Subject string
	Body    string
}

func (s *StaticGenerator) Generate(_ context.Context, req GenerationRequest) (*GeneratedMessage, error) {
	subject := s.Subject
	if subject == "" {
		subject = fmt.Sprintf("Follow-up %d: %s", len(req.PriorMessages)+1, req.Campaign.Name)
	}
	body := s.Body
	if body == "" {
		body = fmt.Sprintf("Hi %s, this is a reminder about your outstanding balance.", req.Client.Name)
	}
	return &GeneratedMessage{Subject: subject, Body: body}, nil
}

var _ Generator = (*StaticGenerator)(nil)
