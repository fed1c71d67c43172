// Package content generates follow-up message content. The AI generator
// calls Anthropic first and falls back to OpenAI; the rate limiter caps
// generation calls per user; the renderer personalizes fixed one-shot
// bodies.
package content

import (
	"context"
	"errors"

	"github.com/clienthq/followup-engine/internal/domain"
)

var (
	// ErrRateLimited is returned when the per-user generation cap is hit.
	// The caller should leave the item due and try again next run.
	ErrRateLimited = errors.New("content generation rate limited")

	// ErrMalformedContent is returned when the model response is missing
	// a subject or body.
	ErrMalformedContent = errors.New("malformed generated content")
)

// GenerationRequest carries everything the generator needs to produce a
// follow-up for one campaign send.
type GenerationRequest struct {
	OwnerID  string
	Client   *domain.Client
	Invoice  *domain.Invoice
	Campaign *domain.RecurringCampaign

	// PriorMessages is the campaign's send history, newest first. The
	// generator uses it to avoid repeating earlier sends.
	PriorMessages []*domain.CampaignMessage
}

// GeneratedMessage is the model output, validated for completeness.
type GeneratedMessage struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Generator produces follow-up content for a campaign send.
type Generator interface {
	Generate(ctx context.Context, req GenerationRequest) (*GeneratedMessage, error)
}

// RateLimiter gates generation calls per key (typically the owner ID).
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}
