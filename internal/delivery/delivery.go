// Package delivery sends follow-up messages through an ordered provider
// chain with per-provider retries. It is stateless; recording the outcome
// is the dispatcher's job.
package delivery

import (
	"context"
)

// Message is one outbound email, fully composed.
type Message struct {
	To        string
	ToName    string
	FromEmail string
	FromName  string
	ReplyTo   string
	Subject   string
	TextBody  string
	HTMLBody  string

	// Attachment is the invoice PDF, when one was fetched.
	Attachment *Attachment

	// Metadata rides along to providers that persist it into their
	// engagement webhooks.
	Metadata map[string]interface{}
}

// Attachment is a fetched document to include with the send.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ProviderResult is the outcome of a single provider send call.
type ProviderResult struct {
	MessageID string
}

// Provider sends a message through one delivery channel.
type Provider interface {
	Name() string
	Send(ctx context.Context, msg *Message) (*ProviderResult, error)
}

// Result is the outcome of a full chain walk.
type Result struct {
	Success      bool
	ProviderUsed string
	MessageID    string
	Attempts     int
	Err          error
}
