// Package dispatcher orchestrates a dispatch run: discover due items,
// claim each one, re-check suppression, produce content, send, and
// persist the resulting transition. It is invoked by an external
// scheduler and processes its batch to completion before returning.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/clienthq/followup-engine/internal/content"
	"github.com/clienthq/followup-engine/internal/delivery"
	"github.com/clienthq/followup-engine/internal/domain"
	"github.com/clienthq/followup-engine/internal/pkg/distlock"
	"github.com/clienthq/followup-engine/internal/pkg/logger"
	"github.com/clienthq/followup-engine/internal/recurrence"
	"github.com/clienthq/followup-engine/internal/store"
	"github.com/clienthq/followup-engine/internal/suppression"
)

// historyDepth is how many prior sends feed the generator's variation
// instructions.
const historyDepth = 5

// ErrAlreadyRunning is returned when another invocation holds the
// dispatch lock.
var ErrAlreadyRunning = errors.New("another dispatch run is in progress")

// Sender walks the delivery provider chain.
type Sender interface {
	Send(ctx context.Context, msg *delivery.Message) *delivery.Result
}

// AttachmentSource fetches an invoice document, returning nil when it
// can't.
type AttachmentSource interface {
	Fetch(ctx context.Context, key string) *delivery.Attachment
}

// ItemResult is the per-item line in a run summary.
type ItemResult struct {
	Kind     domain.ItemKind `json:"kind"`
	ID       string          `json:"id"`
	ClientID string          `json:"clientId,omitempty"`
	Status   string          `json:"status"`
	Reason   string          `json:"reason,omitempty"`
	Provider string          `json:"provider,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// RunSummary aggregates one dispatch run. Suppression transitions count
// toward ProcessedCount but are neither successes nor errors.
type RunSummary struct {
	ProcessedCount int          `json:"processedCount"`
	SuccessCount   int          `json:"successCount"`
	ErrorCount     int          `json:"errorCount"`
	Results        []ItemResult `json:"results"`
}

func (s *RunSummary) add(r ItemResult) {
	s.ProcessedCount++
	switch r.Status {
	case "sent":
		s.SuccessCount++
	case "failed":
		s.ErrorCount++
	}
	s.Results = append(s.Results, r)
}

// Merge folds another summary into this one.
func (s *RunSummary) Merge(other *RunSummary) {
	if other == nil {
		return
	}
	s.ProcessedCount += other.ProcessedCount
	s.SuccessCount += other.SuccessCount
	s.ErrorCount += other.ErrorCount
	s.Results = append(s.Results, other.Results...)
}

// Dispatcher wires the store, suppression, content, and delivery layers
// together for one run at a time.
type Dispatcher struct {
	store       *store.Store
	generator   content.Generator
	renderer    *content.Renderer
	sender      Sender
	attachments AttachmentSource
	lock        distlock.DistLock

	fromEmail string
	fromName  string
	batchSize int
	now       func() time.Time
}

// Options configures a Dispatcher.
type Options struct {
	Store       *store.Store
	Generator   content.Generator
	Renderer    *content.Renderer
	Sender      Sender
	Attachments AttachmentSource
	// Lock, when set, guards against overlapping invocations.
	Lock      distlock.DistLock
	FromEmail string
	FromName  string
	BatchSize int
}

// New creates a dispatcher.
func New(opts Options) *Dispatcher {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 25
	}
	return &Dispatcher{
		store:       opts.Store,
		generator:   opts.Generator,
		renderer:    opts.Renderer,
		sender:      opts.Sender,
		attachments: opts.Attachments,
		lock:        opts.Lock,
		fromEmail:   opts.FromEmail,
		fromName:    opts.FromName,
		batchSize:   opts.BatchSize,
		now:         time.Now,
	}
}

// Run processes due one-shot messages and due recurring campaigns.
// Item-level failures are recorded in the summary and never abort the
// batch; only a failure to query the store at all returns an error.
func (d *Dispatcher) Run(ctx context.Context) (*RunSummary, error) {
	release, err := d.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	summary := &RunSummary{}
	now := d.now()

	messages, err := d.store.DueScheduledMessages(ctx, now, d.batchSize)
	if err != nil {
		return nil, fmt.Errorf("listing due messages: %w", err)
	}
	for _, msg := range messages {
		d.processMessage(ctx, msg, summary)
	}

	d.extendLock(ctx)

	campaigns, err := d.store.DueCampaigns(ctx, now, d.batchSize)
	if err != nil {
		return nil, fmt.Errorf("listing due campaigns: %w", err)
	}
	for _, c := range campaigns {
		d.processCampaign(ctx, c, summary)
	}

	logger.Info("dispatch run complete",
		"processed", summary.ProcessedCount,
		"success", summary.SuccessCount,
		"errors", summary.ErrorCount)
	return summary, nil
}

// RunQueue processes due conditionally-suppressible queue items.
func (d *Dispatcher) RunQueue(ctx context.Context) (*RunSummary, error) {
	summary := &RunSummary{}

	items, err := d.store.DueQueueItems(ctx, d.now(), d.batchSize)
	if err != nil {
		return nil, fmt.Errorf("listing due queue items: %w", err)
	}
	for _, item := range items {
		d.processQueueItem(ctx, item, summary)
	}
	return summary, nil
}

func (d *Dispatcher) acquire(ctx context.Context) (func(), error) {
	if d.lock == nil {
		return func() {}, nil
	}
	ok, err := d.lock.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring dispatch lock: %w", err)
	}
	if !ok {
		return nil, ErrAlreadyRunning
	}
	return func() {
		if err := d.lock.Release(context.Background()); err != nil {
			logger.Warn("releasing dispatch lock", "error", err.Error())
		}
	}, nil
}

// extendLock renews the dispatch lock between batch phases so a slow
// provider chain cannot outlive the lock's TTL mid-run.
func (d *Dispatcher) extendLock(ctx context.Context) {
	if d.lock == nil {
		return
	}
	if err := d.lock.Extend(ctx); err != nil {
		logger.Warn("extending dispatch lock", "error", err.Error())
	}
}

// newItemResult seeds the summary line for any schedulable item.
func newItemResult(item domain.SchedulableItem, clientID string) ItemResult {
	return ItemResult{Kind: item.Kind(), ID: item.ItemID(), ClientID: clientID}
}

// claim runs the kind-appropriate conditional claim with the bookkeeping
// shared by all item kinds: a claim query failure enters the summary, a
// lost race is left silently to the runner that won it.
func (d *Dispatcher) claim(ctx context.Context, item domain.SchedulableItem, result *ItemResult, summary *RunSummary) bool {
	var claimFn func(context.Context, string) (bool, error)
	switch item.Kind() {
	case domain.KindOneShot:
		claimFn = d.store.ClaimScheduledMessage
	case domain.KindRecurring:
		claimFn = d.store.ClaimCampaign
	default:
		claimFn = d.store.ClaimQueueItem
	}
	claimed, err := claimFn(ctx, item.ItemID())
	if err != nil {
		result.Status = "failed"
		result.Error = err.Error()
		summary.add(*result)
		return false
	}
	if claimed {
		logger.Debug("claimed due item",
			"kind", string(item.Kind()), "id", item.ItemID(),
			"overdue", d.now().Sub(item.DueAt()).String())
	}
	return claimed
}

func (d *Dispatcher) processMessage(ctx context.Context, msg *domain.ScheduledMessage, summary *RunSummary) {
	result := newItemResult(msg, msg.ClientID)
	if !d.claim(ctx, msg, &result, summary) {
		return
	}

	client, err := d.store.GetClient(ctx, msg.ClientID)
	if err != nil {
		result.Status = "failed"
		result.Error = err.Error()
		summary.add(result)
		return
	}
	if client == nil {
		d.failMessage(ctx, msg.ID, "client not found", &result)
		summary.add(result)
		return
	}

	invoice := d.loadInvoice(ctx, msg.RelatedInvoiceID)
	decision := suppression.EvaluateMessage(msg, client, invoice)
	switch decision.Action {
	case suppression.Cancel:
		if err := d.store.MarkMessageCancelled(ctx, msg.ID, decision.Reason); err != nil {
			result.Status = "failed"
			result.Error = err.Error()
		} else {
			result.Status = "cancelled"
			result.Reason = decision.Reason
		}
		summary.add(result)
		return
	case suppression.Skip:
		if err := d.store.MarkMessageCancelled(ctx, msg.ID, decision.Reason); err != nil {
			result.Status = "failed"
			result.Error = err.Error()
		} else {
			result.Status = "skipped"
			result.Reason = decision.Reason
		}
		summary.add(result)
		return
	}

	body := msg.Body
	if d.renderer != nil {
		rendered, err := d.renderer.Render(msg.Body, client, invoice)
		if err != nil {
			d.failMessage(ctx, msg.ID, fmt.Sprintf("rendering body: %v", err), &result)
			summary.add(result)
			return
		}
		body = rendered
	}

	subject := msg.Subject
	if subject == "" {
		subject = "Following up"
	}

	out := &delivery.Message{
		To:        client.Email,
		ToName:    client.Name,
		FromEmail: d.fromEmail,
		FromName:  d.fromName,
		Subject:   subject,
		TextBody:  body,
		Metadata:  map[string]interface{}{"message_id": msg.ID, "client_id": client.ID},
	}
	d.attach(ctx, invoice, out)

	sendResult := d.sender.Send(ctx, out)
	if !sendResult.Success {
		d.failMessage(ctx, msg.ID, errString(sendResult.Err), &result)
		d.recordFailureEvent(ctx, msg.OwnerID, client.ID, msg.ID, sendResult.Err)
		summary.add(result)
		return
	}

	sentAt := d.now()
	if err := d.store.MarkMessageSent(ctx, msg.ID, sentAt); err != nil {
		result.Status = "failed"
		result.Error = err.Error()
		summary.add(result)
		return
	}
	d.recordSentEvent(ctx, msg.OwnerID, client.ID, msg.ID, sendResult)
	result.Status = "sent"
	result.Provider = sendResult.ProviderUsed
	summary.add(result)
}

func (d *Dispatcher) processCampaign(ctx context.Context, c *domain.RecurringCampaign, summary *RunSummary) {
	result := newItemResult(c, c.ClientID)
	if !d.claim(ctx, c, &result, summary) {
		return
	}
	releaseClaim := func() {
		if err := d.store.ReleaseCampaignClaim(ctx, c.ID); err != nil {
			logger.Warn("releasing campaign claim", "campaign_id", c.ID, "error", err.Error())
		}
	}

	// The send budget is checked before any generation so a completed
	// campaign never spends a model call.
	if c.MaxSendsReached() {
		if err := d.store.CompleteCampaign(ctx, c.ID); err != nil {
			result.Status = "failed"
			result.Error = err.Error()
		} else {
			result.Status = "completed"
			result.Reason = "max sends reached"
		}
		summary.add(result)
		return
	}

	client, err := d.store.GetClient(ctx, c.ClientID)
	if err != nil {
		releaseClaim()
		result.Status = "failed"
		result.Error = err.Error()
		summary.add(result)
		return
	}
	if client == nil {
		releaseClaim()
		result.Status = "failed"
		result.Error = "client not found"
		summary.add(result)
		return
	}

	if decision := suppression.EvaluateClient(client); decision.Action == suppression.Skip {
		// The campaign stays scheduled; a reactivated client picks it
		// back up on a later run.
		releaseClaim()
		result.Status = "skipped"
		result.Reason = decision.Reason
		summary.add(result)
		return
	}

	invoice := d.loadInvoice(ctx, c.RelatedInvoiceID)

	priors, err := d.store.RecentCampaignMessages(ctx, c.ID, historyDepth)
	if err != nil {
		releaseClaim()
		result.Status = "failed"
		result.Error = err.Error()
		summary.add(result)
		return
	}

	generated, err := d.generator.Generate(ctx, content.GenerationRequest{
		OwnerID:       c.OwnerID,
		Client:        client,
		Invoice:       invoice,
		Campaign:      c,
		PriorMessages: priors,
	})
	if err != nil {
		// Generation failure leaves sendCount and nextRunAt untouched;
		// the campaign is retried on the next invocation.
		releaseClaim()
		result.Status = "failed"
		result.Error = err.Error()
		summary.add(result)
		return
	}

	out := &delivery.Message{
		To:        client.Email,
		ToName:    client.Name,
		FromEmail: d.fromEmail,
		FromName:  d.fromName,
		Subject:   generated.Subject,
		TextBody:  generated.Body,
		Metadata:  map[string]interface{}{"campaign_id": c.ID, "client_id": client.ID},
	}
	d.attach(ctx, invoice, out)

	sendResult := d.sender.Send(ctx, out)
	if !sendResult.Success {
		releaseClaim()
		result.Status = "failed"
		result.Error = errString(sendResult.Err)
		d.recordFailureEvent(ctx, c.OwnerID, client.ID, c.ID, sendResult.Err)
		summary.add(result)
		return
	}

	sentAt := d.now()
	newCount := c.SendCount + 1

	var nextRun *time.Time
	next, ok := recurrence.Next(c.Recurrence, sentAt)
	finished := !ok || recurrence.Ended(c.Recurrence, newCount, next) ||
		(c.MaxSends != nil && newCount >= *c.MaxSends)
	if !finished {
		nextRun = &next
	}

	if err := d.store.AdvanceCampaign(ctx, c.ID, c.SendCount, sentAt, nextRun); err != nil {
		result.Status = "failed"
		result.Error = err.Error()
		summary.add(result)
		return
	}
	if finished {
		if err := d.store.CompleteCampaign(ctx, c.ID); err != nil {
			logger.Error("completing campaign", "campaign_id", c.ID, "error", err.Error())
		}
	}

	if err := d.store.InsertCampaignMessage(ctx, &domain.CampaignMessage{
		CampaignID: c.ID,
		Subject:    generated.Subject,
		Body:       generated.Body,
		SentAt:     sentAt,
	}); err != nil {
		logger.Error("recording campaign history", "campaign_id", c.ID, "error", err.Error())
	}
	d.recordSentEvent(ctx, c.OwnerID, client.ID, c.ID, sendResult)

	result.Status = "sent"
	result.Provider = sendResult.ProviderUsed
	summary.add(result)
}

func (d *Dispatcher) processQueueItem(ctx context.Context, item *domain.FollowupQueueItem, summary *RunSummary) {
	result := newItemResult(item, item.ClientID)
	if !d.claim(ctx, item, &result, summary) {
		return
	}

	client, err := d.store.GetClient(ctx, item.ClientID)
	if err != nil {
		result.Status = "failed"
		result.Error = err.Error()
		summary.add(result)
		return
	}
	invoice := d.loadInvoice(ctx, item.RelatedInvoiceID)

	decision := suppression.Evaluate(item, client, invoice)
	switch decision.Action {
	case suppression.Cancel:
		d.transitionQueueItem(ctx, item.ID, "cancelled", decision.Reason, d.store.MarkQueueItemCancelled, &result)
		summary.add(result)
		return
	case suppression.Pause:
		d.transitionQueueItem(ctx, item.ID, "paused", decision.Reason, d.store.MarkQueueItemPaused, &result)
		summary.add(result)
		return
	case suppression.Skip:
		d.transitionQueueItem(ctx, item.ID, "skipped", decision.Reason, d.store.MarkQueueItemSkipped, &result)
		summary.add(result)
		return
	}

	if client == nil {
		result.Status = "failed"
		result.Error = "client not found"
		if err := d.store.RecordQueueItemFailure(ctx, item.ID, result.Error); err != nil {
			logger.Error("recording queue failure", "item_id", item.ID, "error", err.Error())
		}
		summary.add(result)
		return
	}

	body := item.Body
	if d.renderer != nil {
		rendered, err := d.renderer.Render(item.Body, client, invoice)
		if err == nil {
			body = rendered
		} else {
			logger.Warn("queue item body render failed, sending raw",
				"item_id", item.ID, "error", err.Error())
		}
	}

	out := &delivery.Message{
		To:        client.Email,
		ToName:    client.Name,
		FromEmail: d.fromEmail,
		FromName:  d.fromName,
		Subject:   item.Subject,
		TextBody:  body,
		Metadata:  map[string]interface{}{"queue_item_id": item.ID, "client_id": client.ID},
	}
	d.attach(ctx, invoice, out)

	sendResult := d.sender.Send(ctx, out)
	if !sendResult.Success {
		result.Status = "failed"
		result.Error = errString(sendResult.Err)
		item.Status = domain.QueueFailed
		item.RetryCount++
		if item.IsTerminal() {
			result.Reason = "retry budget exhausted"
		}
		if err := d.store.RecordQueueItemFailure(ctx, item.ID, result.Error); err != nil {
			logger.Error("recording queue failure", "item_id", item.ID, "error", err.Error())
		}
		d.recordFailureEvent(ctx, item.OwnerID, item.ClientID, item.ID, sendResult.Err)
		summary.add(result)
		return
	}

	if err := d.store.MarkQueueItemSent(ctx, item.ID, d.now()); err != nil {
		result.Status = "failed"
		result.Error = err.Error()
		summary.add(result)
		return
	}
	d.recordSentEvent(ctx, item.OwnerID, item.ClientID, item.ID, sendResult)
	result.Status = "sent"
	result.Provider = sendResult.ProviderUsed
	summary.add(result)
}

func (d *Dispatcher) transitionQueueItem(ctx context.Context, id, status, reason string,
	mark func(context.Context, string, string) error, result *ItemResult) {
	if err := mark(ctx, id, reason); err != nil {
		result.Status = "failed"
		result.Error = err.Error()
		return
	}
	result.Status = status
	result.Reason = reason
}

func (d *Dispatcher) failMessage(ctx context.Context, id, reason string, result *ItemResult) {
	result.Status = "failed"
	result.Error = reason
	if err := d.store.MarkMessageFailed(ctx, id, reason); err != nil {
		logger.Error("marking message failed", "message_id", id, "error", err.Error())
	}
}

// loadInvoice is best-effort: a lookup failure logs and proceeds without
// invoice context rather than blocking the send.
func (d *Dispatcher) loadInvoice(ctx context.Context, invoiceID *string) *domain.Invoice {
	if invoiceID == nil || *invoiceID == "" {
		return nil
	}
	invoice, err := d.store.GetInvoice(ctx, *invoiceID)
	if err != nil {
		logger.Warn("invoice lookup failed", "invoice_id", *invoiceID, "error", err.Error())
		return nil
	}
	return invoice
}

func (d *Dispatcher) attach(ctx context.Context, invoice *domain.Invoice, out *delivery.Message) {
	if d.attachments == nil || invoice == nil || invoice.DocumentKey == "" {
		return
	}
	out.Attachment = d.attachments.Fetch(ctx, invoice.DocumentKey)
}

func (d *Dispatcher) recordSentEvent(ctx context.Context, ownerID, clientID, itemID string, r *delivery.Result) {
	err := d.store.InsertAnalyticsEvent(ctx, &domain.AnalyticsEvent{
		OwnerID:   ownerID,
		Event:     domain.EventSent,
		ClientID:  clientID,
		MessageID: itemID,
		Data:      map[string]any{"provider": r.ProviderUsed, "provider_message_id": r.MessageID},
		CreatedAt: d.now(),
	})
	if err != nil {
		logger.Error("recording sent event", "item_id", itemID, "error", err.Error())
	}
}

func (d *Dispatcher) recordFailureEvent(ctx context.Context, ownerID, clientID, itemID string, sendErr error) {
	err := d.store.InsertAnalyticsEvent(ctx, &domain.AnalyticsEvent{
		OwnerID:    ownerID,
		Event:      domain.EventBounced,
		BounceType: domain.BounceSoft,
		ClientID:   clientID,
		MessageID:  itemID,
		Data:       map[string]any{"error": errString(sendErr)},
		CreatedAt:  d.now(),
	})
	if err != nil {
		logger.Error("recording failure event", "item_id", itemID, "error", err.Error())
	}
}

func errString(err error) string {
	if err == nil {
		return "delivery failed"
	}
	return err.Error()
}
