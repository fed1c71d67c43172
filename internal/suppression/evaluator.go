// Package suppression decides whether a due follow-up may be sent, based
// on the client and invoice state observed at dispatch time.
//
// The evaluator is deliberately a pure decision function: the dispatcher
// re-runs it for every due item on every invocation, because reply and
// payment state can change between scheduling and run time. Nothing here
// may be cached.
package suppression

import (
	"fmt"

	"github.com/clienthq/followup-engine/internal/domain"
)

// Action is the outcome of a suppression check.
type Action int

const (
	// Proceed means the item passed every rule and may be sent.
	Proceed Action = iota
	// Cancel terminally cancels the item (related invoice was paid).
	Cancel
	// Pause parks the item because the client replied after scheduling.
	Pause
	// Skip marks the item skipped because the client is unsubscribed or
	// has follow-ups paused. Skipped items keep their record but are
	// excluded from future due queries.
	Skip
)

func (a Action) String() string {
	switch a {
	case Proceed:
		return "proceed"
	case Cancel:
		return "cancel"
	case Pause:
		return "pause"
	case Skip:
		return "skip"
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// Decision carries the chosen action and a human-readable reason that the
// dispatcher records alongside the status transition.
type Decision struct {
	Action Action
	Reason string
}

// Evaluate runs the decision table in rule order against a queue item.
// invoice may be nil when the item has no related invoice or the lookup
// failed; payment-based cancellation then simply doesn't apply.
func Evaluate(item *domain.FollowupQueueItem, client *domain.Client, invoice *domain.Invoice) Decision {
	// Rule 1: payment beats everything, including a prior reply.
	if item.CancelIfPaid && invoice != nil && invoice.Status == domain.InvoicePaid {
		return Decision{Action: Cancel, Reason: fmt.Sprintf("invoice %s is paid", invoice.Number)}
	}

	// Rule 2: a reply after scheduling pauses the item.
	if item.PauseOnReply && client != nil && client.LastReplyAt != nil && client.LastReplyAt.After(item.ScheduledAt) {
		return Decision{Action: Pause, Reason: "client replied after this follow-up was scheduled"}
	}

	// Rule 3: client-level suppression. The item is marked skipped rather
	// than left queued so the record survives without being re-evaluated
	// every cycle.
	return EvaluateClient(client)
}

// EvaluateMessage runs the rules that apply to a one-shot scheduled
// message: a paid related invoice cancels it, and client-level
// suppression skips it. One-shots carry no pauseOnReply flag.
func EvaluateMessage(msg *domain.ScheduledMessage, client *domain.Client, invoice *domain.Invoice) Decision {
	if msg.RelatedInvoiceID != nil && invoice != nil && invoice.Status == domain.InvoicePaid {
		return Decision{Action: Cancel, Reason: fmt.Sprintf("invoice %s is paid", invoice.Number)}
	}
	return EvaluateClient(client)
}

// EvaluateClient applies only the client-level rules (rule 3). Recurring
// campaigns have no pauseOnReply/cancelIfPaid flags but must still never
// be sent to an unsubscribed or paused client.
func EvaluateClient(client *domain.Client) Decision {
	if client == nil || client.Sendable() {
		return Decision{Action: Proceed}
	}
	if client.Unsubscribed {
		return Decision{Action: Skip, Reason: "client is unsubscribed"}
	}
	return Decision{Action: Skip, Reason: "follow-ups are paused for this client"}
}
