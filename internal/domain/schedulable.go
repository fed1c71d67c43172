package domain

import "time"

// ItemKind tags the variants of schedulable work the dispatcher handles.
type ItemKind string

const (
	KindOneShot     ItemKind = "one_shot"
	KindRecurring   ItemKind = "recurring"
	KindConditional ItemKind = "conditional"
)

// SchedulableItem is the common surface of the three schedulable record
// kinds. The dispatcher iterates all due items through this interface so
// per-item bookkeeping (claiming, result counting, failure isolation) is
// written once instead of three times.
type SchedulableItem interface {
	Kind() ItemKind
	ItemID() string
	DueAt() time.Time
}
