package model

import "time"

// ThreadStatus is the lifecycle state of a support thread.
type ThreadStatus string

// Thread statuses.
const (
	ThreadOpen     ThreadStatus = "open"
	ThreadPending  ThreadStatus = "pending"
	ThreadResolved ThreadStatus = "resolved"
	ThreadClosed   ThreadStatus = "closed"
)

// IsResolved reports whether the thread reached a terminal state.
func (s ThreadStatus) IsResolved() bool {
	return s == ThreadResolved || s == ThreadClosed
}

// Requirement flag columns carried by support threads.
const (
	FlagRequiresReply        = "requires_reply"
	FlagRequiresEditing      = "requires_editing"
	FlagRequiresSystemAction = "requires_system_action"
	FlagRequiresEscalation   = "requires_escalation"
	FlagRequiresRefund       = "requires_refund"
	FlagRequiresAttachment   = "requires_attachment"
)

// ThreadFlags is the closed set of requirement flags, in display order.
var ThreadFlags = []string{
	FlagRequiresReply,
	FlagRequiresEditing,
	FlagRequiresSystemAction,
	FlagRequiresEscalation,
	FlagRequiresRefund,
	FlagRequiresAttachment,
}

// SupportThreadRecord is a customer-support thread with requirement flags
// and an optional reference to the AI draft produced for it.
type SupportThreadRecord struct {
	CreatedAt            time.Time    `db:"created_at" json:"created_at"`
	AIDraftID            *string      `db:"ai_draft_id" json:"ai_draft_id,omitempty"`
	HumanChanged         *bool        `db:"human_changed" json:"human_changed,omitempty"`
	ID                   string       `db:"id" json:"id"`
	Category             string       `db:"category" json:"category,omitempty"`
	Agent                string       `db:"agent" json:"agent,omitempty"`
	Status               ThreadStatus `db:"status" json:"status"`
	RequiresReply        bool         `db:"requires_reply" json:"requires_reply"`
	RequiresEditing      bool         `db:"requires_editing" json:"requires_editing"`
	RequiresSystemAction bool         `db:"requires_system_action" json:"requires_system_action"`
	RequiresEscalation   bool         `db:"requires_escalation" json:"requires_escalation"`
	RequiresRefund       bool         `db:"requires_refund" json:"requires_refund"`
	RequiresAttachment   bool         `db:"requires_attachment" json:"requires_attachment"`
}

// Flag returns the value of a named requirement flag. Unknown names are false.
func (t *SupportThreadRecord) Flag(name string) bool {
	switch name {
	case FlagRequiresReply:
		return t.RequiresReply
	case FlagRequiresEditing:
		return t.RequiresEditing
	case FlagRequiresSystemAction:
		return t.RequiresSystemAction
	case FlagRequiresEscalation:
		return t.RequiresEscalation
	case FlagRequiresRefund:
		return t.RequiresRefund
	case FlagRequiresAttachment:
		return t.RequiresAttachment
	default:
		return false
	}
}

// HasDraft reports whether an AI draft was produced for the thread.
func (t *SupportThreadRecord) HasDraft() bool {
	return t.AIDraftID != nil && *t.AIDraftID != ""
}

// WasEdited reports whether the draft needed human changes, either flagged
// up front or observed on the sent reply.
func (t *SupportThreadRecord) WasEdited() bool {
	if t.RequiresEditing {
		return true
	}
	return t.HumanChanged != nil && *t.HumanChanged
}
