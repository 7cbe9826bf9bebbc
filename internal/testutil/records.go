package testutil

import (
	"fmt"
	"time"

	"github.com/Veraticus/draftflow/internal/model"
)

// ComparisonRow converts a record into the row shape the stores return.
func ComparisonRow(c model.ComparisonRecord) model.Row {
	row := model.Row{
		"id":          c.ID,
		"created_at":  c.CreatedAt,
		"category":    c.Category,
		"subcategory": c.Subcategory,
		"version":     c.Version,
		"agent":       c.Agent,
		"changed":     c.Changed,
		"reviewed_by": c.ReviewedBy,
	}
	if c.HumanReplyDate != nil {
		row["human_reply_date"] = *c.HumanReplyDate
	}
	if c.Classification != nil {
		row["classification"] = *c.Classification
	}
	return row
}

// ThreadRow converts a thread into the row shape the stores return.
func ThreadRow(t model.SupportThreadRecord) model.Row {
	row := model.Row{
		"id":         t.ID,
		"created_at": t.CreatedAt,
		"category":   t.Category,
		"agent":      t.Agent,
		"status":     string(t.Status),
	}
	for _, flag := range model.ThreadFlags {
		row[flag] = t.Flag(flag)
	}
	if t.AIDraftID != nil {
		row["ai_draft_id"] = *t.AIDraftID
	}
	if t.HumanChanged != nil {
		row["human_changed"] = *t.HumanChanged
	}
	return row
}

// ComparisonBuilder builds comparison records with sequential ids.
//
// Example:
//
//	recs := testutil.NewComparisonBuilder(start).
//		Category("billing").Version("v2").
//		Add(5, "critical_error").
//		Add(5, "no_significant_change").
//		Build()
type ComparisonBuilder struct {
	at       time.Time
	category string
	version  string
	agent    string
	step     time.Duration
	recs     []model.ComparisonRecord
}

// NewComparisonBuilder starts a builder whose first record is created at start.
func NewComparisonBuilder(start time.Time) *ComparisonBuilder {
	return &ComparisonBuilder{
		at:       start,
		category: "general",
		version:  "v1",
		agent:    "agent-1",
		step:     time.Minute,
	}
}

// Category sets the category of subsequently added records.
func (b *ComparisonBuilder) Category(c string) *ComparisonBuilder {
	b.category = c
	return b
}

// Version sets the version of subsequently added records.
func (b *ComparisonBuilder) Version(v string) *ComparisonBuilder {
	b.version = v
	return b
}

// Agent sets the agent of subsequently added records.
func (b *ComparisonBuilder) Agent(a string) *ComparisonBuilder {
	b.agent = a
	return b
}

// At moves the creation clock to t.
func (b *ComparisonBuilder) At(t time.Time) *ComparisonBuilder {
	b.at = t
	return b
}

// Step sets the creation time gap between consecutive records.
func (b *ComparisonBuilder) Step(d time.Duration) *ComparisonBuilder {
	b.step = d
	return b
}

// Add appends n records carrying label. An empty label leaves them unreviewed.
func (b *ComparisonBuilder) Add(n int, label string) *ComparisonBuilder {
	for range n {
		rec := model.ComparisonRecord{
			ID:        fmt.Sprintf("%d", len(b.recs)+1),
			CreatedAt: b.at,
			Category:  b.category,
			Version:   b.version,
			Agent:     b.agent,
		}
		if label != "" {
			l := label
			rec.Classification = &l
			rec.ReviewedBy = "reviewer"
			rec.Changed = l != "no_significant_change" && l != "NO_SIGNIFICANT_CHANGE"
			reply := b.at.Add(30 * time.Minute)
			rec.HumanReplyDate = &reply
		}
		b.recs = append(b.recs, rec)
		b.at = b.at.Add(b.step)
	}
	return b
}

// Build returns the accumulated records.
func (b *ComparisonBuilder) Build() []model.ComparisonRecord {
	return b.recs
}

// Thread creates a support thread. A thread with draft=false has no AI draft.
func Thread(id string, created time.Time, status model.ThreadStatus, draft, edited bool, flags ...string) model.SupportThreadRecord {
	th := model.SupportThreadRecord{
		ID:        id,
		CreatedAt: created,
		Category:  "general",
		Status:    status,
	}
	if draft {
		d := "draft-" + id
		th.AIDraftID = &d
		th.HumanChanged = &edited
	}
	for _, f := range flags {
		switch f {
		case model.FlagRequiresReply:
			th.RequiresReply = true
		case model.FlagRequiresEditing:
			th.RequiresEditing = true
		case model.FlagRequiresSystemAction:
			th.RequiresSystemAction = true
		case model.FlagRequiresEscalation:
			th.RequiresEscalation = true
		case model.FlagRequiresRefund:
			th.RequiresRefund = true
		case model.FlagRequiresAttachment:
			th.RequiresAttachment = true
		}
	}
	return th
}

// Range returns a DateRange of n days ending at end.
func Range(end time.Time, days int) model.DateRange {
	return model.DateRange{From: end.AddDate(0, 0, -days), To: end}
}
