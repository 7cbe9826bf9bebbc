package model

import "time"

// ComparisonRecord pairs an AI-generated reply with its human-edited
// counterpart. Records are written by ingestion and optionally reviewed later;
// the engine only reads them.
type ComparisonRecord struct {
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	HumanReplyDate *time.Time `db:"human_reply_date" json:"human_reply_date,omitempty"`
	Classification *string    `db:"classification" json:"classification,omitempty"`
	ID             string     `db:"id" json:"id"`
	Category       string     `db:"category" json:"category"`
	Subcategory    string     `db:"subcategory" json:"subcategory,omitempty"`
	Version        string     `db:"version" json:"version"`
	Agent          string     `db:"agent" json:"agent,omitempty"`
	ReviewedBy     string     `db:"reviewed_by" json:"reviewed_by,omitempty"`
	AIReply        string     `db:"ai_reply" json:"ai_reply,omitempty"`
	HumanReply     string     `db:"human_reply" json:"human_reply,omitempty"`
	Changed        bool       `db:"changed" json:"changed"`
}

// Date returns the timestamp selected by field. Records without a human
// reply date report ok=false for DateFieldHumanReply.
func (c *ComparisonRecord) Date(field DateField) (time.Time, bool) {
	if field == DateFieldHumanReply {
		if c.HumanReplyDate == nil {
			return time.Time{}, false
		}
		return *c.HumanReplyDate, true
	}
	return c.CreatedAt, true
}

// Label returns the raw classification label, or "" when unreviewed.
func (c *ComparisonRecord) Label() string {
	if c.Classification == nil {
		return ""
	}
	return *c.Classification
}

// Reviewed reports whether a reviewer attached a classification.
func (c *ComparisonRecord) Reviewed() bool {
	return c.Classification != nil
}
