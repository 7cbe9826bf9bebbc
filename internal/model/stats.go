package model

import "time"

// TrendDirection describes the sign of a period-over-period change.
type TrendDirection string

// Trend directions.
const (
	TrendUp      TrendDirection = "up"
	TrendDown    TrendDirection = "down"
	TrendNeutral TrendDirection = "neutral"
)

// Trend is the change between two periods.
type Trend struct {
	Direction TrendDirection `json:"direction"`
	Delta     float64        `json:"delta"`
	Percent   float64        `json:"percent"`
}

// TrendMetric pairs a value with its previous-period counterpart.
type TrendMetric struct {
	Trend    Trend   `json:"trend"`
	Current  float64 `json:"current"`
	Previous float64 `json:"previous"`
}

// GroupedStat counts classification partitions for one group of records.
// Unclassified covers unreviewed records and records with unknown labels;
// Unknown is the reviewed subset of it whose label is not recognized.
type GroupedStat struct {
	GroupKey     string `json:"group_key"`
	Total        int    `json:"total"`
	Quality      int    `json:"quality"`
	Error        int    `json:"error"`
	Excluded     int    `json:"excluded"`
	Unclassified int    `json:"unclassified"`
	Unknown      int    `json:"unknown"`
}

// Add accumulates other's counts into s. The group key is left unchanged.
func (s *GroupedStat) Add(other GroupedStat) {
	s.Total += other.Total
	s.Quality += other.Quality
	s.Error += other.Error
	s.Excluded += other.Excluded
	s.Unclassified += other.Unclassified
	s.Unknown += other.Unknown
}

// Evaluable returns the number of reviewed records that are not excluded.
// Reviewed records with an unknown label count here but never as quality.
func (s GroupedStat) Evaluable() int {
	return s.Quality + s.Error + s.Unknown
}

// QualityRate returns quality as a percentage of evaluable records.
func (s GroupedStat) QualityRate() float64 {
	if s.Evaluable() == 0 {
		return 0
	}
	return float64(s.Quality) / float64(s.Evaluable()) * 100
}

// WeekStat is a GroupedStat for one Monday-start week.
type WeekStat struct {
	WeekStart time.Time   `json:"week_start"`
	Stat      GroupedStat `json:"stat"`
}

// DetailRow is one category and version group with its weekly breakdown,
// most recent week first.
type DetailRow struct {
	Category string      `json:"category"`
	Version  string      `json:"version"`
	Stat     GroupedStat `json:"stat"`
	Weeks    []WeekStat  `json:"weeks"`
}

// CategoryCount is one row of a category distribution.
type CategoryCount struct {
	Category string `db:"category" json:"category"`
	Count    int    `db:"count" json:"count"`
	Changed  int    `db:"changed" json:"changed"`
}

// CorrelationCell is one entry of the co-occurrence matrix.
type CorrelationCell struct {
	X     string  `json:"x"`
	Y     string  `json:"y"`
	Value float64 `json:"value"`
}

// FlowNodeID names a node in the draft flow graph.
type FlowNodeID string

// Flow graph nodes.
const (
	FlowCreated  FlowNodeID = "created"
	FlowRejected FlowNodeID = "rejected"
	FlowUsedAsIs FlowNodeID = "used_as_is"
	FlowEdited   FlowNodeID = "edited"
	FlowResolved FlowNodeID = "resolved"
	FlowPending  FlowNodeID = "pending"
)

// FlowNodes lists every node in display order.
var FlowNodes = []FlowNodeID{FlowCreated, FlowRejected, FlowUsedAsIs, FlowEdited, FlowResolved, FlowPending}

// FlowNode is a flow graph node with the number of threads it holds.
type FlowNode struct {
	ID    FlowNodeID `json:"id"`
	Count int        `json:"count"`
}

// FlowEdge is a weighted transition between two nodes.
type FlowEdge struct {
	Source FlowNodeID `json:"source"`
	Target FlowNodeID `json:"target"`
	Weight int        `json:"weight"`
}

// FlowGraph describes how threads move from AI drafts to resolutions.
type FlowGraph struct {
	Nodes []FlowNode `json:"nodes"`
	Edges []FlowEdge `json:"edges"`
	// Approximate is set when resolution edges were attributed by an even
	// split rather than counted per thread.
	Approximate bool `json:"approximate"`
}

// Node returns the node with the given id.
func (g FlowGraph) Node(id FlowNodeID) (FlowNode, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return FlowNode{}, false
}

// Outgoing sums the weights of edges leaving id.
func (g FlowGraph) Outgoing(id FlowNodeID) int {
	total := 0
	for _, e := range g.Edges {
		if e.Source == id {
			total += e.Weight
		}
	}
	return total
}
