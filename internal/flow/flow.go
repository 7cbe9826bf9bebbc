// Package flow derives the draft flow graph: how support threads move from
// an AI draft (or its absence) to a resolution.
package flow

import (
	"github.com/Veraticus/draftflow/internal/model"
)

// Attribution selects how resolved and pending threads are attributed to
// the used-as-is and edited nodes.
type Attribution string

const (
	// AttributionEven splits the resolved and pending totals evenly between
	// used-as-is and edited by floor division, clamped to each node's size.
	// It is an approximation: it ignores which thread was resolved.
	AttributionEven Attribution = "even"
	// AttributionExact counts each thread's own used/edited and
	// resolved/pending combination.
	AttributionExact Attribution = "exact"
)

type tally struct {
	rejected, usedAsIs, edited int
	// Joint counts, only read in exact mode.
	usedResolved, usedPending, editedResolved, editedPending int
}

func (t tally) resolved() int { return t.usedResolved + t.editedResolved }
func (t tally) pending() int  { return t.usedPending + t.editedPending }

// Build derives the graph with even attribution.
func Build(threads []model.SupportThreadRecord) model.FlowGraph {
	return BuildWith(threads, AttributionEven)
}

// BuildWith derives the graph using the given attribution. Zero-weight edges
// are omitted; the six nodes are always present.
func BuildWith(threads []model.SupportThreadRecord, attribution Attribution) model.FlowGraph {
	var t tally
	for i := range threads {
		th := &threads[i]
		if !th.HasDraft() {
			t.rejected++
			continue
		}
		resolved := th.Status.IsResolved()
		if th.WasEdited() {
			t.edited++
			if resolved {
				t.editedResolved++
			} else {
				t.editedPending++
			}
		} else {
			t.usedAsIs++
			if resolved {
				t.usedResolved++
			} else {
				t.usedPending++
			}
		}
	}

	uR, uP, eR, eP := t.usedResolved, t.usedPending, t.editedResolved, t.editedPending
	approximate := attribution != AttributionExact
	if approximate {
		uR, uP, eR, eP = evenSplit(t.resolved(), t.pending(), t.usedAsIs, t.edited)
	}

	g := model.FlowGraph{
		Nodes: []model.FlowNode{
			{ID: model.FlowCreated, Count: t.usedAsIs + t.edited},
			{ID: model.FlowRejected, Count: t.rejected},
			{ID: model.FlowUsedAsIs, Count: t.usedAsIs},
			{ID: model.FlowEdited, Count: t.edited},
			{ID: model.FlowResolved, Count: t.resolved()},
			{ID: model.FlowPending, Count: t.pending()},
		},
		Approximate: approximate,
	}

	for _, e := range []model.FlowEdge{
		{Source: model.FlowCreated, Target: model.FlowUsedAsIs, Weight: t.usedAsIs},
		{Source: model.FlowCreated, Target: model.FlowEdited, Weight: t.edited},
		{Source: model.FlowUsedAsIs, Target: model.FlowResolved, Weight: uR},
		{Source: model.FlowUsedAsIs, Target: model.FlowPending, Weight: uP},
		{Source: model.FlowEdited, Target: model.FlowResolved, Weight: eR},
		{Source: model.FlowEdited, Target: model.FlowPending, Weight: eP},
	} {
		if e.Weight > 0 {
			g.Edges = append(g.Edges, e)
		}
	}
	return g
}

// evenSplit attributes resolved and pending totals to the used and edited
// nodes. Each side gets half by floor division; whatever a node cannot hold
// moves to the other one, so every thread is attributed exactly once as long
// as resolved+pending == used+edited.
func evenSplit(resolved, pending, used, edited int) (uR, uP, eR, eP int) {
	uR = min(resolved/2, used)
	eR = min(resolved-uR, edited)
	uR = min(resolved-eR, used)

	uRoom, eRoom := used-uR, edited-eR
	uP = min(pending/2, uRoom)
	eP = min(pending-uP, eRoom)
	uP = min(pending-eP, uRoom)
	return uR, uP, eR, eP
}
