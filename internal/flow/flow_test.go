package flow

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/draftflow/internal/model"
)

func thread(id string, draft bool, edited bool, status model.ThreadStatus) model.SupportThreadRecord {
	th := model.SupportThreadRecord{ID: id, Status: status}
	if draft {
		d := "draft-" + id
		th.AIDraftID = &d
		th.HumanChanged = &edited
	}
	return th
}

func nodeCount(t *testing.T, g model.FlowGraph, id model.FlowNodeID) int {
	t.Helper()
	n, ok := g.Node(id)
	require.True(t, ok, "missing node %s", id)
	return n.Count
}

func assertInvariants(t *testing.T, g model.FlowGraph) {
	t.Helper()
	require.Len(t, g.Nodes, 6)
	for _, n := range g.Nodes {
		assert.LessOrEqual(t, g.Outgoing(n.ID), n.Count, "outgoing weight of %s", n.ID)
	}
	for _, e := range g.Edges {
		assert.Positive(t, e.Weight)
	}
	assert.Equal(t, nodeCount(t, g, model.FlowUsedAsIs)+nodeCount(t, g, model.FlowEdited), g.Outgoing(model.FlowCreated))
	assert.Zero(t, g.Outgoing(model.FlowRejected))
}

func TestBuild_Buckets(t *testing.T) {
	threads := []model.SupportThreadRecord{
		thread("1", false, false, model.ThreadOpen),
		thread("2", false, false, model.ThreadResolved),
		thread("3", true, false, model.ThreadResolved),
		thread("4", true, false, model.ThreadClosed),
		thread("5", true, true, model.ThreadPending),
		thread("6", true, true, model.ThreadResolved),
	}
	// Flagged for editing even though the reply was sent unchanged.
	threads[3].RequiresEditing = true

	g := Build(threads)

	assertInvariants(t, g)
	assert.True(t, g.Approximate)
	assert.Equal(t, 2, nodeCount(t, g, model.FlowRejected))
	assert.Equal(t, 4, nodeCount(t, g, model.FlowCreated))
	assert.Equal(t, 1, nodeCount(t, g, model.FlowUsedAsIs))
	assert.Equal(t, 3, nodeCount(t, g, model.FlowEdited))
	assert.Equal(t, 3, nodeCount(t, g, model.FlowResolved))
	assert.Equal(t, 1, nodeCount(t, g, model.FlowPending))
	assert.Equal(t, nodeCount(t, g, model.FlowResolved)+nodeCount(t, g, model.FlowPending),
		g.Outgoing(model.FlowUsedAsIs)+g.Outgoing(model.FlowEdited))
}

func TestBuild_EvenSplitDropsZeroEdges(t *testing.T) {
	// Two used-as-is threads, both resolved: the even split gives each
	// predecessor one resolved thread, but edited holds none, so the
	// remainder moves back to used-as-is.
	threads := []model.SupportThreadRecord{
		thread("1", true, false, model.ThreadResolved),
		thread("2", true, false, model.ThreadResolved),
	}

	g := Build(threads)

	assertInvariants(t, g)
	assert.Equal(t, []model.FlowEdge{
		{Source: model.FlowCreated, Target: model.FlowUsedAsIs, Weight: 2},
		{Source: model.FlowUsedAsIs, Target: model.FlowResolved, Weight: 2},
	}, g.Edges)
}

func TestBuildWith_Exact(t *testing.T) {
	threads := []model.SupportThreadRecord{
		thread("1", true, false, model.ThreadResolved),
		thread("2", true, false, model.ThreadResolved),
		thread("3", true, false, model.ThreadResolved),
		thread("4", true, true, model.ThreadPending),
	}

	exact := BuildWith(threads, AttributionExact)
	assertInvariants(t, exact)
	assert.False(t, exact.Approximate)
	assert.Contains(t, exact.Edges, model.FlowEdge{Source: model.FlowUsedAsIs, Target: model.FlowResolved, Weight: 3})
	assert.Contains(t, exact.Edges, model.FlowEdge{Source: model.FlowEdited, Target: model.FlowPending, Weight: 1})

	even := BuildWith(threads, AttributionEven)
	assertInvariants(t, even)
	// resolved=3 splits 1/2 by floor, then the edited node's single slot caps it.
	assert.Contains(t, even.Edges, model.FlowEdge{Source: model.FlowUsedAsIs, Target: model.FlowResolved, Weight: 2})
	assert.Contains(t, even.Edges, model.FlowEdge{Source: model.FlowEdited, Target: model.FlowResolved, Weight: 1})
	assert.Contains(t, even.Edges, model.FlowEdge{Source: model.FlowUsedAsIs, Target: model.FlowPending, Weight: 1})
}

func TestBuild_Empty(t *testing.T) {
	g := Build(nil)
	assertInvariants(t, g)
	assert.Empty(t, g.Edges)
}

func TestEvenSplit_AttributesEveryThread(t *testing.T) {
	for used := 0; used <= 6; used++ {
		for edited := 0; edited <= 6; edited++ {
			for resolved := 0; resolved <= used+edited; resolved++ {
				pending := used + edited - resolved
				name := fmt.Sprintf("u%d_e%d_r%d", used, edited, resolved)
				uR, uP, eR, eP := evenSplit(resolved, pending, used, edited)
				assert.Equal(t, used, uR+uP, name)
				assert.Equal(t, edited, eR+eP, name)
				assert.Equal(t, resolved, uR+eR, name)
				assert.Equal(t, pending, uP+eP, name)
				for _, w := range []int{uR, uP, eR, eP} {
					assert.GreaterOrEqual(t, w, 0, name)
				}
			}
		}
	}
}
