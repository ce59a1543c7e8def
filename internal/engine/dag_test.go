package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Nodeflow/internal/domain"
)

func node(id string, kind domain.NodeKind, subtype string) domain.Node {
	return domain.Node{ID: id, Kind: kind, Subtype: subtype}
}

func edge(id, source, target, branch string) domain.Edge {
	return domain.Edge{ID: id, Source: source, Target: target, Branch: branch}
}

func TestBuildDAG_SimpleChain(t *testing.T) {
	wf := &domain.Workflow{
		Nodes: []domain.Node{
			node("A", domain.NodeKindTrigger, "manual_trigger"),
			node("B", domain.NodeKindAction, "log"),
			node("C", domain.NodeKindAction, "log"),
		},
		Edges: []domain.Edge{
			edge("e1", "A", "B", ""),
			edge("e2", "B", "C", ""),
		},
	}

	dag, err := BuildDAG(wf)
	require.NoError(t, err)

	assert.Equal(t, 3, dag.Size())
	require.Len(t, dag.RootNodes, 1)
	assert.Equal(t, "A", dag.RootNodes[0].ID)
	assert.Equal(t, []string{"A", "B", "C"}, dag.OrderIDs())

	// B зависит от A
	b := dag.GetNode("B")
	require.Len(t, b.Incoming, 1)
	assert.Equal(t, "A", b.Incoming[0].Source.ID)
}

func TestBuildDAG_TieBreakFollowsNodeSequence(t *testing.T) {
	// Рёбра объявлены в обратном порядке, но порядок узлов задаёт tie-break:
	// Z, Y, X готовы одновременно после R.
	wf := &domain.Workflow{
		Nodes: []domain.Node{
			node("R", domain.NodeKindTrigger, "manual_trigger"),
			node("Z", domain.NodeKindAction, "log"),
			node("Y", domain.NodeKindAction, "log"),
			node("X", domain.NodeKindAction, "log"),
		},
		Edges: []domain.Edge{
			edge("e1", "R", "X", ""),
			edge("e2", "R", "Y", ""),
			edge("e3", "R", "Z", ""),
		},
	}

	dag, err := BuildDAG(wf)
	require.NoError(t, err)
	assert.Equal(t, []string{"R", "Z", "Y", "X"}, dag.OrderIDs())
}

func TestBuildDAG_OrderIsValidLinearization(t *testing.T) {
	// Ромб с дополнительными рёбрами; каждый узел должен идти после всех предшественников.
	wf := &domain.Workflow{
		Nodes: []domain.Node{
			node("D", domain.NodeKindAction, "log"),
			node("C", domain.NodeKindAction, "log"),
			node("B", domain.NodeKindAction, "log"),
			node("A", domain.NodeKindTrigger, "manual_trigger"),
			node("E", domain.NodeKindAction, "log"),
		},
		Edges: []domain.Edge{
			edge("1", "A", "B", ""),
			edge("2", "A", "C", ""),
			edge("3", "B", "D", ""),
			edge("4", "C", "D", ""),
			edge("5", "D", "E", ""),
			edge("6", "A", "E", ""),
		},
	}

	dag, err := BuildDAG(wf)
	require.NoError(t, err)

	position := make(map[string]int)
	for i, id := range dag.OrderIDs() {
		position[id] = i
	}
	for _, e := range wf.Edges {
		assert.Less(t, position[e.Source], position[e.Target], "edge %s→%s", e.Source, e.Target)
	}
	// C и B готовы одновременно после A; C раньше в последовательности
	assert.Equal(t, []string{"A", "C", "B", "D", "E"}, dag.OrderIDs())
}

func TestBuildDAG_Cycle(t *testing.T) {
	wf := &domain.Workflow{
		Nodes: []domain.Node{
			node("A", domain.NodeKindTrigger, "manual_trigger"),
			node("B", domain.NodeKindAction, "log"),
			node("C", domain.NodeKindAction, "log"),
		},
		Edges: []domain.Edge{
			edge("1", "A", "B", ""),
			edge("2", "B", "C", ""),
			edge("3", "C", "B", ""),
		},
	}

	_, err := BuildDAG(wf)
	require.ErrorIs(t, err, ErrGraphCycle)
	assert.Contains(t, err.Error(), "B, C")
}

func TestBuildDAG_SelfLoop(t *testing.T) {
	wf := &domain.Workflow{
		Nodes: []domain.Node{node("A", domain.NodeKindTrigger, "manual_trigger")},
		Edges: []domain.Edge{edge("1", "A", "A", "")},
	}

	_, err := BuildDAG(wf)
	require.ErrorIs(t, err, ErrGraphCycle)
}

func TestBuildDAG_DanglingEdge(t *testing.T) {
	wf := &domain.Workflow{
		Nodes: []domain.Node{node("A", domain.NodeKindTrigger, "manual_trigger")},
		Edges: []domain.Edge{edge("1", "A", "missing", "")},
	}

	_, err := BuildDAG(wf)
	require.ErrorIs(t, err, ErrGraphReference)
}

func TestBuildDAG_BothBranchesToSameTarget(t *testing.T) {
	wf := &domain.Workflow{
		Nodes: []domain.Node{
			node("C", domain.NodeKindLogic, domain.SubtypeBranchCondition),
			node("D", domain.NodeKindAction, "log"),
		},
		Edges: []domain.Edge{
			edge("t", "C", "D", domain.BranchTrue),
			edge("f", "C", "D", domain.BranchFalse),
			edge("dup", "C", "D", domain.BranchFalse),
		},
	}

	dag, err := BuildDAG(wf)
	require.NoError(t, err)

	d := dag.GetNode("D")
	assert.Equal(t, 1, d.InDegree)
	assert.Len(t, d.Incoming, 2)
	assert.Equal(t, []string{"C", "D"}, dag.OrderIDs())
}
