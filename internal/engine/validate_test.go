package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Nodeflow/internal/domain"
)

func registered(types ...string) func(string) bool {
	set := make(map[string]bool, len(types))
	for _, t := range types {
		set[t] = true
	}
	return func(s string) bool { return set[s] }
}

var knownTypes = registered("manual_trigger", "set_variable", "branch_condition", "log")

func branchWorkflow() *domain.Workflow {
	return &domain.Workflow{
		Nodes: []domain.Node{
			node("A", domain.NodeKindTrigger, "manual_trigger"),
			node("C", domain.NodeKindLogic, domain.SubtypeBranchCondition),
			node("D", domain.NodeKindAction, "log"),
			node("E", domain.NodeKindAction, "log"),
		},
		Edges: []domain.Edge{
			edge("1", "A", "C", ""),
			edge("2", "C", "D", domain.BranchTrue),
			edge("3", "C", "E", domain.BranchFalse),
		},
	}
}

func hasKind(errs []*GraphError, target error) bool {
	for _, e := range errs {
		if errors.Is(e, target) {
			return true
		}
	}
	return false
}

func TestValidate_Valid(t *testing.T) {
	report := Validate(branchWorkflow(), knownTypes)
	assert.True(t, report.Valid())
	assert.Empty(t, report.Warnings)
	assert.NoError(t, report.Err())
}

func TestValidate_EmptyGraph(t *testing.T) {
	report := Validate(&domain.Workflow{}, knownTypes)
	require.False(t, report.Valid())
	assert.ErrorIs(t, report.Err(), ErrEmptyGraph)
}

func TestValidate_UnknownIntegration(t *testing.T) {
	wf := branchWorkflow()
	wf.Nodes[2].Subtype = "send_fax"

	report := Validate(wf, knownTypes)
	require.False(t, report.Valid())
	assert.True(t, hasKind(report.Errors, ErrUnknownIntegration))
	assert.Equal(t, "UnknownIntegration", report.Errors[0].Kind())
	assert.Equal(t, "D", report.Errors[0].NodeID)
}

func TestValidate_DanglingEdge(t *testing.T) {
	wf := branchWorkflow()
	wf.Edges = append(wf.Edges, edge("4", "D", "ghost", ""))

	report := Validate(wf, knownTypes)
	require.False(t, report.Valid())
	assert.True(t, hasKind(report.Errors, ErrGraphReference))
	assert.Equal(t, "GraphReferenceError", report.Errors[0].Kind())
}

func TestValidate_Cycle(t *testing.T) {
	wf := branchWorkflow()
	wf.Edges = append(wf.Edges, edge("4", "D", "A", ""))

	report := Validate(wf, knownTypes)
	require.False(t, report.Valid())
	assert.True(t, hasKind(report.Errors, ErrGraphCycle))
}

func TestValidate_DuplicateBranchTag(t *testing.T) {
	wf := branchWorkflow()
	wf.Edges = append(wf.Edges, edge("4", "C", "E", domain.BranchTrue))

	report := Validate(wf, knownTypes)
	require.False(t, report.Valid())
	assert.True(t, hasKind(report.Errors, ErrInvalidBranch))
}

func TestValidate_BranchTagOnNonBranchNode(t *testing.T) {
	wf := branchWorkflow()
	wf.Edges[0].Branch = domain.BranchTrue

	report := Validate(wf, knownTypes)
	require.False(t, report.Valid())
	assert.True(t, hasKind(report.Errors, ErrInvalidBranch))
}

func TestValidate_BadBranchValue(t *testing.T) {
	wf := branchWorkflow()
	wf.Edges[1].Branch = "yes"

	report := Validate(wf, knownTypes)
	require.False(t, report.Valid())
	assert.True(t, hasKind(report.Errors, ErrInvalidBranch))
}

func TestValidate_DuplicateNodeID(t *testing.T) {
	wf := branchWorkflow()
	wf.Nodes = append(wf.Nodes, node("D", domain.NodeKindAction, "log"))

	report := Validate(wf, knownTypes)
	require.False(t, report.Valid())
	assert.True(t, hasKind(report.Errors, ErrInvalidNode))
}

func TestValidate_UnreachableIsWarning(t *testing.T) {
	wf := branchWorkflow()
	wf.Nodes = append(wf.Nodes, node("orphan", domain.NodeKindAction, "log"))

	report := Validate(wf, knownTypes)
	assert.True(t, report.Valid())
	require.Len(t, report.Warnings, 1)
	assert.Equal(t, "orphan", report.Warnings[0].NodeID)
	assert.ErrorIs(t, report.Warnings[0], ErrUnreachableNode)
}

func TestValidate_NilRegistryAcceptsAnySubtype(t *testing.T) {
	wf := branchWorkflow()
	wf.Nodes[2].Subtype = "anything"

	assert.True(t, Validate(wf, nil).Valid())
}
