package engine

import (
	"errors"
	"fmt"

	"github.com/shaiso/Nodeflow/internal/domain"
)

// Report: результат валидации графа.
//
// Errors блокируют создание execution; Warnings только информируют
// (например, изолированный подграф, запускаемый для теста).
type Report struct {
	Errors   []*GraphError `json:"errors,omitempty"`
	Warnings []*GraphError `json:"warnings,omitempty"`
}

// Valid возвращает true, если ошибок нет.
func (r *Report) Valid() bool {
	return len(r.Errors) == 0
}

// Err объединяет ошибки в одну (nil, если их нет).
func (r *Report) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	errs := make([]error, len(r.Errors))
	for i, e := range r.Errors {
		errs[i] = e
	}
	return errors.Join(errs...)
}

// AddError добавляет ошибку.
func (r *Report) AddError(err *GraphError) {
	r.Errors = append(r.Errors, err)
}

func (r *Report) addWarning(err *GraphError) {
	r.Warnings = append(r.Warnings, err)
}

// Validate проверяет структуру workflow.
//
// Проверки:
//   - граф не пуст, ID узлов непусты и уникальны, kind допустим
//   - subtype каждого узла зарегистрирован (если передан isRegistered)
//   - концы рёбер существуют, ребро не ведёт в свой же источник
//   - теги веток только на рёбрах из branch_condition, не более одного на значение
//   - граф ацикличен
//   - каждый узел достижим из trigger (иначе предупреждение)
//
// Функция чистая и вызывается независимо от выполнения.
func Validate(wf *domain.Workflow, isRegistered func(subtype string) bool) *Report {
	report := &Report{}

	if len(wf.Nodes) == 0 {
		report.AddError(&GraphError{Message: "workflow has no nodes", Err: ErrEmptyGraph})
		return report
	}

	nodes := validateNodes(wf, isRegistered, report)
	validateEdges(wf, nodes, report)

	// Цикл и достижимость имеют смысл только для графа с корректными ссылками
	if !report.Valid() {
		return report
	}

	dag, err := BuildDAG(wf)
	if err != nil {
		var gerr *GraphError
		if errors.As(err, &gerr) {
			report.AddError(gerr)
		} else {
			report.AddError(&GraphError{Message: err.Error(), Err: err})
		}
		return report
	}

	validateReachability(dag, wf, report)
	return report
}

// validateNodes проверяет узлы и возвращает их индекс по ID.
func validateNodes(wf *domain.Workflow, isRegistered func(string) bool, report *Report) map[string]*domain.Node {
	nodes := make(map[string]*domain.Node, len(wf.Nodes))

	for i := range wf.Nodes {
		node := &wf.Nodes[i]

		if node.ID == "" {
			report.AddError(nodeError("", ErrInvalidNode, "node at position %d has empty id", i))
			continue
		}
		if _, dup := nodes[node.ID]; dup {
			report.AddError(nodeError(node.ID, ErrInvalidNode, "duplicate node id"))
			continue
		}
		nodes[node.ID] = node

		if !node.Kind.IsValid() {
			report.AddError(nodeError(node.ID, ErrInvalidNode, "unknown kind %q", node.Kind))
		}

		if node.Subtype == "" {
			report.AddError(nodeError(node.ID, ErrUnknownIntegration, "subtype is required"))
			continue
		}
		if isRegistered != nil && !isRegistered(node.Subtype) {
			report.AddError(nodeError(node.ID, ErrUnknownIntegration, "no integration registered for subtype %q", node.Subtype))
		}
	}

	return nodes
}

// validateEdges проверяет ссылки и теги веток.
func validateEdges(wf *domain.Workflow, nodes map[string]*domain.Node, report *Report) {
	type branchKey struct{ source, branch string }
	branches := make(map[branchKey]string)

	for i := range wf.Edges {
		edge := &wf.Edges[i]
		edgeID := edge.ID
		if edgeID == "" {
			edgeID = fmt.Sprintf("#%d", i)
		}

		source, sourceOK := nodes[edge.Source]
		if !sourceOK {
			report.AddError(edgeError(edgeID, ErrGraphReference, "source %q does not exist", edge.Source))
		}
		if _, ok := nodes[edge.Target]; !ok {
			report.AddError(edgeError(edgeID, ErrGraphReference, "target %q does not exist", edge.Target))
		}
		if edge.Source != "" && edge.Source == edge.Target {
			report.AddError(edgeError(edgeID, ErrGraphCycle, "node %q depends on itself", edge.Source))
		}

		if edge.Branch == "" || !sourceOK {
			continue
		}

		if edge.Branch != domain.BranchTrue && edge.Branch != domain.BranchFalse {
			report.AddError(edgeError(edgeID, ErrInvalidBranch, "branch must be %q or %q, got %q",
				domain.BranchTrue, domain.BranchFalse, edge.Branch))
			continue
		}
		if source.Subtype != domain.SubtypeBranchCondition {
			report.AddError(edgeError(edgeID, ErrInvalidBranch, "branch tag on edge leaving %s node %q",
				source.Subtype, source.ID))
			continue
		}

		key := branchKey{edge.Source, edge.Branch}
		if other, dup := branches[key]; dup {
			report.AddError(edgeError(edgeID, ErrInvalidBranch, "node %q already has a %q edge (%s)",
				edge.Source, edge.Branch, other))
			continue
		}
		branches[key] = edgeID
	}
}

// validateReachability предупреждает об узлах, недостижимых из trigger.
func validateReachability(dag *DAG, wf *domain.Workflow, report *Report) {
	var triggers []*GraphNode
	for i := range wf.Nodes {
		if wf.Nodes[i].Kind == domain.NodeKindTrigger {
			triggers = append(triggers, dag.GetNode(wf.Nodes[i].ID))
		}
	}

	reachable := dag.ReachableFrom(triggers)
	for i := range wf.Nodes {
		id := wf.Nodes[i].ID
		if !reachable[id] {
			report.addWarning(nodeError(id, ErrUnreachableNode, "not reachable from any trigger"))
		}
	}
}
