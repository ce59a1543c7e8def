package engine

import (
	"container/heap"
	"fmt"
	"strings"

	"github.com/shaiso/Nodeflow/internal/domain"
)

// GraphNode: узел в DAG.
type GraphNode struct {
	// Node: исходное определение (из снимка workflow).
	Node *domain.Node

	// ID: идентификатор узла.
	ID string

	// Index: позиция в исходной последовательности узлов; tie-break сортировки.
	Index int

	// Incoming: входящие рёбра в исходном порядке.
	Incoming []*GraphEdge

	// Outgoing: исходящие рёбра в исходном порядке.
	Outgoing []*GraphEdge

	// InDegree: количество различных предшественников.
	InDegree int
}

// IsBranch возвращает true для узла branch_condition.
func (n *GraphNode) IsBranch() bool {
	return n.Node.Subtype == domain.SubtypeBranchCondition
}

// GraphEdge: ребро в DAG.
type GraphEdge struct {
	ID     string
	Source *GraphNode
	Target *GraphNode

	// Branch: "true", "false" или пусто.
	Branch string
}

// DAG: направленный ациклический граф узлов workflow.
type DAG struct {
	// Nodes: все узлы по ID.
	Nodes map[string]*GraphNode

	// RootNodes: узлы без входящих рёбер, в исходном порядке.
	RootNodes []*GraphNode

	// Order: топологический порядок выполнения.
	// Среди готовых узлов раньше идёт тот, что раньше в исходной последовательности.
	Order []*GraphNode
}

// BuildDAG строит DAG из workflow.
//
// Алгоритм:
//  1. Создаём узлы для всех Node
//  2. Связываем узлы по Edge
//  3. Находим корневые узлы
//  4. Выполняем топологическую сортировку (Kahn's algorithm с min-heap по Index)
//
// Возвращает ошибку, если граф ссылается на несуществующие узлы или содержит цикл.
func BuildDAG(wf *domain.Workflow) (*DAG, error) {
	dag := &DAG{
		Nodes: make(map[string]*GraphNode, len(wf.Nodes)),
	}

	// Первый проход: создаём все узлы
	for i := range wf.Nodes {
		node := &wf.Nodes[i]
		if node.ID == "" {
			return nil, nodeError("", ErrInvalidNode, "node at position %d has empty id", i)
		}
		if _, exists := dag.Nodes[node.ID]; exists {
			return nil, nodeError(node.ID, ErrInvalidNode, "duplicate node id")
		}
		dag.Nodes[node.ID] = &GraphNode{Node: node, ID: node.ID, Index: i}
	}

	// Второй проход: связываем рёбра
	for i := range wf.Edges {
		if err := dag.addEdge(&wf.Edges[i]); err != nil {
			return nil, err
		}
	}

	dag.findRootNodes(wf)

	if err := dag.topologicalSort(); err != nil {
		return nil, err
	}

	return dag, nil
}

// addEdge добавляет ребро, проверяя ссылки.
// Повторное ребро с теми же source, target и branch игнорируется.
func (d *DAG) addEdge(e *domain.Edge) error {
	source, ok := d.Nodes[e.Source]
	if !ok {
		return edgeError(e.ID, ErrGraphReference, "source %q does not exist", e.Source)
	}
	target, ok := d.Nodes[e.Target]
	if !ok {
		return edgeError(e.ID, ErrGraphReference, "target %q does not exist", e.Target)
	}
	if source == target {
		return edgeError(e.ID, ErrGraphCycle, "node %q depends on itself", e.Source)
	}

	newPredecessor := true
	for _, existing := range target.Incoming {
		if existing.Source == source {
			if existing.Branch == e.Branch {
				return nil
			}
			newPredecessor = false
		}
	}

	edge := &GraphEdge{ID: e.ID, Source: source, Target: target, Branch: e.Branch}
	source.Outgoing = append(source.Outgoing, edge)
	target.Incoming = append(target.Incoming, edge)
	if newPredecessor {
		target.InDegree++
	}
	return nil
}

// findRootNodes находит узлы без входящих рёбер.
func (d *DAG) findRootNodes(wf *domain.Workflow) {
	for i := range wf.Nodes {
		node := d.Nodes[wf.Nodes[i].ID]
		if node.InDegree == 0 {
			d.RootNodes = append(d.RootNodes, node)
		}
	}
}

// topologicalSort выполняет топологическую сортировку.
func (d *DAG) topologicalSort() error {
	inDegree := make(map[string]int, len(d.Nodes))
	for id, node := range d.Nodes {
		inDegree[id] = node.InDegree
	}

	ready := &nodeHeap{}
	for _, node := range d.RootNodes {
		heap.Push(ready, node)
	}

	order := make([]*GraphNode, 0, len(d.Nodes))
	for ready.Len() > 0 {
		node := heap.Pop(ready).(*GraphNode)
		order = append(order, node)

		seen := make(map[string]bool, len(node.Outgoing))
		for _, edge := range node.Outgoing {
			target := edge.Target
			if seen[target.ID] {
				continue
			}
			seen[target.ID] = true

			inDegree[target.ID]--
			if inDegree[target.ID] == 0 {
				heap.Push(ready, target)
			}
		}
	}

	if len(order) != len(d.Nodes) {
		var stuck []string
		for _, node := range d.sortedNodes() {
			if inDegree[node.ID] > 0 {
				stuck = append(stuck, node.ID)
			}
		}
		return &GraphError{
			Message: fmt.Sprintf("cycle through nodes [%s]", strings.Join(stuck, ", ")),
			Err:     ErrGraphCycle,
		}
	}

	d.Order = order
	return nil
}

// sortedNodes возвращает узлы в исходном порядке.
func (d *DAG) sortedNodes() []*GraphNode {
	nodes := make([]*GraphNode, len(d.Nodes))
	for _, node := range d.Nodes {
		nodes[node.Index] = node
	}
	return nodes
}

// GetNode возвращает узел по ID.
func (d *DAG) GetNode(id string) *GraphNode {
	return d.Nodes[id]
}

// Size возвращает количество узлов.
func (d *DAG) Size() int {
	return len(d.Nodes)
}

// OrderIDs возвращает ID узлов в топологическом порядке.
func (d *DAG) OrderIDs() []string {
	ids := make([]string, len(d.Order))
	for i, node := range d.Order {
		ids[i] = node.ID
	}
	return ids
}

// ReachableFrom возвращает множество узлов, достижимых из заданных (включая их самих).
func (d *DAG) ReachableFrom(starts []*GraphNode) map[string]bool {
	visited := make(map[string]bool, len(d.Nodes))
	stack := append([]*GraphNode(nil), starts...)
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[node.ID] {
			continue
		}
		visited[node.ID] = true
		for _, edge := range node.Outgoing {
			if !visited[edge.Target.ID] {
				stack = append(stack, edge.Target)
			}
		}
	}
	return visited
}

// nodeHeap: min-heap узлов по Index.
type nodeHeap []*GraphNode

func (h nodeHeap) Len() int           { return len(h) }
func (h nodeHeap) Less(i, j int) bool { return h[i].Index < h[j].Index }
func (h nodeHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *nodeHeap) Push(x any) {
	*h = append(*h, x.(*GraphNode))
}

func (h *nodeHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
