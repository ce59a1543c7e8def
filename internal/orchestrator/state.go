package orchestrator

import (
	"github.com/shaiso/Nodeflow/internal/domain"
	"github.com/shaiso/Nodeflow/internal/engine"
)

// nodeState: итоговое состояние узла в рамках одного прохода.
type nodeState int

const (
	stateUnvisited nodeState = iota
	stateCompleted
	stateFailed
	stateBlocked
	statePruned
)

func (s nodeState) String() string {
	switch s {
	case stateCompleted:
		return "completed"
	case stateFailed:
		return "failed"
	case stateBlocked:
		return "blocked"
	case statePruned:
		return "pruned"
	default:
		return "unvisited"
	}
}

// decision: что делать с очередным узлом.
type decision int

const (
	decisionRun decision = iota
	decisionPruned
	decisionBlocked
)

// edgeState: состояние входящего ребра.
type edgeState int

const (
	edgeLive edgeState = iota
	edgeDead
	edgeBlocking
)

// RunState: состояние одного прохода по графу в памяти.
//
// Создаётся в начале Run и живёт до его конца. Хранит итог каждого
// посещённого узла; решения о запуске следующих узлов принимаются
// только по уже известным итогам предшественников.
type RunState struct {
	// DAG: граф снимка workflow.
	DAG *engine.DAG

	states   map[string]nodeState
	results  map[string]*domain.ExecutionResult
	position int
}

// NewRunState создаёт RunState для графа.
func NewRunState(dag *engine.DAG) *RunState {
	return &RunState{
		DAG:     dag,
		states:  make(map[string]nodeState, dag.Size()),
		results: make(map[string]*domain.ExecutionResult, dag.Size()),
	}
}

// classify решает судьбу узла по его входящим рёбрам.
//
// Любое блокирующее ребро блокирует узел. Если живых рёбер нет,
// а входящие есть, узел отсечён. Корни всегда запускаются.
func (s *RunState) classify(n *engine.GraphNode) decision {
	if len(n.Incoming) == 0 {
		return decisionRun
	}

	live := false
	for _, e := range n.Incoming {
		switch s.edgeState(e) {
		case edgeBlocking:
			return decisionBlocked
		case edgeLive:
			live = true
		}
	}

	if !live {
		return decisionPruned
	}
	return decisionRun
}

// edgeState определяет состояние ребра по итогу его источника.
func (s *RunState) edgeState(e *engine.GraphEdge) edgeState {
	switch s.states[e.Source.ID] {
	case stateFailed, stateBlocked:
		return edgeBlocking
	case stateCompleted:
		if e.Branch != "" && e.Source.IsBranch() && s.takenPath(e.Source.ID) != e.Branch {
			return edgeDead
		}
		return edgeLive
	default:
		// pruned; непосещённых источников в топологическом порядке не бывает
		return edgeDead
	}
}

// takenPath возвращает выбранную ветку завершённого branch_condition.
func (s *RunState) takenPath(nodeID string) string {
	result := s.results[nodeID]
	if result == nil {
		return ""
	}
	path, _ := result.Data["path"].(string)
	return path
}

// MarkCompleted фиксирует успешный узел.
func (s *RunState) MarkCompleted(nodeID string, result *domain.ExecutionResult) {
	s.states[nodeID] = stateCompleted
	s.results[nodeID] = result
}

// MarkFailed фиксирует упавший узел.
func (s *RunState) MarkFailed(nodeID string, result *domain.ExecutionResult) {
	s.states[nodeID] = stateFailed
	s.results[nodeID] = result
}

// MarkBlocked фиксирует узел, который не запускался из-за падения предка.
func (s *RunState) MarkBlocked(nodeID string) {
	s.states[nodeID] = stateBlocked
}

// MarkPruned фиксирует узел невыбранной ветки.
func (s *RunState) MarkPruned(nodeID string) {
	s.states[nodeID] = statePruned
}

// NextPosition выдаёт порядковый номер следующего шага.
func (s *RunState) NextPosition() int {
	p := s.position
	s.position++
	return p
}

// HasFailed проверяет, есть ли упавшие узлы.
func (s *RunState) HasFailed() bool {
	for _, st := range s.states {
		if st == stateFailed {
			return true
		}
	}
	return false
}

// Stats возвращает счётчики по состояниям.
func (s *RunState) Stats() RunStats {
	stats := RunStats{TotalNodes: s.DAG.Size()}
	for _, st := range s.states {
		switch st {
		case stateCompleted:
			stats.Completed++
		case stateFailed:
			stats.Failed++
		case stateBlocked:
			stats.Blocked++
		case statePruned:
			stats.Pruned++
		}
	}
	stats.Unvisited = stats.TotalNodes - stats.Completed - stats.Failed - stats.Blocked - stats.Pruned
	return stats
}

// RunStats: статистика прохода.
type RunStats struct {
	TotalNodes int
	Completed  int
	Failed     int
	Blocked    int
	Pruned     int
	Unvisited  int
}
