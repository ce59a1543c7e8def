package domain

import (
	"time"

	"github.com/google/uuid"
)

// NodeKind: категория узла графа.
type NodeKind string

const (
	NodeKindTrigger NodeKind = "trigger"
	NodeKindAction  NodeKind = "action"
	NodeKindLogic   NodeKind = "logic"
)

// IsValid проверяет, что kind входит в допустимый набор.
func (k NodeKind) IsValid() bool {
	switch k {
	case NodeKindTrigger, NodeKindAction, NodeKindLogic:
		return true
	}
	return false
}

// Значения тега ветки на ребре.
const (
	BranchTrue  = "true"
	BranchFalse = "false"
)

// Подтипы, которые ядро обрабатывает особо.
const (
	SubtypeSetVariable     = "set_variable"
	SubtypeBranchCondition = "branch_condition"
)

// Workflow: сохранённое определение графа.
//
// Узлы и рёбра хранятся как упорядоченные последовательности:
// порядок узлов используется как tie-break при топологической сортировке.
type Workflow struct {
	// ID: уникальный идентификатор workflow.
	ID uuid.UUID `json:"id"`

	// Name: человекочитаемое имя.
	Name string `json:"name"`

	// Nodes: узлы графа в исходном порядке.
	Nodes []Node `json:"nodes"`

	// Edges: рёбра графа в исходном порядке.
	Edges []Edge `json:"edges"`

	// CreatedAt: время создания.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt: время последнего изменения графа.
	UpdatedAt time.Time `json:"updated_at"`
}

// Node: один шаг графа.
type Node struct {
	// ID: идентификатор, уникальный в пределах графа.
	// На него ссылаются выражения {{$node.<id>...}}.
	ID string `json:"id"`

	// Name: отображаемое имя (опционально).
	Name string `json:"name,omitempty"`

	// Kind: trigger, action или logic.
	Kind NodeKind `json:"kind"`

	// Subtype: выбирает зарегистрированную интеграцию.
	Subtype string `json:"subtype"`

	// Config: параметры интеграции; строки могут содержать {{...}}.
	Config map[string]any `json:"config,omitempty"`
}

// Edge: направленная зависимость между узлами.
type Edge struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`

	// Branch: "true" или "false"; только для рёбер из branch_condition.
	Branch string `json:"branch,omitempty"`
}

// Node возвращает узел по ID или nil.
func (w *Workflow) Node(id string) *Node {
	for i := range w.Nodes {
		if w.Nodes[i].ID == id {
			return &w.Nodes[i]
		}
	}
	return nil
}

// Snapshot возвращает глубокую копию графа.
// Scheduler работает только со снимком: правки во время run его не затрагивают.
func (w *Workflow) Snapshot() *Workflow {
	cp := *w
	cp.Nodes = make([]Node, len(w.Nodes))
	for i, n := range w.Nodes {
		n.Config = CloneMap(n.Config)
		cp.Nodes[i] = n
	}
	cp.Edges = append([]Edge(nil), w.Edges...)
	return &cp
}

// CloneMap делает глубокую копию JSON-подобного значения map[string]any.
func CloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return CloneMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
