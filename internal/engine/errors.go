package engine

import (
	"errors"
	"fmt"
)

// Структурные ошибки графа.
var (
	// ErrGraphCycle: граф содержит цикл.
	ErrGraphCycle = errors.New("graph contains a cycle")

	// ErrGraphReference: ребро ссылается на несуществующий узел.
	ErrGraphReference = errors.New("edge references unknown node")

	// ErrUnknownIntegration: для subtype нет зарегистрированной интеграции.
	ErrUnknownIntegration = errors.New("unknown integration")

	// ErrInvalidNode: узел с пустым или повторяющимся ID, либо неизвестным kind.
	ErrInvalidNode = errors.New("invalid node")

	// ErrInvalidBranch: некорректный тег ветки на ребре.
	ErrInvalidBranch = errors.New("invalid branch edge")

	// ErrUnreachableNode: узел недостижим ни из одного trigger (предупреждение).
	ErrUnreachableNode = errors.New("node is unreachable from any trigger")

	// ErrEmptyGraph: в графе нет узлов.
	ErrEmptyGraph = errors.New("graph has no nodes")

	// ErrInvalidConfig: конфигурация узла не прошла проверку интеграции.
	ErrInvalidConfig = errors.New("invalid node config")
)

// Ошибки выражений и выполнения.
var (
	// ErrExpressionUnresolved: плейсхолдер не удалось разрешить (не фатально).
	ErrExpressionUnresolved = errors.New("expression unresolved")

	// ErrNodeExecutionFailure: интеграция вернула или выбросила ошибку.
	ErrNodeExecutionFailure = errors.New("node execution failed")

	// ErrConditionSyntax: условие не разбирается.
	ErrConditionSyntax = errors.New("invalid condition syntax")

	// ErrConditionType: операнды сравнения несовместимы.
	ErrConditionType = errors.New("incompatible condition operands")
)

// GraphError: ошибка валидации графа с привязкой к узлу или ребру.
type GraphError struct {
	NodeID  string `json:"node_id,omitempty"` // узел, где обнаружена ошибка
	EdgeID  string `json:"edge_id,omitempty"` // ребро, где обнаружена ошибка
	Field   string `json:"field,omitempty"`   // поле config, для ошибок интеграции
	Message string `json:"message"`
	Err     error  `json:"-"` // один из sentinel выше
}

// Kind возвращает код категории ошибки для API и логов.
func (e *GraphError) Kind() string {
	switch {
	case errors.Is(e.Err, ErrGraphCycle):
		return "GraphCycle"
	case errors.Is(e.Err, ErrGraphReference):
		return "GraphReferenceError"
	case errors.Is(e.Err, ErrUnknownIntegration):
		return "UnknownIntegration"
	case errors.Is(e.Err, ErrInvalidBranch):
		return "InvalidBranch"
	case errors.Is(e.Err, ErrUnreachableNode):
		return "UnreachableNode"
	case errors.Is(e.Err, ErrInvalidConfig):
		return "InvalidConfig"
	}
	return "InvalidGraph"
}

// Error реализует интерфейс error.
func (e *GraphError) Error() string {
	switch {
	case e.EdgeID != "":
		return "edge " + e.EdgeID + ": " + e.Message
	case e.NodeID != "" && e.Field != "":
		return "node " + e.NodeID + ": " + e.Field + ": " + e.Message
	case e.NodeID != "":
		return "node " + e.NodeID + ": " + e.Message
	}
	return e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *GraphError) Unwrap() error {
	return e.Err
}

func nodeError(nodeID string, err error, format string, args ...any) *GraphError {
	return &GraphError{NodeID: nodeID, Message: fmt.Sprintf(format, args...), Err: err}
}

// NewConfigError создаёт ошибку конфигурации узла.
func NewConfigError(nodeID, field, message string) *GraphError {
	return &GraphError{NodeID: nodeID, Field: field, Message: message, Err: ErrInvalidConfig}
}

func edgeError(edgeID string, err error, format string, args ...any) *GraphError {
	return &GraphError{EdgeID: edgeID, Message: fmt.Sprintf(format, args...), Err: err}
}

// UnresolvedExpression: диагностика неразрешённого плейсхолдера.
type UnresolvedExpression struct {
	// Expression: текст внутри {{ }}.
	Expression string
	// Reason: почему не разрешилось.
	Reason string
}

// Error реализует интерфейс error.
func (u UnresolvedExpression) Error() string {
	return fmt.Sprintf("%s: {{%s}}: %s", ErrExpressionUnresolved, u.Expression, u.Reason)
}

// Unwrap возвращает ErrExpressionUnresolved.
func (u UnresolvedExpression) Unwrap() error {
	return ErrExpressionUnresolved
}
