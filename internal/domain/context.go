package domain

import "github.com/google/uuid"

// WorkflowContext: изменяемое состояние одного execution.
//
// Принадлежит ровно одному выполнению scheduler'а и не разделяется
// между executions. Интеграции получают его только на чтение.
type WorkflowContext struct {
	ExecutionID uuid.UUID
	Variables   map[string]any
	NodeOutputs map[string]*ExecutionResult
}

// NewWorkflowContext создаёт контекст, заполняя переменные из inputs.
func NewWorkflowContext(executionID uuid.UUID, inputs map[string]any) *WorkflowContext {
	vars := CloneMap(inputs)
	if vars == nil {
		vars = make(map[string]any)
	}
	return &WorkflowContext{
		ExecutionID: executionID,
		Variables:   vars,
		NodeOutputs: make(map[string]*ExecutionResult),
	}
}

// SetNodeOutput сохраняет результат узла.
func (c *WorkflowContext) SetNodeOutput(nodeID string, result *ExecutionResult) {
	c.NodeOutputs[nodeID] = result
}

// SetVariable устанавливает переменную.
func (c *WorkflowContext) SetVariable(name string, value any) {
	c.Variables[name] = value
}

// NodeOutput возвращает результат узла.
func (c *WorkflowContext) NodeOutput(nodeID string) (*ExecutionResult, bool) {
	r, ok := c.NodeOutputs[nodeID]
	return r, ok
}

// Variable возвращает переменную.
func (c *WorkflowContext) Variable(name string) (any, bool) {
	v, ok := c.Variables[name]
	return v, ok
}

// Snapshot возвращает JSON-подобное представление контекста
// ({"vars": ..., "nodes": ...}); используется transform-интеграцией.
func (c *WorkflowContext) Snapshot() map[string]any {
	nodes := make(map[string]any, len(c.NodeOutputs))
	for id, r := range c.NodeOutputs {
		nodes[id] = r.AsMap()
	}
	return map[string]any{
		"vars":  CloneMap(c.Variables),
		"nodes": nodes,
	}
}
