package engine

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shaiso/Nodeflow/internal/domain"
)

// Mode: режим вывода разрешённых значений.
type Mode int

const (
	// ModeBare: скаляры в естественном виде, объекты и массивы как JSON.
	// Для полей, которые читает человек: тело сообщения, URL.
	ModeBare Mode = iota

	// ModeQuoted: строки дополнительно оборачиваются в экранированный
	// литерал в одинарных кавычках. Для текста, который будет вычислен
	// как условие.
	ModeQuoted
)

// Префиксы поддерживаемых выражений.
const (
	prefixNode = "$node."
	prefixVars = "$vars."

	openDelim  = "{{"
	closeDelim = "}}"
)

// Resolve подставляет значения во все строки внутри value.
//
// Строки разрешаются через ResolveString, map и slice обходятся рекурсивно,
// остальные типы возвращаются как есть. Исходное значение не изменяется.
func Resolve(value any, wctx *domain.WorkflowContext, mode Mode) (any, []UnresolvedExpression) {
	var misses []UnresolvedExpression
	out := resolveValue(value, wctx, mode, &misses)
	return out, misses
}

// ResolveConfig разрешает все строковые поля конфигурации узла.
func ResolveConfig(config map[string]any, wctx *domain.WorkflowContext, mode Mode) (map[string]any, []UnresolvedExpression) {
	if config == nil {
		return map[string]any{}, nil
	}
	var misses []UnresolvedExpression
	out := resolveValue(config, wctx, mode, &misses).(map[string]any)
	return out, misses
}

func resolveValue(value any, wctx *domain.WorkflowContext, mode Mode, misses *[]UnresolvedExpression) any {
	switch v := value.(type) {
	case string:
		s, m := ResolveString(v, wctx, mode)
		*misses = append(*misses, m...)
		return s
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = resolveValue(item, wctx, mode, misses)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = resolveValue(item, wctx, mode, misses)
		}
		return out
	default:
		return value
	}
}

// ResolveString заменяет каждое вхождение {{ expr }} значением из контекста.
//
// Поддерживаемые формы:
//   - {{$node.<nodeId>.<path>}}: результат узла (success, data, error, metadata)
//   - {{$vars.<name>[.<path>]}}: переменная контекста
//
// Если узел, переменная или путь не найдены, плейсхолдер остаётся как есть,
// а в возвращаемый список добавляется диагностика. Плейсхолдеры разрешаются
// независимо, слева направо; функция не имеет побочных эффектов.
func ResolveString(s string, wctx *domain.WorkflowContext, mode Mode) (string, []UnresolvedExpression) {
	if !strings.Contains(s, openDelim) {
		return s, nil
	}

	var (
		b      strings.Builder
		misses []UnresolvedExpression
		rest   = s
	)
	b.Grow(len(s))

	for {
		start := strings.Index(rest, openDelim)
		if start < 0 {
			b.WriteString(rest)
			break
		}
		end := strings.Index(rest[start+len(openDelim):], closeDelim)
		if end < 0 {
			// Незакрытый плейсхолдер: литерал
			b.WriteString(rest)
			break
		}
		end += start + len(openDelim)

		b.WriteString(rest[:start])
		raw := rest[start : end+len(closeDelim)]
		expr := strings.TrimSpace(rest[start+len(openDelim) : end])

		value, err := lookup(expr, wctx)
		if err != nil {
			b.WriteString(raw)
			misses = append(misses, UnresolvedExpression{Expression: expr, Reason: err.Error()})
		} else {
			b.WriteString(formatValue(value, mode))
		}

		rest = rest[end+len(closeDelim):]
	}

	return b.String(), misses
}

// lookup вычисляет одно выражение.
func lookup(expr string, wctx *domain.WorkflowContext) (any, error) {
	if wctx == nil {
		return nil, fmt.Errorf("no context")
	}

	switch {
	case strings.HasPrefix(expr, prefixNode):
		nodeID, path := splitHead(strings.TrimPrefix(expr, prefixNode))
		if nodeID == "" {
			return nil, fmt.Errorf("empty node id")
		}
		result, ok := wctx.NodeOutput(nodeID)
		if !ok || result == nil {
			return nil, fmt.Errorf("node %q has no output", nodeID)
		}
		return walkPath(result.AsMap(), path)

	case strings.HasPrefix(expr, prefixVars):
		name, path := splitHead(strings.TrimPrefix(expr, prefixVars))
		if name == "" {
			return nil, fmt.Errorf("empty variable name")
		}
		value, ok := wctx.Variable(name)
		if !ok {
			return nil, fmt.Errorf("variable %q is not set", name)
		}
		return walkPath(value, path)
	}

	return nil, fmt.Errorf("unrecognized expression")
}

// splitHead делит "a.b.c" на "a" и "b.c".
func splitHead(s string) (string, string) {
	head, tail, _ := strings.Cut(s, ".")
	return head, tail
}

// walkPath проходит по точечному пути внутрь JSON-подобного значения.
//
// Сегменты индексируют объекты по ключу и массивы по десятичному индексу;
// запись items[0] эквивалентна items.0. Отсутствующий ключ: ошибка,
// присутствующий ключ со значением nil: найденный null.
func walkPath(value any, path string) (any, error) {
	if path == "" {
		return value, nil
	}

	path = strings.ReplaceAll(path, "[", ".")
	path = strings.ReplaceAll(path, "]", "")

	current := value
	for _, seg := range strings.Split(path, ".") {
		if seg == "" {
			continue
		}
		switch v := current.(type) {
		case map[string]any:
			next, ok := v[seg]
			if !ok {
				return nil, fmt.Errorf("path segment %q not found", seg)
			}
			current = next
		case map[string]string:
			next, ok := v[seg]
			if !ok {
				return nil, fmt.Errorf("path segment %q not found", seg)
			}
			current = next
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(v) {
				return nil, fmt.Errorf("index %q out of range", seg)
			}
			current = v[idx]
		case []string:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(v) {
				return nil, fmt.Errorf("index %q out of range", seg)
			}
			current = v[idx]
		default:
			return nil, fmt.Errorf("cannot descend into %T at %q", current, seg)
		}
	}
	return current, nil
}

// formatValue превращает значение в текст согласно режиму.
func formatValue(value any, mode Mode) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		if mode == ModeQuoted {
			return QuoteLiteral(v)
		}
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", v)
	case json.Number:
		return v.String()
	}

	data, err := json.Marshal(value)
	if err != nil {
		data = []byte(fmt.Sprint(value))
	}
	if mode == ModeQuoted {
		return QuoteLiteral(string(data))
	}
	return string(data)
}

// QuoteLiteral оборачивает строку в одинарные кавычки, экранируя \ и '.
func QuoteLiteral(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `\'`)
	return "'" + s + "'"
}
