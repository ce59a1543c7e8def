package engine

import (
	"fmt"
	"strconv"
	"strings"
)

// EvaluateCondition вычисляет условие branch_condition.
//
// Грамматика (без вызова произвольного кода):
//
//	expr       := and ( "||" and )*
//	and        := comparison ( "&&" comparison )*
//	comparison := unary ( ( "===" | "!==" | "==" | "!=" | "<" | "<=" | ">" | ">=" ) unary )?
//	unary      := "!" unary | primary
//	primary    := number | string | "true" | "false" | "null" | "(" expr ")"
//
// Строки в одинарных или двойных кавычках с экранированием через \.
// Одиночный литерал приводится к bool по правилам truthiness.
// Всё, что не разбирается (включая неразрешённый {{...}}) является ошибкой ErrConditionSyntax.
func EvaluateCondition(expr string) (bool, error) {
	tokens, err := tokenize(expr)
	if err != nil {
		return false, err
	}
	if len(tokens) == 0 {
		return false, fmt.Errorf("%w: empty condition", ErrConditionSyntax)
	}

	p := &condParser{tokens: tokens}
	value, err := p.parseOr()
	if err != nil {
		return false, err
	}
	if !p.done() {
		return false, fmt.Errorf("%w: unexpected %q at offset %d", ErrConditionSyntax, p.peek().text, p.peek().pos)
	}
	return truthy(value), nil
}

type tokenKind int

const (
	tokNumber tokenKind = iota
	tokString
	tokIdent
	tokOp
	tokLParen
	tokRParen
)

type token struct {
	kind  tokenKind
	text  string
	value any
	pos   int
}

// operators упорядочены от длинных к коротким для жадного сопоставления.
var operators = []string{"===", "!==", "==", "!=", "<=", ">=", "&&", "||", "<", ">", "!"}

func tokenize(s string) ([]token, error) {
	var tokens []token
	i := 0

	for i < len(s) {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++

		case c == '(':
			tokens = append(tokens, token{kind: tokLParen, text: "(", pos: i})
			i++

		case c == ')':
			tokens = append(tokens, token{kind: tokRParen, text: ")", pos: i})
			i++

		case c == '\'' || c == '"':
			str, next, err := scanString(s, i)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token{kind: tokString, text: s[i:next], value: str, pos: i})
			i = next

		case isDigit(c) || c == '.' || (c == '-' && expectsOperand(tokens) && i+1 < len(s) && (isDigit(s[i+1]) || s[i+1] == '.')):
			start := i
			i++
			for i < len(s) && (isDigit(s[i]) || s[i] == '.' || s[i] == 'e' || s[i] == 'E' ||
				((s[i] == '+' || s[i] == '-') && (s[i-1] == 'e' || s[i-1] == 'E'))) {
				i++
			}
			n, err := strconv.ParseFloat(s[start:i], 64)
			if err != nil {
				return nil, fmt.Errorf("%w: bad number %q at offset %d", ErrConditionSyntax, s[start:i], start)
			}
			tokens = append(tokens, token{kind: tokNumber, text: s[start:i], value: n, pos: start})

		case isLetter(c):
			start := i
			for i < len(s) && (isLetter(s[i]) || isDigit(s[i])) {
				i++
			}
			word := s[start:i]
			var value any
			switch word {
			case "true":
				value = true
			case "false":
				value = false
			case "null":
				value = nil
			default:
				return nil, fmt.Errorf("%w: unknown identifier %q at offset %d", ErrConditionSyntax, word, start)
			}
			tokens = append(tokens, token{kind: tokIdent, text: word, value: value, pos: start})

		default:
			op := matchOperator(s[i:])
			if op == "" {
				return nil, fmt.Errorf("%w: unexpected character %q at offset %d", ErrConditionSyntax, c, i)
			}
			tokens = append(tokens, token{kind: tokOp, text: op, pos: i})
			i += len(op)
		}
	}

	return tokens, nil
}

// expectsOperand сообщает, ожидается ли на этой позиции значение (для унарного минуса).
func expectsOperand(tokens []token) bool {
	if len(tokens) == 0 {
		return true
	}
	last := tokens[len(tokens)-1]
	return last.kind == tokOp || last.kind == tokLParen
}

func matchOperator(s string) string {
	for _, op := range operators {
		if strings.HasPrefix(s, op) {
			return op
		}
	}
	return ""
}

func scanString(s string, start int) (string, int, error) {
	quote := s[start]
	var b strings.Builder
	i := start + 1
	for i < len(s) {
		c := s[i]
		switch {
		case c == '\\' && i+1 < len(s):
			switch s[i+1] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			default:
				b.WriteByte(s[i+1])
			}
			i += 2
		case c == quote:
			return b.String(), i + 1, nil
		default:
			b.WriteByte(c)
			i++
		}
	}
	return "", 0, fmt.Errorf("%w: unterminated string at offset %d", ErrConditionSyntax, start)
}

func isDigit(c byte) bool  { return c >= '0' && c <= '9' }
func isLetter(c byte) bool { return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }

// condParser: рекурсивный спуск по токенам.
type condParser struct {
	tokens []token
	pos    int
}

func (p *condParser) done() bool  { return p.pos >= len(p.tokens) }
func (p *condParser) peek() token { return p.tokens[p.pos] }

func (p *condParser) acceptOp(ops ...string) (string, bool) {
	if p.done() || p.peek().kind != tokOp {
		return "", false
	}
	for _, op := range ops {
		if p.peek().text == op {
			p.pos++
			return op, true
		}
	}
	return "", false
}

func (p *condParser) parseOr() (any, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.acceptOp("||"); !ok {
			return left, nil
		}
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = truthy(left) || truthy(right)
	}
}

func (p *condParser) parseAnd() (any, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.acceptOp("&&"); !ok {
			return left, nil
		}
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		left = truthy(left) && truthy(right)
	}
}

func (p *condParser) parseComparison() (any, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	op, ok := p.acceptOp("===", "!==", "==", "!=", "<=", ">=", "<", ">")
	if !ok {
		return left, nil
	}
	right, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	return compare(op, left, right)
}

func (p *condParser) parseUnary() (any, error) {
	if _, ok := p.acceptOp("!"); ok {
		v, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return !truthy(v), nil
	}
	return p.parsePrimary()
}

func (p *condParser) parsePrimary() (any, error) {
	if p.done() {
		return nil, fmt.Errorf("%w: unexpected end of condition", ErrConditionSyntax)
	}
	tok := p.peek()
	switch tok.kind {
	case tokNumber, tokString, tokIdent:
		p.pos++
		return tok.value, nil
	case tokLParen:
		p.pos++
		v, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.done() || p.peek().kind != tokRParen {
			return nil, fmt.Errorf("%w: missing closing parenthesis", ErrConditionSyntax)
		}
		p.pos++
		return v, nil
	}
	return nil, fmt.Errorf("%w: unexpected %q at offset %d", ErrConditionSyntax, tok.text, tok.pos)
}

func compare(op string, left, right any) (bool, error) {
	switch op {
	case "===":
		return strictEqual(left, right), nil
	case "!==":
		return !strictEqual(left, right), nil
	case "==":
		return looseEqual(left, right), nil
	case "!=":
		return !looseEqual(left, right), nil
	}

	switch l := left.(type) {
	case float64:
		r, ok := right.(float64)
		if !ok {
			return false, fmt.Errorf("%w: %v %s %v", ErrConditionType, left, op, right)
		}
		return orderFloat(op, l, r), nil
	case string:
		r, ok := right.(string)
		if !ok {
			return false, fmt.Errorf("%w: %v %s %v", ErrConditionType, left, op, right)
		}
		return orderFloat(op, float64(strings.Compare(l, r)), 0), nil
	}
	return false, fmt.Errorf("%w: %v %s %v", ErrConditionType, left, op, right)
}

func orderFloat(op string, l, r float64) bool {
	switch op {
	case "<":
		return l < r
	case "<=":
		return l <= r
	case ">":
		return l > r
	default:
		return l >= r
	}
}

func strictEqual(left, right any) bool {
	switch l := left.(type) {
	case nil:
		return right == nil
	case float64:
		r, ok := right.(float64)
		return ok && l == r
	case string:
		r, ok := right.(string)
		return ok && l == r
	case bool:
		r, ok := right.(bool)
		return ok && l == r
	}
	return false
}

// looseEqual сравнивает число со строкой или bool по числовому значению.
func looseEqual(left, right any) bool {
	if strictEqual(left, right) {
		return true
	}
	ln, lok := toNumber(left)
	rn, rok := toNumber(right)
	return lok && rok && ln == rn
}

func toNumber(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case bool:
		if val {
			return 1, true
		}
		return 0, true
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return n, err == nil
	}
	return 0, false
}

func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case float64:
		return val != 0
	case string:
		return val != ""
	}
	return true
}
