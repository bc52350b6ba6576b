package rules

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"pantry/internal/server/storage"
)

// Rule expressions are parsed once at load time into a closed AST and
// interpreted per request; no dynamic code execution. The grammar covers
// what declarative rule files need:
//
//	expr    := and ( ("or" | "||") and )*
//	and     := unary ( ("and" | "&&") unary )*
//	unary   := ("not" | "!") unary | cmp
//	cmp     := primary ( ("=" | "==" | "!=" | "<" | "<=" | ">" | ">=") primary )?
//	primary := literal | path | call | "(" expr ")"
//	call    := "isOwner" "(" expr "," expr ")" | "get" "(" expr "," expr ")"
//	path    := ("user" | "data" | "newData") ( "." ident )*
//
// Literals are single- or double-quoted strings, numbers, true, false and
// null.

// Env is the evaluation scope of one access check.
type Env struct {
	User    storage.Record
	Data    storage.Record
	NewData storage.Record
	// Get resolves a record for get(collection, id) lookups.
	Get func(collection, id string) (storage.Record, error)
}

// Expr is a compiled rule expression.
type Expr interface {
	eval(env *Env) any
}

type litExpr struct{ value any }

func (e litExpr) eval(*Env) any { return e.value }

type pathExpr struct {
	root string // user, data or newData
	path []string
}

func (e pathExpr) eval(env *Env) any {
	var root storage.Record
	switch e.root {
	case "user":
		root = env.User
	case "data":
		root = env.Data
	case "newData":
		root = env.NewData
	}
	if root == nil {
		return nil
	}
	var current any = root
	for _, field := range e.path {
		rec, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current = rec[field]
	}
	return current
}

type getExpr struct{ collection, id Expr }

func (e getExpr) eval(env *Env) any {
	collection, _ := e.collection.eval(env).(string)
	id, _ := e.id.eval(env).(string)
	if env.Get == nil {
		return nil
	}
	rec, err := env.Get(collection, id)
	if err != nil {
		return nil
	}
	return rec
}

type isOwnerExpr struct{ user, record Expr }

func (e isOwnerExpr) eval(env *Env) any {
	user, ok := e.user.eval(env).(map[string]any)
	if !ok {
		return false
	}
	rec, ok := e.record.eval(env).(map[string]any)
	if !ok {
		return false
	}
	return storage.LooseEqual(user["_id"], rec["_ownerId"])
}

type binExpr struct {
	op    string
	left  Expr
	right Expr
}

func (e binExpr) eval(env *Env) any {
	switch e.op {
	case "and":
		return truthy(e.left.eval(env)) && truthy(e.right.eval(env))
	case "or":
		return truthy(e.left.eval(env)) || truthy(e.right.eval(env))
	}

	l := e.left.eval(env)
	r := e.right.eval(env)
	switch e.op {
	case "=":
		return storage.LooseEqual(l, r)
	case "!=":
		return !storage.LooseEqual(l, r)
	}

	ln, lok := storage.Number(l)
	rn, rok := storage.Number(r)
	var cmp int
	if lok && rok {
		switch {
		case ln < rn:
			cmp = -1
		case ln > rn:
			cmp = 1
		}
	} else {
		if l == nil || r == nil {
			return false
		}
		cmp = strings.Compare(fmt.Sprint(l), fmt.Sprint(r))
	}

	switch e.op {
	case "<":
		return cmp < 0
	case "<=":
		return cmp <= 0
	case ">":
		return cmp > 0
	case ">=":
		return cmp >= 0
	}
	return false
}

type notExpr struct{ inner Expr }

func (e notExpr) eval(env *Env) any { return !truthy(e.inner.eval(env)) }

// truthy follows the loose-boolean convention of the original rule files:
// nil, false, zero and the empty string are false, everything else true.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	default:
		if n, ok := storage.Number(v); ok {
			return n != 0
		}
		return true
	}
}

// --- parser ---

type parser struct {
	tokens []token
	pos    int
}

type token struct {
	kind  string // ident, string, number, op
	text  string
	value any
}

// ParseExpr compiles an expression string into its AST.
func ParseExpr(src string) (Expr, error) {
	tokens, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.tokens) {
		return nil, fmt.Errorf("rule expression %q: unexpected %q", src, p.peek().text)
	}
	return expr, nil
}

func lex(src string) ([]token, error) {
	var tokens []token
	runes := []rune(src)
	i := 0
	for i < len(runes) {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '\'' || r == '"':
			quote := r
			j := i + 1
			for j < len(runes) && runes[j] != quote {
				j++
			}
			if j == len(runes) {
				return nil, fmt.Errorf("unterminated string in rule expression")
			}
			tokens = append(tokens, token{kind: "string", value: string(runes[i+1 : j])})
			i = j + 1
		case unicode.IsDigit(r):
			j := i
			for j < len(runes) && (unicode.IsDigit(runes[j]) || runes[j] == '.') {
				j++
			}
			n, err := strconv.ParseFloat(string(runes[i:j]), 64)
			if err != nil {
				return nil, fmt.Errorf("bad number in rule expression: %w", err)
			}
			tokens = append(tokens, token{kind: "number", value: n})
			i = j
		case unicode.IsLetter(r) || r == '_':
			j := i
			for j < len(runes) && (unicode.IsLetter(runes[j]) || unicode.IsDigit(runes[j]) || runes[j] == '_') {
				j++
			}
			tokens = append(tokens, token{kind: "ident", text: string(runes[i:j])})
			i = j
		default:
			two := ""
			if i+1 < len(runes) {
				two = string(runes[i : i+2])
			}
			switch two {
			case "==", "!=", "<=", ">=", "&&", "||":
				tokens = append(tokens, token{kind: "op", text: two})
				i += 2
				continue
			}
			switch r {
			case '=', '<', '>', '!', '(', ')', ',', '.':
				tokens = append(tokens, token{kind: "op", text: string(r)})
				i++
			default:
				return nil, fmt.Errorf("unexpected %q in rule expression", string(r))
			}
		}
	}
	return tokens, nil
}

func (p *parser) peek() token {
	if p.pos < len(p.tokens) {
		return p.tokens[p.pos]
	}
	return token{}
}

func (p *parser) next() token {
	t := p.peek()
	p.pos++
	return t
}

func (p *parser) accept(kind, text string) bool {
	t := p.peek()
	if t.kind == kind && (text == "" || t.text == text) {
		p.pos++
		return true
	}
	return false
}

func (p *parser) expect(kind, text string) error {
	if !p.accept(kind, text) {
		return fmt.Errorf("rule expression: expected %q, got %q", text, p.peek().text)
	}
	return nil
}

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.accept("ident", "or") || p.accept("op", "||") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = binExpr{op: "or", left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.accept("ident", "and") || p.accept("op", "&&") {
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = binExpr{op: "and", left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (Expr, error) {
	if p.accept("ident", "not") || p.accept("op", "!") {
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return notExpr{inner: inner}, nil
	}
	return p.parseComparison()
}

var comparisonOps = map[string]string{
	"=": "=", "==": "=", "!=": "!=",
	"<": "<", "<=": "<=", ">": ">", ">=": ">=",
}

func (p *parser) parseComparison() (Expr, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	t := p.peek()
	if t.kind == "op" {
		if op, ok := comparisonOps[t.text]; ok {
			p.pos++
			right, err := p.parsePrimary()
			if err != nil {
				return nil, err
			}
			return binExpr{op: op, left: left, right: right}, nil
		}
	}
	return left, nil
}

func (p *parser) parsePrimary() (Expr, error) {
	t := p.peek()
	switch {
	case t.kind == "string" || t.kind == "number":
		p.pos++
		return litExpr{value: t.value}, nil

	case t.kind == "op" && t.text == "(":
		p.pos++
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if err := p.expect("op", ")"); err != nil {
			return nil, err
		}
		return inner, nil

	case t.kind == "ident":
		p.pos++
		switch t.text {
		case "true":
			return litExpr{value: true}, nil
		case "false":
			return litExpr{value: false}, nil
		case "null":
			return litExpr{value: nil}, nil
		case "get", "isOwner":
			if err := p.expect("op", "("); err != nil {
				return nil, err
			}
			first, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			if err := p.expect("op", ","); err != nil {
				return nil, err
			}
			second, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			if err := p.expect("op", ")"); err != nil {
				return nil, err
			}
			if t.text == "get" {
				return getExpr{collection: first, id: second}, nil
			}
			return isOwnerExpr{user: first, record: second}, nil
		case "user", "data", "newData":
			path := []string{}
			for p.accept("op", ".") {
				field := p.next()
				if field.kind != "ident" {
					return nil, fmt.Errorf("rule expression: expected field name after '.'")
				}
				path = append(path, field.text)
			}
			return pathExpr{root: t.text, path: path}, nil
		default:
			return nil, fmt.Errorf("rule expression: unknown identifier %q", t.text)
		}
	}
	return nil, fmt.Errorf("rule expression: unexpected %q", t.text)
}
