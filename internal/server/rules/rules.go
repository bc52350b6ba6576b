// Package rules enforces declarative per-collection access control.
// Rule files are YAML: top-level keys are collection names, dot-prefixed
// keys inside a node bind an action, the "*" key holds per-property
// sub-rules and any other key addresses a single record by id. Rule
// values are booleans, role lists or expression strings compiled by
// ParseExpr.
package rules

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"pantry/internal/common"
	"pantry/internal/server/storage"
)

// Action names one of the four record operations a rule can bind.
type Action string

const (
	ActionCreate Action = ".create"
	ActionRead   Action = ".read"
	ActionUpdate Action = ".update"
	ActionDelete Action = ".delete"
)

var methodActions = map[string]Action{
	"GET":    ActionRead,
	"POST":   ActionCreate,
	"PUT":    ActionUpdate,
	"PATCH":  ActionUpdate,
	"DELETE": ActionDelete,
}

// ActionForMethod maps an HTTP method to its rule action.
func ActionForMethod(method string) (Action, bool) {
	a, ok := methodActions[method]
	return a, ok
}

// Rule is one compiled rule value: BoolRule, RoleList or *ExprRule.
type Rule interface{ isRule() }

// BoolRule allows or denies unconditionally.
type BoolRule bool

func (BoolRule) isRule() {}

// RoleList allows the listed roles: Guest, User or Owner.
type RoleList []string

func (RoleList) isRule() {}

// ExprRule evaluates a compiled expression against the request scope.
type ExprRule struct {
	Source string
	expr   Expr
}

func (*ExprRule) isRule() {}

type propRule struct {
	prop string
	rule Rule
}

// ruleNode holds the action rules and property sub-rules of one scope
// (a collection or a single record within it).
type ruleNode struct {
	actions map[Action]Rule
	props   map[string]map[Action]Rule
}

type collectionRules struct {
	ruleNode
	records map[string]*ruleNode
}

// Engine resolves and checks access rules. The zero default grants
// create to User and update/delete to Owner; reads are unrestricted.
type Engine struct {
	collections map[string]*collectionRules
	get         func(collection, id string) (storage.Record, error)
}

// New builds an engine from an already decoded rule document. get backs
// the get(collection, id) expression function and may be nil.
func New(doc map[string]any, get func(collection, id string) (storage.Record, error)) (*Engine, error) {
	e := &Engine{
		collections: map[string]*collectionRules{
			"*": {ruleNode: ruleNode{actions: map[Action]Rule{
				ActionCreate: RoleList{"User"},
				ActionUpdate: RoleList{"Owner"},
				ActionDelete: RoleList{"Owner"},
			}}},
		},
		get: get,
	}
	for collection, raw := range doc {
		node, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("rules: collection %q is not a mapping", collection)
		}
		compiled, err := compileCollection(node)
		if err != nil {
			return nil, fmt.Errorf("rules: collection %q: %w", collection, err)
		}
		e.collections[collection] = compiled
	}
	return e, nil
}

// Load reads a YAML rule file. An empty path yields the default engine.
func Load(path string, get func(collection, id string) (storage.Record, error)) (*Engine, error) {
	if path == "" {
		return New(nil, get)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rules: reading %s: %w", path, err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("rules: parsing %s: %w", path, err)
	}
	return New(doc, get)
}

func compileCollection(src map[string]any) (*collectionRules, error) {
	c := &collectionRules{records: map[string]*ruleNode{}}
	for key, raw := range src {
		switch {
		case key != "" && key[0] == '.':
			rule, err := compileRule(raw)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			if c.actions == nil {
				c.actions = map[Action]Rule{}
			}
			c.actions[Action(key)] = rule
		case key == "*":
			propsSrc, ok := raw.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("property block is not a mapping")
			}
			for prop, actionsRaw := range propsSrc {
				compiled, err := compilePropActions(actionsRaw)
				if err != nil {
					return nil, fmt.Errorf("property %q: %w", prop, err)
				}
				if c.props == nil {
					c.props = map[string]map[Action]Rule{}
				}
				c.props[prop] = compiled
			}
		default:
			recordSrc, ok := raw.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("record %q is not a mapping", key)
			}
			record, err := compileRecord(recordSrc)
			if err != nil {
				return nil, fmt.Errorf("record %q: %w", key, err)
			}
			c.records[key] = record
		}
	}
	return c, nil
}

// compileRecord compiles a record-id scope: dot keys bind actions, any
// other key is a property sub-rule.
func compileRecord(src map[string]any) (*ruleNode, error) {
	node := &ruleNode{actions: map[Action]Rule{}, props: map[string]map[Action]Rule{}}
	for key, raw := range src {
		if key != "" && key[0] == '.' {
			rule, err := compileRule(raw)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			node.actions[Action(key)] = rule
			continue
		}
		compiled, err := compilePropActions(raw)
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", key, err)
		}
		node.props[key] = compiled
	}
	return node, nil
}

func compilePropActions(raw any) (map[Action]Rule, error) {
	src, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected a mapping of actions")
	}
	actions := map[Action]Rule{}
	for key, value := range src {
		rule, err := compileRule(value)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		actions[Action(key)] = rule
	}
	return actions, nil
}

func compileRule(raw any) (Rule, error) {
	switch v := raw.(type) {
	case bool:
		return BoolRule(v), nil
	case string:
		expr, err := ParseExpr(v)
		if err != nil {
			return nil, err
		}
		return &ExprRule{Source: v, expr: expr}, nil
	case []any:
		roles := make(RoleList, 0, len(v))
		for _, item := range v {
			role, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("role list entries must be strings")
			}
			roles = append(roles, role)
		}
		return roles, nil
	default:
		return nil, fmt.Errorf("unsupported rule value %#v", raw)
	}
}

// Check enforces the resolved rule for one operation. The most specific
// scope wins: record rule over collection rule over the global default,
// with empty role lists treated as unset. A failed rule is forgiven when
// isAdmin is set, except that property sub-rules still apply.
func (e *Engine) Check(action Action, collection string, user, data, newData storage.Record, isAdmin bool) error {
	rule, props := e.resolve(action, collection, data)

	env := &Env{User: user, Data: data, NewData: newData, Get: e.get}
	allowed, err := e.allows(rule, env, isAdmin)
	if err != nil {
		return err
	}
	if !allowed && !isAdmin {
		return common.NewCredentialError("")
	}

	for _, pr := range props {
		applyPropRule(action, pr, env)
	}
	return nil
}

func (e *Engine) resolve(action Action, collection string, data storage.Record) (Rule, []propRule) {
	current := Rule(BoolRule(true))
	if global, ok := e.collections["*"]; ok {
		current = ruleOrDefault(current, global.actions[action])
	}
	var props []propRule

	c, ok := e.collections[collection]
	if !ok {
		return current, nil
	}
	current = ruleOrDefault(current, c.actions[action])
	props = propsOrDefault(props, c.props, action)

	if id, _ := data["_id"].(string); id != "" {
		if record, ok := c.records[id]; ok {
			current = ruleOrDefault(current, record.actions[action])
			props = propsOrDefault(props, record.props, action)
		}
	}
	return current, props
}

// ruleOrDefault keeps the current rule when the candidate is unset or an
// empty role list.
func ruleOrDefault(current, candidate Rule) Rule {
	if candidate == nil {
		return current
	}
	if roles, ok := candidate.(RoleList); ok && len(roles) == 0 {
		return current
	}
	return candidate
}

// propsOrDefault replaces the accumulated property sub-rules when the
// node defines any for the action, sorted by property for determinism.
func propsOrDefault(current []propRule, props map[string]map[Action]Rule, action Action) []propRule {
	var out []propRule
	for prop, actions := range props {
		if rule, ok := actions[action]; ok {
			out = append(out, propRule{prop: prop, rule: rule})
		}
	}
	if len(out) == 0 {
		return current
	}
	sort.Slice(out, func(i, j int) bool { return out[i].prop < out[j].prop })
	return out
}

func (e *Engine) allows(rule Rule, env *Env, isAdmin bool) (bool, error) {
	switch r := rule.(type) {
	case BoolRule:
		return bool(r), nil
	case RoleList:
		return checkRoles(r, env, isAdmin)
	case *ExprRule:
		return truthy(r.expr.eval(env)), nil
	default:
		return false, nil
	}
}

func checkRoles(roles RoleList, env *Env, isAdmin bool) (bool, error) {
	if roles.contains("Guest") {
		return true, nil
	}
	if env.User == nil && !isAdmin {
		return false, common.NewAuthorizationError("")
	}
	if roles.contains("User") {
		return true, nil
	}
	if env.User != nil && roles.contains("Owner") {
		return storage.LooseEqual(env.User["_id"], env.Data["_ownerId"]), nil
	}
	return false, nil
}

func (r RoleList) contains(role string) bool {
	for _, have := range r {
		if have == role {
			return true
		}
	}
	return false
}

// applyPropRule strips a property when its sub-rule evaluates false:
// from the write payload on create and update, from the read result on
// read. Role lists never strip.
func applyPropRule(action Action, pr propRule, env *Env) {
	denied := false
	switch r := pr.rule.(type) {
	case BoolRule:
		denied = !bool(r)
	case *ExprRule:
		denied = !truthy(r.expr.eval(env))
	default:
		return
	}
	if !denied {
		return
	}
	switch action {
	case ActionCreate, ActionUpdate:
		if env.NewData != nil {
			delete(env.NewData, pr.prop)
		}
	case ActionRead:
		if env.Data != nil {
			delete(env.Data, pr.prop)
		}
	}
}
