package rest

import (
	"context"

	"pantry/internal/server/query"
)

// Pattern matches one path segment. The three forms are a literal
// segment, the "*" wildcard and a ":name" capture that lands in the
// request context's params map.
type Pattern struct {
	kind patternKind
	name string
}

type patternKind int

const (
	patternLiteral patternKind = iota
	patternWildcard
	patternCapture
)

// ParsePattern reads the registration syntax: "*", ":name" or a literal.
func ParsePattern(s string) Pattern {
	switch {
	case s == "*":
		return Pattern{kind: patternWildcard}
	case len(s) > 1 && s[0] == ':':
		return Pattern{kind: patternCapture, name: s[1:]}
	default:
		return Pattern{kind: patternLiteral, name: s}
	}
}

// Match reports whether the segment fits and records the capture. A
// request with no remaining segments matches with segment "": wildcards
// and captures accept it, literals do not.
func (p Pattern) Match(segment string, params map[string]string) bool {
	switch p.kind {
	case patternWildcard:
		return true
	case patternCapture:
		params[p.name] = segment
		return true
	default:
		return segment == p.name
	}
}

// Handler serves one matched action. tokens are the path segments after
// the matched one, q the parsed query string and body the decoded JSON
// payload (a string when the body is not valid JSON).
type Handler func(ctx context.Context, rc *RequestContext, tokens []string, q query.Params, body any) (any, error)

type action struct {
	method  string
	pattern Pattern
	handler Handler
}

// Service is an ordered action table for one URL prefix. The first
// registration whose method and pattern match wins.
type Service struct {
	actions []action
}

func NewService() *Service { return &Service{} }

// Register appends an action for the method and pattern string.
func (s *Service) Register(method, pattern string, h Handler) {
	s.actions = append(s.actions, action{method: method, pattern: ParsePattern(pattern), handler: h})
}

func (s *Service) Get(pattern string, h Handler)    { s.Register("GET", pattern, h) }
func (s *Service) Post(pattern string, h Handler)   { s.Register("POST", pattern, h) }
func (s *Service) Put(pattern string, h Handler)    { s.Register("PUT", pattern, h) }
func (s *Service) Patch(pattern string, h Handler)  { s.Register("PATCH", pattern, h) }
func (s *Service) Delete(pattern string, h Handler) { s.Register("DELETE", pattern, h) }

// Dispatch runs the first matching action. handled is false when no
// registration matches, which the dispatcher turns into an empty 204.
func (s *Service) Dispatch(ctx context.Context, rc *RequestContext, method string, tokens []string, q query.Params, body any) (result any, handled bool, err error) {
	first := ""
	if len(tokens) > 0 {
		first = tokens[0]
	}
	rest := tokens
	if len(rest) > 0 {
		rest = rest[1:]
	}
	for _, a := range s.actions {
		if a.method != method || !a.pattern.Match(first, rc.Params) {
			continue
		}
		result, err = a.handler(ctx, rc, rest, q, body)
		return result, true, err
	}
	return nil, false, nil
}
