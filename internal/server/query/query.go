// Package query implements the query-string directives applied to
// collection reads: where, sortBy, offset, pageSize, distinct, count,
// select and load, in that fixed order. Single-record reads run only the
// select and load transforms.
package query

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"pantry/internal/common"
	"pantry/internal/server/storage"
)

// Params holds the raw, single-valued query parameters of a request.
type Params map[string]string

// Parse splits a raw query string into Params. Values are percent-decoded
// but '+' is kept literal, matching how the storefront client encodes
// where clauses.
func Parse(raw string) Params {
	params := Params{}
	for _, pair := range strings.Split(raw, "&") {
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		if decoded, err := url.PathUnescape(value); err == nil {
			value = decoded
		}
		params[key] = value
	}
	return params
}

// Engine resolves load relations against the two stores and owns the
// collator used for sorting.
type Engine struct {
	public    *storage.Store
	protected *storage.Store
	collator  *collate.Collator
}

func NewEngine(public, protected *storage.Store) *Engine {
	return &Engine{
		public:    public,
		protected: protected,
		collator:  collate.New(language.Und),
	}
}

// Filter applies a where clause to the records.
func Filter(records []storage.Record, clause string) ([]storage.Record, error) {
	predicate, err := parseWhere(clause)
	if err != nil {
		return nil, err
	}
	out := make([]storage.Record, 0, len(records))
	for _, rec := range records {
		if predicate(rec) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Transform runs the array pipeline (sortBy through load) and returns
// either the transformed records or, for count, their number.
func (e *Engine) Transform(records []storage.Record, q Params) (any, error) {
	if spec, ok := q["sortBy"]; ok {
		e.sortBy(records, spec)
	}

	if raw, ok := q["offset"]; ok {
		n, err := strconv.Atoi(raw)
		if err != nil {
			n = 0
		}
		records = records[sliceIndex(n, len(records)):]
	}

	if raw, ok := q["pageSize"]; ok {
		// Default page size applies only when the key is present but
		// unusable; without the key no slicing happens at all.
		n, err := strconv.Atoi(raw)
		if err != nil || n == 0 {
			n = 10
		}
		records = records[:sliceIndex(n, len(records))]
	}

	if props, ok := q["distinct"]; ok {
		records = distinct(records, props)
	}

	if _, ok := q["count"]; ok {
		return len(records), nil
	}

	if props, ok := q["select"]; ok {
		projected := make([]storage.Record, len(records))
		for i, rec := range records {
			projected[i] = project(rec, props)
		}
		records = projected
	}

	if spec, ok := q["load"]; ok {
		for _, rec := range records {
			if err := e.load(rec, spec); err != nil {
				return nil, err
			}
		}
	}

	return records, nil
}

// sliceIndex resolves an offset or pageSize value the way Array.slice
// treats its indices: negatives count from the end, out-of-range values
// clamp.
func sliceIndex(n, length int) int {
	if n < 0 {
		n += length
	}
	if n < 0 {
		return 0
	}
	if n > length {
		return length
	}
	return n
}

// TransformOne runs the single-record transforms: select and load.
func (e *Engine) TransformOne(rec storage.Record, q Params) (storage.Record, error) {
	if props, ok := q["select"]; ok {
		rec = project(rec, props)
	}
	if spec, ok := q["load"]; ok {
		if err := e.load(rec, spec); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

// --- where ---

// A clause is one (prop)(operator)(value) triple; the lazy leftmost prop
// match lets values contain operator characters.
var clausePattern = regexp.MustCompile(`(?i)^(.+?)(<=|<|>=|>|=| like | in )(.+)$`)

var (
	andPattern = regexp.MustCompile(`(?i) and `)
	orPattern  = regexp.MustCompile(`(?i) or `)
	inPattern  = regexp.MustCompile(`\((.+?)\)`)
)

var errBadWhere = common.NewRequestError("Could not parse WHERE clause, check your syntax.")

func parseWhere(clause string) (func(storage.Record) bool, error) {
	parts := []string{strings.TrimSpace(clause)}
	all := true
	switch {
	case andPattern.MatchString(clause):
		parts = andPattern.Split(clause, -1)
	case orPattern.MatchString(clause):
		parts = orPattern.Split(clause, -1)
		all = false
	}

	checkers := make([]func(storage.Record) bool, len(parts))
	for i, part := range parts {
		checker, err := parseClause(part)
		if err != nil {
			return nil, errBadWhere
		}
		checkers[i] = checker
	}

	if all {
		return func(rec storage.Record) bool {
			for _, check := range checkers {
				if !check(rec) {
					return false
				}
			}
			return true
		}, nil
	}
	return func(rec storage.Record) bool {
		for _, check := range checkers {
			if check(rec) {
				return true
			}
		}
		return false
	}, nil
}

func parseClause(clause string) (func(storage.Record) bool, error) {
	m := clausePattern.FindStringSubmatch(clause)
	if m == nil {
		return nil, errBadWhere
	}
	prop := strings.TrimSpace(m[1])
	operator := strings.ToLower(strings.TrimSpace(m[2]))
	rawValue := strings.TrimSpace(m[3])

	switch operator {
	case "in":
		paren := inPattern.FindStringSubmatch(rawValue)
		if paren == nil {
			return nil, errBadWhere
		}
		var values []any
		if err := json.Unmarshal([]byte("["+paren[1]+"]"), &values); err != nil {
			return nil, errBadWhere
		}
		return func(rec storage.Record) bool {
			for _, v := range values {
				if storage.LooseEqual(rec[prop], v) {
					return true
				}
			}
			return false
		}, nil

	case "like":
		var value any
		if err := json.Unmarshal([]byte(rawValue), &value); err != nil {
			return nil, errBadWhere
		}
		needle, ok := value.(string)
		if !ok {
			return nil, errBadWhere
		}
		needle = strings.ToLower(needle)
		return func(rec storage.Record) bool {
			s, ok := rec[prop].(string)
			return ok && strings.Contains(strings.ToLower(s), needle)
		}, nil

	default:
		var value any
		if err := json.Unmarshal([]byte(rawValue), &value); err != nil {
			return nil, errBadWhere
		}
		if operator == "=" {
			return func(rec storage.Record) bool {
				return storage.LooseEqual(rec[prop], value)
			}, nil
		}
		return func(rec storage.Record) bool {
			cmp, ok := compare(rec[prop], value)
			if !ok {
				return false
			}
			switch operator {
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
		}, nil
	}
}

// compare orders two values: numerically when both are numbers, by string
// otherwise. A missing (nil) record value never satisfies an ordering.
func compare(a, b any) (int, bool) {
	if a == nil || b == nil {
		return 0, false
	}
	if na, ok := storage.Number(a); ok {
		if nb, ok := storage.Number(b); ok {
			switch {
			case na < nb:
				return -1, true
			case na > nb:
				return 1, true
			}
			return 0, true
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b)), true
}

// --- sortBy ---

type sortProp struct {
	prop string
	desc bool
}

// sortBy sorts in place. Priority runs from the first listed property to
// the last, so the stable passes are applied in reverse order.
func (e *Engine) sortBy(records []storage.Record, spec string) {
	var props []sortProp
	for _, field := range strings.Split(spec, ",") {
		parts := strings.Fields(field)
		if len(parts) == 0 {
			continue
		}
		props = append(props, sortProp{prop: parts[0], desc: len(parts) > 1})
	}

	for i := len(props) - 1; i >= 0; i-- {
		p := props[i]
		sort.SliceStable(records, func(x, y int) bool {
			if p.desc {
				return e.less(records[y][p.prop], records[x][p.prop])
			}
			return e.less(records[x][p.prop], records[y][p.prop])
		})
	}
}

func (e *Engine) less(a, b any) bool {
	if na, ok := storage.Number(a); ok {
		if nb, ok := storage.Number(b); ok {
			return na < nb
		}
	}
	return e.collator.CompareString(fmt.Sprint(a), fmt.Sprint(b)) < 0
}

// --- distinct / select / load ---

func distinct(records []storage.Record, spec string) []storage.Record {
	props := splitProps(spec)
	seen := make(map[string]struct{}, len(records))
	out := make([]storage.Record, 0, len(records))
	for _, rec := range records {
		parts := make([]string, len(props))
		for i, p := range props {
			parts[i] = fmt.Sprint(rec[p])
		}
		key := strings.Join(parts, "::")
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, rec)
	}
	return out
}

func project(rec storage.Record, spec string) storage.Record {
	out := storage.Record{}
	for _, p := range splitProps(spec) {
		if v, ok := rec[p]; ok {
			out[p] = v
		}
	}
	return out
}

// load attaches related records in place. Spec format:
// prop=idField:collection, comma-separated. Relations targeting the users
// collection resolve against the protected store and have the password
// hash stripped. The related fetch is not rule-checked.
func (e *Engine) load(rec storage.Record, spec string) error {
	for _, relation := range splitProps(spec) {
		prop, rest, ok := strings.Cut(relation, "=")
		if !ok {
			return common.NewRequestError("")
		}
		idField, collection, ok := strings.Cut(rest, ":")
		if !ok {
			return common.NewRequestError("")
		}

		source := e.public
		if collection == "users" {
			source = e.protected
		}

		seekID, _ := rec[idField].(string)
		related, err := source.Get(collection, seekID)
		if err != nil {
			return err
		}
		delete(related, "hashedPassword")
		rec[prop] = related
	}
	return nil
}

func splitProps(spec string) []string {
	var out []string
	for _, p := range strings.Split(spec, ",") {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
