// Package query turns list query strings into a store-neutral query shape:
// field conditions, sort order, projection and page window.
//
//	GET /tours?duration[gte]=5&difficulty=easy&sort=-price,name&fields=name,price&page=2&limit=10
package query

import (
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

const (
	DefaultPage  = 1
	DefaultLimit = 100
	MaxLimit     = 1000
	DefaultSort  = "-createdAt"
)

// Op is a comparison operator.
type Op string

const (
	OpEq  Op = "eq"
	OpGt  Op = "gt"
	OpGte Op = "gte"
	OpLt  Op = "lt"
	OpLte Op = "lte"
	// OpNe is not accepted from query strings; scoping steps use it.
	OpNe Op = "ne"
)

var ops = map[string]Op{"gt": OpGt, "gte": OpGte, "lt": OpLt, "lte": OpLte}

// reserved keys never become field conditions.
var reserved = map[string]bool{"page": true, "sort": true, "limit": true, "fields": true}

var fieldName = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*(\.[A-Za-z][A-Za-z0-9_]*)*$`)

// Condition is one field comparison. Value is int64, float64, bool or string.
type Condition struct {
	Field string
	Op    Op
	Value any
}

// SortField orders by Field, descending when Desc is set.
type SortField struct {
	Field string
	Desc  bool
}

// Params is a parsed list query.
type Params struct {
	Conditions []Condition
	Sort       []SortField
	// Fields lists projected fields; a leading "-" excludes the field.
	Fields []string
	Page   int
	Limit  int
}

// Skip returns the number of records before the current page.
func (p Params) Skip() int {
	return (p.Page - 1) * p.Limit
}

// Where appends a condition. Scoping steps use it to add always-on filters.
func (p Params) Where(field string, op Op, value any) Params {
	p.Conditions = append(append([]Condition(nil), p.Conditions...), Condition{Field: field, Op: op, Value: value})
	return p
}

// Default returns an empty query with the default sort and window.
func Default() Params {
	return Params{
		Sort:  parseSort(DefaultSort),
		Page:  DefaultPage,
		Limit: DefaultLimit,
	}
}

// FromRequest parses the request's query string.
func FromRequest(r *http.Request) (Params, error) {
	return Parse(r.URL.Query())
}

// Parse builds Params from url.Values. Unknown operators and malformed field
// names are rejected; bad page or limit values fall back to defaults.
func Parse(values url.Values) (Params, error) {
	p := Default()

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		raw := values.Get(key)
		switch key {
		case "page":
			if v, err := strconv.Atoi(raw); err == nil && v > 0 {
				p.Page = v
			}
			continue
		case "limit":
			if v, err := strconv.Atoi(raw); err == nil && v > 0 && v <= MaxLimit {
				p.Limit = v
			}
			continue
		case "sort":
			if raw != "" {
				s := parseSort(raw)
				for _, f := range s {
					if !fieldName.MatchString(f.Field) {
						return Params{}, fmt.Errorf("invalid sort field %q", f.Field)
					}
				}
				p.Sort = s
			}
			continue
		case "fields":
			for _, f := range splitList(raw) {
				if !fieldName.MatchString(strings.TrimPrefix(f, "-")) {
					return Params{}, fmt.Errorf("invalid field %q", f)
				}
				p.Fields = append(p.Fields, f)
			}
			continue
		}

		cond, err := parseCondition(key, raw)
		if err != nil {
			return Params{}, err
		}
		p.Conditions = append(p.Conditions, cond)
	}
	return p, nil
}

func parseCondition(key, raw string) (Condition, error) {
	field, op := key, OpEq
	if i := strings.IndexByte(key, '['); i > 0 && strings.HasSuffix(key, "]") {
		name := key[i+1 : len(key)-1]
		o, ok := ops[name]
		if !ok {
			return Condition{}, fmt.Errorf("unsupported operator %q on %q", name, key[:i])
		}
		field, op = key[:i], o
	}
	if reserved[field] || !fieldName.MatchString(field) {
		return Condition{}, fmt.Errorf("invalid filter field %q", field)
	}
	return Condition{Field: field, Op: op, Value: coerce(raw)}, nil
}

// coerce picks the narrowest type for a query value.
func coerce(raw string) any {
	if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return v
	}
	if v, err := strconv.ParseFloat(raw, 64); err == nil {
		return v
	}
	if v, err := strconv.ParseBool(raw); err == nil && (raw == "true" || raw == "false") {
		return v
	}
	return raw
}

func parseSort(raw string) []SortField {
	var out []SortField
	for _, f := range splitList(raw) {
		if strings.HasPrefix(f, "-") {
			out = append(out, SortField{Field: f[1:], Desc: true})
			continue
		}
		out = append(out, SortField{Field: f})
	}
	return out
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
