package domain

import (
	"sort"
	"strings"

	apperrors "github.com/natours/natours/pkg/errors"
)

type violations map[string]string

func newViolations() violations { return violations{} }

func (v violations) add(field, msg string) {
	if _, ok := v[field]; !ok {
		v[field] = msg
	}
}

// err returns a validation AppError listing every violation, or nil.
func (v violations) err() error {
	if len(v) == 0 {
		return nil
	}
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	msgs := make([]string, 0, len(keys))
	for _, k := range keys {
		msgs = append(msgs, v[k])
	}
	return apperrors.Validation("Invalid input data. "+strings.Join(msgs, ". "), map[string]string(v))
}
