package query

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Select shapes v, a document or a slice of documents, down to the
// requested fields using their JSON names. Only the top-level segment of a
// dotted field is considered. Inclusion wins over exclusion, and "id" is
// always kept when including. With no fields v is returned unchanged.
func Select(v any, fields []string) (any, error) {
	if len(fields) == 0 {
		return v, nil
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("select fields: %w", err)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("select fields: %w", err)
	}

	include, exclude := map[string]bool{}, map[string]bool{}
	for _, f := range fields {
		if name, ok := strings.CutPrefix(f, "-"); ok {
			name, _, _ = strings.Cut(name, ".")
			exclude[name] = true
			continue
		}
		name, _, _ := strings.Cut(f, ".")
		include[name] = true
	}
	if len(include) > 0 {
		include["id"] = true
		exclude = nil
	}

	shape := func(doc any) any {
		m, ok := doc.(map[string]any)
		if !ok {
			return doc
		}
		for k := range m {
			if (len(include) > 0 && !include[k]) || exclude[k] {
				delete(m, k)
			}
		}
		return m
	}

	if list, ok := generic.([]any); ok {
		for i := range list {
			list[i] = shape(list[i])
		}
		return list, nil
	}
	return shape(generic), nil
}
