package mock

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

const (
	defaultPerPage = 30
	maxPerPage     = 500
)

var errInvalidFilter = errors.New("mock: invalid filter")

type condition struct {
	field  string
	value  string
	negate bool
}

// parseFilter accepts conditions of the form field='value' or field!='value'
// joined with &&.
func parseFilter(raw string) ([]condition, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var out []condition
	for _, part := range strings.Split(raw, "&&") {
		part = strings.TrimSpace(strings.Trim(strings.TrimSpace(part), "()"))
		cond := condition{}
		idx := strings.Index(part, "!=")
		if idx >= 0 {
			cond.negate = true
			cond.value = part[idx+2:]
		} else if idx = strings.Index(part, "="); idx >= 0 {
			cond.value = part[idx+1:]
		} else {
			return nil, fmt.Errorf("%w: %q", errInvalidFilter, part)
		}
		cond.field = strings.TrimSpace(part[:idx])
		cond.value = unquote(strings.TrimSpace(cond.value))
		if cond.field == "" {
			return nil, fmt.Errorf("%w: %q", errInvalidFilter, part)
		}
		out = append(out, cond)
	}
	return out, nil
}

func unquote(v string) string {
	if len(v) >= 2 && (v[0] == '\'' || v[0] == '"') && v[len(v)-1] == v[0] {
		return v[1 : len(v)-1]
	}
	return v
}

func matches(fields map[string]any, conds []condition) bool {
	for _, c := range conds {
		got, ok := fields[c.field]
		equal := ok && fmt.Sprint(got) == c.value
		if equal == c.negate {
			return false
		}
	}
	return true
}

// sortRecords orders items by a comma separated list of fields, each
// optionally prefixed with - for descending order.
func sortRecords(items []map[string]any, spec string) {
	keys := strings.Split(spec, ",")
	sort.SliceStable(items, func(i, j int) bool {
		for _, k := range keys {
			k = strings.TrimSpace(k)
			if k == "" {
				continue
			}
			desc := strings.HasPrefix(k, "-")
			k = strings.TrimLeft(k, "-+")
			c := compare(items[i][k], items[j][k])
			if c == 0 {
				continue
			}
			if desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

func compare(a, b any) int {
	af, aNum := toFloat(a)
	bf, bNum := toFloat(b)
	if aNum && bNum {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		}
		return 0
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

type page struct {
	number  int
	perPage int
}

func parsePage(q url.Values) page {
	p := page{number: 1, perPage: defaultPerPage}
	if n, err := strconv.Atoi(q.Get("page")); err == nil && n > 0 {
		p.number = n
	}
	if n, err := strconv.Atoi(q.Get("perPage")); err == nil && n > 0 {
		p.perPage = min(n, maxPerPage)
	}
	return p
}

func paginate(items []map[string]any, p page) map[string]any {
	total := len(items)
	totalPages := (total + p.perPage - 1) / p.perPage
	start := min((p.number-1)*p.perPage, total)
	end := min(start+p.perPage, total)
	pageItems := items[start:end]
	if pageItems == nil {
		pageItems = []map[string]any{}
	}
	return map[string]any{
		"page":       p.number,
		"perPage":    p.perPage,
		"totalItems": total,
		"totalPages": totalPages,
		"items":      pageItems,
	}
}
