package recordbase

import (
	"net/url"
	"strconv"
)

// QueryParams are the query options shared by single-item calls.
type QueryParams struct {
	Expand string
	Fields string
	// Extra is merged into the query as-is. It may carry the autoCancel and
	// cancelKey controls.
	Extra url.Values
}

// Values encodes p as query values. A nil receiver yields an empty set.
func (p *QueryParams) Values() url.Values {
	v := url.Values{}
	if p == nil {
		return v
	}
	for k, values := range p.Extra {
		v[k] = append([]string(nil), values...)
	}
	if p.Expand != "" {
		v.Set("expand", p.Expand)
	}
	if p.Fields != "" {
		v.Set("fields", p.Fields)
	}
	return v
}

// ListParams are the query options of paginated list calls.
type ListParams struct {
	QueryParams
	Page    int
	PerPage int
	Sort    string
	Filter  string
}

// Values encodes p as query values. A nil receiver yields an empty set.
func (p *ListParams) Values() url.Values {
	if p == nil {
		return url.Values{}
	}
	v := p.QueryParams.Values()
	if p.Page > 0 {
		v.Set("page", strconv.Itoa(p.Page))
	}
	if p.PerPage > 0 {
		v.Set("perPage", strconv.Itoa(p.PerPage))
	}
	if p.Sort != "" {
		v.Set("sort", p.Sort)
	}
	if p.Filter != "" {
		v.Set("filter", p.Filter)
	}
	return v
}

func (p *ListParams) clone() *ListParams {
	if p == nil {
		return &ListParams{}
	}
	out := *p
	out.Extra = url.Values{}
	for k, values := range p.Extra {
		out.Extra[k] = append([]string(nil), values...)
	}
	return &out
}

// ListResult is one page of a collection listing.
type ListResult[T any] struct {
	Page       int `json:"page"`
	PerPage    int `json:"perPage"`
	TotalItems int `json:"totalItems"`
	TotalPages int `json:"totalPages"`
	Items      []T `json:"items"`
}

// Record is a schemaless record as returned by the API.
type Record map[string]any

// ID returns the record id, or "" when absent.
func (r Record) ID() string {
	id, _ := r["id"].(string)
	return id
}

// GetString returns the string field name, or "".
func (r Record) GetString(name string) string {
	s, _ := r[name].(string)
	return s
}
