package authstore

import (
	"encoding/json"
	"fmt"
)

// Kind tags the flavour of authenticated identity held by the store.
type Kind int

const (
	// KindUnknown is used when the identity shape cannot be determined.
	KindUnknown Kind = iota
	// KindAdmin marks an administrative account.
	KindAdmin
	// KindRecord marks a record from an auth collection.
	KindRecord
)

func (k Kind) String() string {
	switch k {
	case KindAdmin:
		return "admin"
	case KindRecord:
		return "record"
	default:
		return "unknown"
	}
}

// Principal is the identity associated with a session token. Fields keeps the
// server payload untouched; only a handful of marker fields are interpreted.
type Principal struct {
	Kind   Kind
	Fields map[string]any
}

// NewAdmin wraps an administrative account payload.
func NewAdmin(fields map[string]any) *Principal {
	return &Principal{Kind: KindAdmin, Fields: fields}
}

// NewRecord wraps an auth record payload.
func NewRecord(fields map[string]any) *Principal {
	return &Principal{Kind: KindRecord, Fields: fields}
}

// InferPrincipal tags fields as a record when they carry collection markers and
// as unknown otherwise. A nil mapping yields a nil principal.
func InferPrincipal(fields map[string]any) *Principal {
	if fields == nil {
		return nil
	}
	return &Principal{Kind: inferKind(fields), Fields: fields}
}

func inferKind(fields map[string]any) Kind {
	if _, ok := fields["collectionId"]; ok {
		return KindRecord
	}
	if _, ok := fields["collectionName"]; ok {
		return KindRecord
	}
	return KindUnknown
}

// ID returns the id field rendered as a string.
func (p *Principal) ID() string {
	return p.str("id")
}

// Email returns the email field rendered as a string.
func (p *Principal) Email() string {
	return p.str("email")
}

// Get returns the raw value stored under name.
func (p *Principal) Get(name string) (any, bool) {
	if p == nil || p.Fields == nil {
		return nil, false
	}
	v, ok := p.Fields[name]
	return v, ok
}

// Clone returns a shallow copy with its own field map.
func (p *Principal) Clone() *Principal {
	if p == nil {
		return nil
	}
	fields := make(map[string]any, len(p.Fields))
	for k, v := range p.Fields {
		fields[k] = v
	}
	return &Principal{Kind: p.Kind, Fields: fields}
}

func (p *Principal) str(name string) string {
	v, ok := p.Get(name)
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// MarshalJSON encodes the principal as its bare field mapping.
func (p *Principal) MarshalJSON() ([]byte, error) {
	if p == nil {
		return []byte("null"), nil
	}
	if p.Fields == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(p.Fields)
}

// UnmarshalJSON decodes a field mapping and infers the principal kind.
func (p *Principal) UnmarshalJSON(data []byte) error {
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	p.Fields = fields
	p.Kind = inferKind(fields)
	return nil
}
