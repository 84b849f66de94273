package recordbase

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/recordbase/recordbase_sdk_go/pkg/authstore"
)

// AuthResponse is the body of a successful authentication.
type AuthResponse struct {
	Token  string         `json:"token"`
	Admin  Record         `json:"admin,omitempty"`
	Record Record         `json:"record,omitempty"`
	Meta   map[string]any `json:"meta,omitempty"`
}

// Principal wraps the authenticated account as a store principal, or nil.
func (r *AuthResponse) Principal() *authstore.Principal {
	switch {
	case r == nil:
		return nil
	case r.Admin != nil:
		return authstore.NewAdmin(r.Admin)
	case r.Record != nil:
		return authstore.NewRecord(r.Record)
	}
	return nil
}

// AuthService combines the CRUD endpoints of an auth collection (or of the
// admins) with its authentication endpoints. Successful authentications are
// saved into the client's AuthStore, and updates or deletions of the
// currently authenticated account keep the store in sync.
type AuthService struct {
	*CrudService[Record]
	authPath string
	kind     authstore.Kind
}

// Admins returns the service for /api/admins.
func (c *Client) Admins() *AuthService {
	return &AuthService{
		CrudService: NewCrudService[Record](c, "/api/admins"),
		authPath:    "/api/admins",
		kind:        authstore.KindAdmin,
	}
}

// Collection returns the service for the records of collection name.
func (c *Client) Collection(name string) *AuthService {
	base := "/api/collections/" + url.PathEscape(strings.Trim(name, "/"))
	return &AuthService{
		CrudService: NewCrudService[Record](c, base+"/records"),
		authPath:    base,
		kind:        authstore.KindRecord,
	}
}

// AuthWithPassword authenticates with identity (email or username) and
// password.
func (s *AuthService) AuthWithPassword(ctx context.Context, identity, password string, body map[string]any, params *QueryParams) (*AuthResponse, error) {
	payload := map[string]any{"identity": identity, "password": password}
	for k, v := range body {
		payload[k] = v
	}
	return s.authRequest(ctx, "/auth-with-password", payload, params)
}

// AuthRefresh exchanges the stored token for a fresh one.
func (s *AuthService) AuthRefresh(ctx context.Context, body map[string]any, params *QueryParams) (*AuthResponse, error) {
	if body == nil {
		body = map[string]any{}
	}
	return s.authRequest(ctx, "/auth-refresh", body, params)
}

// RequestPasswordReset asks the backend to send a reset email.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string, body map[string]any, params *QueryParams) error {
	payload := map[string]any{"email": email}
	for k, v := range body {
		payload[k] = v
	}
	_, err := Send[any](ctx, s.client, s.authPath+"/request-password-reset", &Request{
		Method: http.MethodPost,
		Query:  params.Values(),
		Body:   payload,
	})
	return err
}

// ConfirmPasswordReset sets a new password using a reset token.
func (s *AuthService) ConfirmPasswordReset(ctx context.Context, resetToken, password, passwordConfirm string, body map[string]any, params *QueryParams) error {
	payload := map[string]any{
		"token":           resetToken,
		"password":        password,
		"passwordConfirm": passwordConfirm,
	}
	for k, v := range body {
		payload[k] = v
	}
	_, err := Send[any](ctx, s.client, s.authPath+"/confirm-password-reset", &Request{
		Method: http.MethodPost,
		Query:  params.Values(),
		Body:   payload,
	})
	return err
}

// Update patches the account with id; when it is the authenticated one the
// store principal is replaced with the result.
func (s *AuthService) Update(ctx context.Context, id string, body any, params *QueryParams) (Record, error) {
	item, err := s.CrudService.Update(ctx, id, body, params)
	if err != nil {
		return nil, err
	}
	if s.isCurrent(item.ID()) {
		store := s.client.AuthStore()
		store.Save(store.Token(), s.principal(item))
	}
	return item, nil
}

// Delete removes the account with id; when it is the authenticated one the
// store is cleared.
func (s *AuthService) Delete(ctx context.Context, id string, params *QueryParams) error {
	if err := s.CrudService.Delete(ctx, id, params); err != nil {
		return err
	}
	if s.isCurrent(id) {
		s.client.AuthStore().Clear()
	}
	return nil
}

func (s *AuthService) authRequest(ctx context.Context, suffix string, body map[string]any, params *QueryParams) (*AuthResponse, error) {
	res, err := Send[AuthResponse](ctx, s.client, s.authPath+suffix, &Request{
		Method: http.MethodPost,
		Query:  params.Values(),
		Body:   body,
	})
	if err != nil {
		return nil, err
	}
	if principal := res.Principal(); res.Token != "" && principal != nil {
		s.client.AuthStore().Save(res.Token, principal)
	}
	return &res, nil
}

func (s *AuthService) isCurrent(id string) bool {
	current := s.client.AuthStore().Principal()
	return id != "" && current != nil && current.Kind == s.kind && current.ID() == id
}

func (s *AuthService) principal(item Record) *authstore.Principal {
	if s.kind == authstore.KindAdmin {
		return authstore.NewAdmin(item)
	}
	return authstore.NewRecord(item)
}
