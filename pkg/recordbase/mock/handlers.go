package mock

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

const maxMultipartMemory = 8 << 20

func (m *Mock) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", m.handleHealth)

	mux.HandleFunc("POST /api/admins/auth-with-password", m.handleAdminAuth)
	mux.HandleFunc("POST /api/admins/auth-refresh", m.handleAdminRefresh)
	mux.HandleFunc("POST /api/admins/request-password-reset", m.handleRequestReset(""))
	mux.HandleFunc("POST /api/admins/confirm-password-reset", m.handleConfirmReset(""))
	mux.HandleFunc("GET /api/admins", m.requireAdmin(m.handleAdminList))
	mux.HandleFunc("POST /api/admins", m.requireAdmin(m.handleAdminCreate))
	mux.HandleFunc("GET /api/admins/{id}", m.requireAdmin(m.handleAdminView))
	mux.HandleFunc("PATCH /api/admins/{id}", m.requireAdmin(m.handleAdminUpdate))
	mux.HandleFunc("DELETE /api/admins/{id}", m.requireAdmin(m.handleAdminDelete))

	mux.HandleFunc("POST /api/collections/{collection}/auth-with-password", m.handleRecordAuth)
	mux.HandleFunc("POST /api/collections/{collection}/auth-refresh", m.handleRecordRefresh)
	mux.HandleFunc("POST /api/collections/{collection}/request-password-reset", m.handleRequestReset("collection"))
	mux.HandleFunc("POST /api/collections/{collection}/confirm-password-reset", m.handleConfirmReset("collection"))
	mux.HandleFunc("GET /api/collections/{collection}/records", m.handleRecordList)
	mux.HandleFunc("POST /api/collections/{collection}/records", m.handleRecordCreate)
	mux.HandleFunc("GET /api/collections/{collection}/records/{id}", m.handleRecordView)
	mux.HandleFunc("PATCH /api/collections/{collection}/records/{id}", m.handleRecordUpdate)
	mux.HandleFunc("DELETE /api/collections/{collection}/records/{id}", m.handleRecordDelete)

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "The requested resource wasn't found.", nil)
	})
	return mux
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string, data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	writeJSON(w, status, map[string]any{"code": status, "message": message, "data": data})
}

func fieldError(field, code, message string) map[string]any {
	return map[string]any{field: map[string]any{"code": code, "message": message}}
}

// readBody decodes a JSON object or a multipart/urlencoded form. Form file
// parts are stored as their file names.
func readBody(r *http.Request) (map[string]any, error) {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch ct {
	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
			return nil, err
		}
		out := map[string]any{}
		for k, values := range r.MultipartForm.Value {
			if len(values) > 0 {
				out[k] = values[0]
			}
		}
		for k, files := range r.MultipartForm.File {
			names := make([]string, 0, len(files))
			for _, f := range files {
				names = append(names, f.Filename)
			}
			out[k] = names
		}
		return out, nil
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return nil, err
		}
		out := map[string]any{}
		for k := range r.PostForm {
			out[k] = r.PostForm.Get(k)
		}
		return out, nil
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if len(strings.TrimSpace(string(data))) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

func (m *Mock) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"code": http.StatusOK, "message": "API is healthy.", "data": map[string]any{}})
}

func (m *Mock) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if m.bearer(r, tokenAdmin) == nil {
			writeError(w, http.StatusUnauthorized, "The request requires valid admin authorization token to be set.", nil)
			return
		}
		next(w, r)
	}
}

// ---- admins ----

func (m *Mock) handleAdminAuth(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to load the submitted data due to invalid formatting.", nil)
		return
	}
	identity, _ := body["identity"].(string)
	password, _ := body["password"].(string)

	m.mu.RLock()
	var match *entry
	for _, id := range m.adminOrder {
		e := m.admins[id]
		if strings.EqualFold(e.fields["email"].(string), identity) {
			match = e
			break
		}
	}
	m.mu.RUnlock()

	if !checkPassword(match, password) {
		writeError(w, http.StatusBadRequest, "Failed to authenticate.", nil)
		return
	}
	m.writeAdminAuth(w, copyFields(match.fields))
}

func (m *Mock) handleAdminRefresh(w http.ResponseWriter, r *http.Request) {
	claims := m.bearer(r, tokenAdmin)
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "The request requires valid admin authorization token to be set.", nil)
		return
	}
	m.mu.RLock()
	e, ok := m.admins[claimString(claims, "id")]
	var fields map[string]any
	if ok {
		fields = copyFields(e.fields)
	}
	m.mu.RUnlock()
	if !ok {
		writeError(w, http.StatusNotFound, "Missing auth admin context.", nil)
		return
	}
	m.writeAdminAuth(w, fields)
}

func (m *Mock) writeAdminAuth(w http.ResponseWriter, admin map[string]any) {
	token, err := m.issueToken(tokenAdmin, jwt.MapClaims{"id": admin["id"]}, m.tokenTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": token, "admin": admin})
}

func (m *Mock) handleAdminList(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	items := make([]map[string]any, 0, len(m.adminOrder))
	for _, id := range m.adminOrder {
		items = append(items, copyFields(m.admins[id].fields))
	}
	m.mu.RUnlock()
	m.writeList(w, r, items)
}

func (m *Mock) handleAdminCreate(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to load the submitted data due to invalid formatting.", nil)
		return
	}
	email, _ := body["email"].(string)
	password, _ := body["password"].(string)
	if confirm, ok := body["passwordConfirm"].(string); ok && confirm != password {
		writeError(w, http.StatusBadRequest, "Failed to create record.", fieldError("passwordConfirm", "validation_values_mismatch", "Values don't match."))
		return
	}
	admin, err := m.AddAdmin(email, password)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to create record.", fieldError("email", "validation_required", err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, admin)
}

func (m *Mock) handleAdminView(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	e, ok := m.admins[r.PathValue("id")]
	var fields map[string]any
	if ok {
		fields = copyFields(e.fields)
	}
	m.mu.RUnlock()
	if !ok {
		writeError(w, http.StatusNotFound, "The requested resource wasn't found.", nil)
		return
	}
	writeJSON(w, http.StatusOK, fields)
}

func (m *Mock) handleAdminUpdate(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to load the submitted data due to invalid formatting.", nil)
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.admins[r.PathValue("id")]
	if !ok {
		writeError(w, http.StatusNotFound, "The requested resource wasn't found.", nil)
		return
	}
	if err := applyPassword(e, body); err != nil {
		writeError(w, http.StatusBadRequest, "Failed to update record.", nil)
		return
	}
	for _, k := range []string{"email", "avatar"} {
		if v, ok := body[k]; ok {
			e.fields[k] = v
		}
	}
	e.fields["updated"] = m.timestamp()
	writeJSON(w, http.StatusOK, copyFields(e.fields))
}

func (m *Mock) handleAdminDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.admins[id]; !ok {
		writeError(w, http.StatusNotFound, "The requested resource wasn't found.", nil)
		return
	}
	delete(m.admins, id)
	m.adminOrder = removeID(m.adminOrder, id)
	w.WriteHeader(http.StatusNoContent)
}

// ---- records ----

// lookup returns the named collection, writing a 404 when it is missing or,
// with wantAuth, not an auth collection.
func (m *Mock) lookup(w http.ResponseWriter, r *http.Request, wantAuth bool) *collection {
	c, ok := m.collections[r.PathValue("collection")]
	if !ok || (wantAuth && !c.auth) {
		writeError(w, http.StatusNotFound, "Missing collection context.", nil)
		return nil
	}
	return c
}

func (m *Mock) handleRecordAuth(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to load the submitted data due to invalid formatting.", nil)
		return
	}
	identity, _ := body["identity"].(string)
	password, _ := body["password"].(string)

	m.mu.RLock()
	c := m.lookup(w, r, true)
	if c == nil {
		m.mu.RUnlock()
		return
	}
	var match *entry
	for _, id := range c.order {
		e := c.records[id]
		email, _ := e.fields["email"].(string)
		username, _ := e.fields["username"].(string)
		if identity != "" && (strings.EqualFold(email, identity) || username == identity) {
			match = e
			break
		}
	}
	collectionID := c.id
	m.mu.RUnlock()

	if !checkPassword(match, password) {
		writeError(w, http.StatusBadRequest, "Failed to authenticate.", nil)
		return
	}
	m.writeRecordAuth(w, collectionID, copyFields(match.fields))
}

func (m *Mock) handleRecordRefresh(w http.ResponseWriter, r *http.Request) {
	claims := m.bearer(r, tokenAuthRecord)

	m.mu.RLock()
	c := m.lookup(w, r, true)
	if c == nil {
		m.mu.RUnlock()
		return
	}
	if claims == nil || claimString(claims, "collectionId") != c.id {
		m.mu.RUnlock()
		writeError(w, http.StatusUnauthorized, "The request requires valid record authorization token to be set.", nil)
		return
	}
	e, ok := c.records[claimString(claims, "id")]
	var fields map[string]any
	if ok {
		fields = copyFields(e.fields)
	}
	collectionID := c.id
	m.mu.RUnlock()

	if !ok {
		writeError(w, http.StatusNotFound, "Missing auth record context.", nil)
		return
	}
	m.writeRecordAuth(w, collectionID, fields)
}

func (m *Mock) writeRecordAuth(w http.ResponseWriter, collectionID string, record map[string]any) {
	token, err := m.issueToken(tokenAuthRecord, jwt.MapClaims{"id": record["id"], "collectionId": collectionID}, m.tokenTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": token, "record": record})
}

func (m *Mock) handleRecordList(w http.ResponseWriter, r *http.Request) {
	conds, err := parseFilter(r.URL.Query().Get("filter"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid filter parameters.", nil)
		return
	}
	m.mu.RLock()
	c := m.lookup(w, r, false)
	if c == nil {
		m.mu.RUnlock()
		return
	}
	items := make([]map[string]any, 0, len(c.order))
	for _, id := range c.order {
		if fields := c.records[id].fields; matches(fields, conds) {
			items = append(items, copyFields(fields))
		}
	}
	m.mu.RUnlock()
	m.writeList(w, r, items)
}

func (m *Mock) writeList(w http.ResponseWriter, r *http.Request, items []map[string]any) {
	q := r.URL.Query()
	if s := q.Get("sort"); s != "" {
		sortRecords(items, s)
	}
	writeJSON(w, http.StatusOK, paginate(items, parsePage(q)))
}

func (m *Mock) handleRecordCreate(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to load the submitted data due to invalid formatting.", nil)
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.lookup(w, r, false)
	if c == nil {
		return
	}
	if c.auth {
		if email, _ := body["email"].(string); email == "" {
			writeError(w, http.StatusBadRequest, "Failed to create record.", fieldError("email", "validation_required", "Missing required value."))
			return
		}
		pw, _ := body["password"].(string)
		if confirm, _ := body["passwordConfirm"].(string); pw != confirm {
			writeError(w, http.StatusBadRequest, "Failed to create record.", fieldError("passwordConfirm", "validation_values_mismatch", "Values don't match."))
			return
		}
	}
	record, err := m.insertLocked(c, body)
	if errors.Is(err, ErrConflict) {
		writeError(w, http.StatusBadRequest, "Failed to create record.", fieldError("id", "validation_invalid_id", "The model id is invalid or already exists."))
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to create record.", nil)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (m *Mock) handleRecordView(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c := m.lookup(w, r, false)
	if c == nil {
		return
	}
	e, ok := c.records[r.PathValue("id")]
	if !ok {
		writeError(w, http.StatusNotFound, "The requested resource wasn't found.", nil)
		return
	}
	writeJSON(w, http.StatusOK, copyFields(e.fields))
}

func (m *Mock) handleRecordUpdate(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to load the submitted data due to invalid formatting.", nil)
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.lookup(w, r, false)
	if c == nil {
		return
	}
	e, ok := c.records[r.PathValue("id")]
	if !ok {
		writeError(w, http.StatusNotFound, "The requested resource wasn't found.", nil)
		return
	}
	if c.auth {
		if err := applyPassword(e, body); err != nil {
			writeError(w, http.StatusBadRequest, "Failed to update record.", nil)
			return
		}
	}
	for k, v := range body {
		switch k {
		case "id", "collectionId", "collectionName", "created", "updated":
			continue
		}
		e.fields[k] = v
	}
	e.fields["updated"] = m.timestamp()
	writeJSON(w, http.StatusOK, copyFields(e.fields))
}

func (m *Mock) handleRecordDelete(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.lookup(w, r, false)
	if c == nil {
		return
	}
	id := r.PathValue("id")
	if _, ok := c.records[id]; !ok {
		writeError(w, http.StatusNotFound, "The requested resource wasn't found.", nil)
		return
	}
	delete(c.records, id)
	c.order = removeID(c.order, id)
	w.WriteHeader(http.StatusNoContent)
}

// ---- password reset ----

// handleRequestReset always answers 204 so account existence is not leaked.
// scope is "" for admins and "collection" for auth records.
func (m *Mock) handleRequestReset(scope string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := readBody(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Failed to load the submitted data due to invalid formatting.", nil)
			return
		}
		email, _ := body["email"].(string)
		if strings.TrimSpace(email) == "" {
			writeError(w, http.StatusBadRequest, "Something went wrong while processing your request.", fieldError("email", "validation_required", "Missing required value."))
			return
		}

		m.mu.Lock()
		defer m.mu.Unlock()
		claims := jwt.MapClaims{"email": strings.ToLower(email)}
		if scope == "" {
			for _, id := range m.adminOrder {
				if strings.EqualFold(m.admins[id].fields["email"].(string), email) {
					claims["id"] = id
				}
			}
		} else {
			c := m.lookup(w, r, true)
			if c == nil {
				return
			}
			claims["collectionId"] = c.id
			for _, id := range c.order {
				if addr, _ := c.records[id].fields["email"].(string); strings.EqualFold(addr, email) {
					claims["id"] = id
				}
			}
		}
		if claims["id"] != nil {
			token, err := m.issueToken(tokenPasswordReset, claims, resetTokenTTL)
			if err == nil {
				m.resets[strings.ToLower(email)] = token
			}
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (m *Mock) handleConfirmReset(scope string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := readBody(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Failed to load the submitted data due to invalid formatting.", nil)
			return
		}
		raw, _ := body["token"].(string)
		password, _ := body["password"].(string)
		confirm, _ := body["passwordConfirm"].(string)
		if password == "" || password != confirm {
			writeError(w, http.StatusBadRequest, "Something went wrong while processing your request.", fieldError("passwordConfirm", "validation_values_mismatch", "Values don't match."))
			return
		}
		claims, err := m.parseToken(raw, tokenPasswordReset)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Something went wrong while processing your request.", fieldError("token", "validation_invalid_token", "Invalid or expired token."))
			return
		}

		m.mu.Lock()
		defer m.mu.Unlock()
		var e *entry
		if scope == "" {
			e = m.admins[claimString(claims, "id")]
		} else {
			c := m.lookup(w, r, true)
			if c == nil {
				return
			}
			if claimString(claims, "collectionId") == c.id {
				e = c.records[claimString(claims, "id")]
			}
		}
		if e == nil {
			writeError(w, http.StatusBadRequest, "Something went wrong while processing your request.", fieldError("token", "validation_invalid_token", "Invalid or expired token."))
			return
		}
		if err := applyPassword(e, map[string]any{"password": password}); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error(), nil)
			return
		}
		delete(m.resets, claimString(claims, "email"))
		w.WriteHeader(http.StatusNoContent)
	}
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
