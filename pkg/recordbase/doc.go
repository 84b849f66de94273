// Package recordbase is a client for record-store backends speaking the
// PocketBase-compatible HTTP/JSON API.
//
// Every call funnels through a single dispatcher (Send / Client.SendJSON)
// which fills in the JSON content type, Accept-Language and bearer
// Authorization headers, cancels superseded duplicate requests, runs the
// optional before/after hooks and normalizes every failure into a
// *ResponseError. The session itself lives in an authstore.Store that the
// dispatcher only reads; the auth services write to it after a successful
// authentication.
//
// Resource helpers (CrudService, AuthService, Health) are thin wrappers over
// the dispatcher.
package recordbase
