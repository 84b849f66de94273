// Package authstore keeps the authenticated session of a recordbase client:
// the bearer token, the principal it belongs to and the listeners interested
// in changes. The state can be exported to and restored from an HTTP cookie;
// see redisstore for persistence across processes.
package authstore
