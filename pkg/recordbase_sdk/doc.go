// Package recordbase_sdk bootstraps a recordbase client from environment
// variables.
//
// RECORDBASE_RUNTIME_MODE selects the backend: "http" talks to
// RECORDBASE_API_URL, "mock" runs an in-process mock backend (optionally
// seeded from RECORDBASE_MOCK_SEED) and "auto", the default, picks http when
// an API URL is set. RECORDBASE_LANG and RECORDBASE_AUTO_CANCEL tune the
// client. When RECORDBASE_AUTH_REDIS_ADDR is set the auth session is restored
// from and mirrored into Redis under RECORDBASE_AUTH_REDIS_KEY.
package recordbase_sdk
