// Package api implements the JSON HTTP API: knowledge item CRUD, the
// focused streaming chat endpoint, the public brain query endpoint, and the
// middleware stack around them (recovery, request IDs, logging, CORS,
// per-IP rate limiting, identity extraction).
//
// Identity arrives via the X-User-Email header, set by the authenticating
// reverse proxy; this package trusts it and scopes all private operations to
// that owner. The brain query endpoint is deliberately public.
package api
